// Package resolver maps a human-entered recipient string to a checksummed
// Ethereum address. Plain hex addresses are checksummed locally; ENS names
// resolve through the mainnet registry and Basenames through the Base
// registry, each a pair of read-only eth_call lookups.
package resolver

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// ENSRegistryAddress is the ENS registry on Ethereum mainnet.
	ENSRegistryAddress = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

	// BasenamesRegistryAddress is the Basenames registry on Base mainnet.
	BasenamesRegistryAddress = "0xB94704422c2a1E396835A571837Aa5AE53285a95"
)

var (
	registryResolverABI = []byte(`[
		{
			"inputs": [{"name": "node", "type": "bytes32"}],
			"name": "resolver",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	resolverAddrABI = []byte(`[
		{
			"inputs": [{"name": "node", "type": "bytes32"}],
			"name": "addr",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)

// ContractCaller is the read-only RPC surface the resolver needs;
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver resolves recipient strings. Either caller may be nil, in which
// case names for that registry fail with a configuration error while plain
// addresses still resolve.
type Resolver struct {
	mainnet ContractCaller
	base    ContractCaller
}

// New creates a resolver backed by mainnet (ENS) and Base (Basenames) RPC
// clients.
func New(mainnet, base ContractCaller) *Resolver {
	return &Resolver{mainnet: mainnet, base: base}
}

// Resolve turns an address, ENS name, or Basename into a checksummed
// address.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("recipient is empty")
	}

	if strings.HasPrefix(input, "0x") {
		if !common.IsHexAddress(input) {
			return "", fmt.Errorf("invalid address: %s", input)
		}
		return common.HexToAddress(input).Hex(), nil
	}

	name := strings.ToLower(input)
	switch {
	case strings.HasSuffix(name, ".base.eth"):
		if r.base == nil {
			return "", fmt.Errorf("basename resolution is not configured")
		}
		return r.resolveName(ctx, r.base, BasenamesRegistryAddress, name)
	case strings.HasSuffix(name, ".eth"):
		if r.mainnet == nil {
			return "", fmt.Errorf("ens resolution is not configured")
		}
		return r.resolveName(ctx, r.mainnet, ENSRegistryAddress, name)
	default:
		return "", fmt.Errorf("unrecognized recipient: %s", input)
	}
}

// resolveName walks registry.resolver(node) then resolver.addr(node).
func (r *Resolver) resolveName(ctx context.Context, caller ContractCaller, registry, name string) (string, error) {
	node := Namehash(name)

	resolverAddr, err := callAddressMethod(ctx, caller, registry, registryResolverABI, "resolver", node)
	if err != nil {
		return "", fmt.Errorf("registry lookup for %s failed: %w", name, err)
	}
	if resolverAddr == (common.Address{}) {
		return "", fmt.Errorf("name not found: %s", name)
	}

	addr, err := callAddressMethod(ctx, caller, resolverAddr.Hex(), resolverAddrABI, "addr", node)
	if err != nil {
		return "", fmt.Errorf("resolver lookup for %s failed: %w", name, err)
	}
	if addr == (common.Address{}) {
		return "", fmt.Errorf("name not found: %s", name)
	}

	return addr.Hex(), nil
}

func callAddressMethod(ctx context.Context, caller ContractCaller, contract string, abiBytes []byte, method string, node [32]byte) (common.Address, error) {
	parsed, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := parsed.Pack(method, node)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	to := common.HexToAddress(contract)
	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}

	outputs, err := parsed.Unpack(method, result)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(outputs) != 1 {
		return common.Address{}, fmt.Errorf("unexpected %s result arity %d", method, len(outputs))
	}

	addr, ok := outputs[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s result type %T", method, outputs[0])
	}
	return addr, nil
}

// Namehash implements the EIP-137 recursive name hash.
func Namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}

	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		node = [32]byte(crypto.Keccak256(node[:], labelHash))
	}
	return node
}
