package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	tips "github.com/Agentokratia/tips-app"
)

// BuildEscrowPayload signs a Permit2 PermitWitnessTransferFrom for an escrow
// requirement. The spender is the escrow contract from the requirement's
// extra bag, and the witness pins the recipient so pulled funds can only
// reach the tip's payTo address. The swap calldata from the requirement is
// carried along unchanged, compressed or not.
func BuildEscrowPayload(ctx context.Context, signer Signer, requirements tips.PaymentRequirements) (*EscrowPayload, error) {
	network := string(requirements.Network)
	config, ok := GetNetworkConfig(network)
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	swapData := tips.SwapDataFromExtra(requirements.Extra)
	if swapData == nil {
		return nil, fmt.Errorf("escrow requirement is missing swapData")
	}

	escrowContract, _ := requirements.Extra["escrowContract"].(string)
	if escrowContract == "" {
		return nil, fmt.Errorf("escrow requirement is missing escrowContract")
	}

	nonce, err := CreatePermit2Nonce()
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	validAfter := fmt.Sprintf("%d", now-ValidAfterSkewBuffer)
	deadline := fmt.Sprintf("%d", now+int64(requirements.MaxTimeoutSeconds))

	authorization := Permit2Authorization{
		From: signer.Address(),
		Permitted: Permit2TokenPermissions{
			Token:  NormalizeAddress(swapData.InputToken),
			Amount: swapData.MaxInputAmount,
		},
		Spender:  NormalizeAddress(escrowContract),
		Nonce:    nonce,
		Deadline: deadline,
		Witness: Permit2Witness{
			To:         NormalizeAddress(requirements.PayTo),
			ValidAfter: validAfter,
			Extra:      "0x",
		},
	}

	signature, err := signPermit2Authorization(ctx, signer, authorization, config.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign permit2 authorization: %w", err)
	}

	return &EscrowPayload{
		Signature:            BytesToHex(signature),
		Permit2Authorization: authorization,
		SwapCallData:         swapData.CallData,
	}, nil
}

func signPermit2Authorization(
	ctx context.Context,
	signer Signer,
	authorization Permit2Authorization,
	chainID *big.Int,
) ([]byte, error) {
	// Permit2 uses a fixed domain name and no version field.
	domain := TypedDataDomain{
		Name:              "Permit2",
		ChainID:           chainID,
		VerifyingContract: PERMIT2Address,
	}

	amount, ok := new(big.Int).SetString(authorization.Permitted.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid permitted amount: %s", authorization.Permitted.Amount)
	}
	nonce, ok := new(big.Int).SetString(authorization.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("invalid nonce: %s", authorization.Nonce)
	}
	deadline, ok := new(big.Int).SetString(authorization.Deadline, 10)
	if !ok {
		return nil, fmt.Errorf("invalid deadline: %s", authorization.Deadline)
	}
	validAfter, ok := new(big.Int).SetString(authorization.Witness.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", authorization.Witness.ValidAfter)
	}
	extraBytes, err := HexToBytes(authorization.Witness.Extra)
	if err != nil {
		return nil, fmt.Errorf("invalid witness extra: %w", err)
	}

	message := map[string]interface{}{
		"permitted": map[string]interface{}{
			"token":  authorization.Permitted.Token,
			"amount": amount,
		},
		"spender":  authorization.Spender,
		"nonce":    nonce,
		"deadline": deadline,
		"witness": map[string]interface{}{
			"to":         authorization.Witness.To,
			"validAfter": validAfter,
			"extra":      extraBytes,
		},
	}

	return signer.SignTypedData(ctx, domain, GetPermit2EIP712Types(), "PermitWitnessTransferFrom", message)
}

// Permit2Allowance reads the owner's ERC-20 allowance granted to the Permit2
// contract. The escrow path requires a one-time approval before signatures
// can draw from it.
func Permit2Allowance(ctx context.Context, reader ContractReader, tokenAddress, ownerAddress string) (*big.Int, error) {
	result, err := reader.ReadContract(ctx, NormalizeAddress(tokenAddress), ERC20AllowanceABI, "allowance",
		common.HexToAddress(ownerAddress), common.HexToAddress(PERMIT2Address))
	if err != nil {
		return nil, fmt.Errorf("allowance check failed: %w", err)
	}

	allowance, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance result type %T", result)
	}
	return allowance, nil
}

// Permit2ApprovalCallData encodes an ERC-20 approve call granting Permit2 an
// unlimited allowance against the given token, for the UI or CLI to
// broadcast when the allowance check comes up short.
func Permit2ApprovalCallData(tokenAddress string) (to string, data []byte, err error) {
	contractABI, err := abi.JSON(strings.NewReader(string(ERC20ApproveABI)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse approve ABI: %w", err)
	}
	data, err = contractABI.Pack("approve", common.HexToAddress(PERMIT2Address), MaxUint256())
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode approve call: %w", err)
	}
	return NormalizeAddress(tokenAddress), data, nil
}
