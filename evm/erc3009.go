package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	tips "github.com/Agentokratia/tips-app"
)

// BuildExactPayload signs an EIP-3009 TransferWithAuthorization for the
// given requirement. No prior on-chain approval is needed; the authorization
// itself carries the transfer.
func BuildExactPayload(ctx context.Context, signer Signer, requirements tips.PaymentRequirements) (*ExactPayload, error) {
	network := string(requirements.Network)
	config, ok := GetNetworkConfig(network)
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	value, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", requirements.Amount)
	}

	nonce, err := CreateNonce()
	if err != nil {
		return nil, err
	}

	validAfter, validBefore := CreateValidityWindow(DefaultValidityPeriod * time.Second)

	// The token's EIP-712 domain parameters ride in the requirement's extra
	// bag; fall back to the configured USDC deployment.
	tokenName := config.USDC.Name
	tokenVersion := config.USDC.Version
	if requirements.Extra != nil {
		if name, ok := requirements.Extra["name"].(string); ok {
			tokenName = name
		}
		if version, ok := requirements.Extra["version"].(string); ok {
			tokenVersion = version
		}
	}

	authorization := ExactAuthorization{
		From:        signer.Address(),
		To:          NormalizeAddress(requirements.PayTo),
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	signature, err := signExactAuthorization(ctx, signer, authorization, config.ChainID, requirements.Asset, tokenName, tokenVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	return &ExactPayload{
		Signature:     BytesToHex(signature),
		Authorization: authorization,
	}, nil
}

func signExactAuthorization(
	ctx context.Context,
	signer Signer,
	authorization ExactAuthorization,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) ([]byte, error) {
	domain := TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}

	value, ok := new(big.Int).SetString(authorization.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value: %s", authorization.Value)
	}
	validAfter, ok := new(big.Int).SetString(authorization.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", authorization.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(authorization.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore: %s", authorization.ValidBefore)
	}
	nonceBytes, err := HexToBytes(authorization.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	message := map[string]interface{}{
		"from":        authorization.From,
		"to":          authorization.To,
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonceBytes,
	}

	return signer.SignTypedData(ctx, domain, ERC3009Types, "TransferWithAuthorization", message)
}
