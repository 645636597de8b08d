package evm

import (
	"fmt"
	"math/big"
)

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// TypedDataField is one field of an EIP-712 struct type.
type TypedDataField struct {
	Name string
	Type string
}

// ExactAuthorization is the EIP-3009 TransferWithAuthorization message.
type ExactAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"` // 32-byte nonce as hex string
}

// ExactPayload is the signed exact-scheme payment data.
type ExactPayload struct {
	Signature     string             `json:"signature"`
	Authorization ExactAuthorization `json:"authorization"`
}

// ToMap converts the payload for embedding in a payment payload.
func (p *ExactPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"signature": p.Signature,
		"authorization": map[string]interface{}{
			"from":        p.Authorization.From,
			"to":          p.Authorization.To,
			"value":       p.Authorization.Value,
			"validAfter":  p.Authorization.ValidAfter,
			"validBefore": p.Authorization.ValidBefore,
			"nonce":       p.Authorization.Nonce,
		},
	}
}

// Permit2TokenPermissions is the permitted token and amount for Permit2.
type Permit2TokenPermissions struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// Permit2Witness is the witness structure verified on-chain by the escrow
// contract. The upper time bound is enforced by Permit2's deadline field,
// not a witness field.
type Permit2Witness struct {
	To         string `json:"to"`
	ValidAfter string `json:"validAfter"`
	Extra      string `json:"extra"`
}

// Permit2Authorization maps to the PermitWitnessTransferFrom struct used by
// the Permit2 contract.
type Permit2Authorization struct {
	From      string                  `json:"from"`
	Permitted Permit2TokenPermissions `json:"permitted"`
	Spender   string                  `json:"spender"`
	Nonce     string                  `json:"nonce"`    // uint256 as decimal string
	Deadline  string                  `json:"deadline"` // unix seconds as decimal string
	Witness   Permit2Witness          `json:"witness"`
}

// EscrowPayload is the signed escrow-scheme payment data: the Permit2
// authorization plus the aggregator swap calldata the escrow contract will
// execute.
type EscrowPayload struct {
	Signature            string               `json:"signature"`
	Permit2Authorization Permit2Authorization `json:"permit2Authorization"`
	SwapCallData         string               `json:"swapCallData"`
}

// ToMap converts the payload for embedding in a payment payload.
func (p *EscrowPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"signature": p.Signature,
		"permit2Authorization": map[string]interface{}{
			"from": p.Permit2Authorization.From,
			"permitted": map[string]interface{}{
				"token":  p.Permit2Authorization.Permitted.Token,
				"amount": p.Permit2Authorization.Permitted.Amount,
			},
			"spender":  p.Permit2Authorization.Spender,
			"nonce":    p.Permit2Authorization.Nonce,
			"deadline": p.Permit2Authorization.Deadline,
			"witness": map[string]interface{}{
				"to":         p.Permit2Authorization.Witness.To,
				"validAfter": p.Permit2Authorization.Witness.ValidAfter,
				"extra":      p.Permit2Authorization.Witness.Extra,
			},
		},
		"swapCallData": p.SwapCallData,
	}
}

// EscrowPayloadFromMap reconstructs an EscrowPayload from decoded JSON.
// Returns an error naming the first missing or malformed field.
func EscrowPayloadFromMap(data map[string]interface{}) (*EscrowPayload, error) {
	payload := &EscrowPayload{}

	if sig, ok := data["signature"].(string); ok {
		payload.Signature = sig
	}
	if cd, ok := data["swapCallData"].(string); ok {
		payload.SwapCallData = cd
	}

	auth, ok := data["permit2Authorization"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid permit2Authorization field")
	}

	reqStr := func(m map[string]interface{}, key string) (string, error) {
		v, ok := m[key].(string)
		if !ok {
			return "", fmt.Errorf("missing or invalid permit2Authorization.%s field", key)
		}
		return v, nil
	}

	var err error
	if payload.Permit2Authorization.From, err = reqStr(auth, "from"); err != nil {
		return nil, err
	}
	if payload.Permit2Authorization.Spender, err = reqStr(auth, "spender"); err != nil {
		return nil, err
	}
	if payload.Permit2Authorization.Nonce, err = reqStr(auth, "nonce"); err != nil {
		return nil, err
	}
	if payload.Permit2Authorization.Deadline, err = reqStr(auth, "deadline"); err != nil {
		return nil, err
	}

	permitted, ok := auth["permitted"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid permit2Authorization.permitted field")
	}
	if payload.Permit2Authorization.Permitted.Token, err = reqStr(permitted, "token"); err != nil {
		return nil, err
	}
	if payload.Permit2Authorization.Permitted.Amount, err = reqStr(permitted, "amount"); err != nil {
		return nil, err
	}

	witness, ok := auth["witness"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid permit2Authorization.witness field")
	}
	if payload.Permit2Authorization.Witness.To, err = reqStr(witness, "to"); err != nil {
		return nil, err
	}
	if payload.Permit2Authorization.Witness.ValidAfter, err = reqStr(witness, "validAfter"); err != nil {
		return nil, err
	}
	if extra, ok := witness["extra"].(string); ok {
		payload.Permit2Authorization.Witness.Extra = extra
	}

	return payload, nil
}
