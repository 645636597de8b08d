package tips

import (
	"errors"
	"fmt"
)

// PaymentError is a payment-specific error with a stable machine code.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes.
const (
	ErrCodeValidation          = "validation_error"
	ErrCodeUnsupportedNetwork  = "unsupported_network"
	ErrCodeNoPaymentOptions    = "no_payment_options"
	ErrCodeNoMatchingOption    = "no_matching_requirement"
	ErrCodeUserRejected        = "user_rejected"
	ErrCodeMalformedPayload    = "malformed_payload"
	ErrCodeVerificationFailed  = "verification_failed"
	ErrCodeSettlementFailed    = "settlement_failed"
	ErrCodeAllowanceRequired   = "permit2_allowance_required"
	ErrCodeInternal            = "internal_error"
)

// NewPaymentError creates a new payment error.
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorCode extracts the payment error code from err, or internal_error if
// err is not a PaymentError.
func ErrorCode(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}
