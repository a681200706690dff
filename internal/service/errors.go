package service

import (
	"encoding/json"
	"maps"
)

// Kind groups business errors by how a caller should react.
type Kind int

const (
	// KindValidation is a malformed or incomplete request.
	KindValidation Kind = iota
	// KindRejected is a well-formed request the current state does not allow.
	KindRejected
	KindNotFound
	KindConflict
)

// Error is an expected business outcome returned as a value. Nothing has been
// written when an operation returns one.
type Error struct {
	Kind   Kind
	Code   string
	Fields map[string]any
}

func (e *Error) Error() string { return e.Code }

// Is matches on Code so a sentinel compares equal to a copy carrying fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy of e carrying extra response fields.
func (e *Error) With(key string, value any) *Error {
	c := *e
	c.Fields = maps.Clone(e.Fields)
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}
	c.Fields[key] = value
	return &c
}

// MarshalJSON renders {"error": code, ...fields}.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["error"] = e.Code
	return json.Marshal(out)
}

func newError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

var (
	ErrNameRequired              = newError(KindValidation, "name_required")
	ErrMerchantAmountRequired    = newError(KindValidation, "merchant_id_and_positive_amount_kobo_required")
	ErrUserAmountRequired        = newError(KindValidation, "user_id_and_positive_amount_kobo_required")
	ErrPositiveAmountRequired    = newError(KindValidation, "positive_amount_kobo_required")
	ErrAmountTooLarge            = newError(KindValidation, "amount_kobo_too_large")
	ErrInvalidFeeMode            = newError(KindValidation, "invalid_fee_mode")
	ErrInvalidTransferRequest    = newError(KindValidation, "invalid_transfer_request")
	ErrTransferIDRequired        = newError(KindValidation, "transfer_id_required")
	ErrInvalidSubmitMode         = newError(KindValidation, "invalid_submit_mode")
	ErrInvalidProviderResult     = newError(KindValidation, "invalid_provider_result")
	ErrEventFieldsRequired       = newError(KindValidation, "provider_event_id_type_payload_required")
	ErrRefRequired               = newError(KindValidation, "ref_type_and_ref_id_required")
	ErrIdempotencyKeyRequired    = newError(KindValidation, "idempotency_key_required")
	ErrIdempotencyKeyConflict    = newError(KindConflict, "idempotency_key_reused_with_different_payload")
	ErrMerchantNotFound          = newError(KindNotFound, "merchant_not_found")
	ErrUserNotFound              = newError(KindNotFound, "user_not_found")
	ErrPaymentIntentNotFound     = newError(KindNotFound, "payment_intent_not_found")
	ErrTransferNotFound          = newError(KindNotFound, "transfer_not_found")
	ErrAccountNotFound           = newError(KindNotFound, "account_not_found")
	ErrInsufficientPending       = newError(KindRejected, "insufficient_pending")
	ErrInsufficientAvailable     = newError(KindRejected, "insufficient_available")
	ErrInsufficientWalletBalance = newError(KindRejected, "insufficient_wallet_balance")
	ErrInvalidState              = newError(KindRejected, "invalid_state")
)
