package models

import "errors"

// Error kinds recognized by the core (spec.md §7). Handlers and the
// scheduler type-switch (via errors.Is) on these sentinels to decide HTTP
// status / retry behavior.
var (
	ErrInvalidSession    = errors.New("invalid_session")
	ErrMissingBearer     = errors.New("missing_bearer")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrSenderNotFound    = errors.New("sender_not_found")
	ErrRecipientNotFound = errors.New("recipient_not_found")
	ErrWalletNotFound    = errors.New("wallet_not_found")
	ErrWalletLocked      = errors.New("wallet_locked")
	ErrNameNotFound      = errors.New("name_not_found")
	ErrNotNameOwner      = errors.New("not_name_owner")
	ErrContractNotFound  = errors.New("contract_not_found")
	ErrTokenNotFound     = errors.New("token_not_found")
	ErrDesync            = errors.New("desync")
	ErrStore             = errors.New("store_error")
)

// InvalidParameterError carries the offending field name (spec.md §7).
type InvalidParameterError struct {
	Field   string
	Message string
}

func (e *InvalidParameterError) Error() string {
	return "invalid_parameter(" + e.Field + "): " + e.Message
}

func NewInvalidParameter(field, message string) error {
	return &InvalidParameterError{Field: field, Message: message}
}
