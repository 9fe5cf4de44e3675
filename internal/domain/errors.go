package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidCount      = errors.New("invalid item count")
	ErrUnknownModel      = errors.New("unknown model")
	ErrCredentialExpired = errors.New("generation credential missing or expired")
	ErrProviderFailure   = errors.New("provider failure")
)
