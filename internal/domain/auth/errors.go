package auth

import "errors"

// ErrEmailExists is returned by repositories on a duplicate email address.
var ErrEmailExists = errors.New("email already exists")

// Error codes produced by the auth domain.
const (
	CodeInvalidInput       = "invalid_input"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidToken       = "invalid_token"
	CodeEmailExists        = "email_exists"
	CodeAccountNotFound    = "account_not_found"
	CodeNotConfigured      = "auth_not_configured"
	CodeOAuthExchange      = "oauth_exchange_failed"
	CodeLinkingDisabled    = "account_linking_disabled"
	CodeAuthError          = "auth_error"
)
