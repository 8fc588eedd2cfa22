package errors

import "errors"

// Codes shared by the domain services and mapped to HTTP statuses by the transport.
const (
	CodeInvalidInput      = "invalid_input"
	CodeLLM               = "llm_error"
	CodeAuth              = "auth_error"
	CodeInvalidToken      = "invalid_token"
	CodeClickLimitReached = "click_limit_reached"
	CodeMarketData        = "market_data_error"
	CodeNotFound          = "not_found"
	CodeStorage           = "storage_error"
	CodeEmailExists       = "email_exists"
	CodeInvalidCreds      = "invalid_credentials"
	CodeUserNotFound      = "user_not_found"
	CodeAuthNotConfigured = "auth_not_configured"
	CodeOAuthExchange     = "oauth_exchange_failed"
	CodeSubscription      = "subscription_error"
	CodeTopic             = "topic_error"
)

// AppError encodes domain specific error details.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap produces a new AppError instance.
func Wrap(code, message string, err error) error {
	return &AppError{Code: code, Message: message, Err: err}
}

// IsCode helps handler differentiate failures.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost AppError in the chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// MessageOf returns the human readable message without the wrapped cause.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
