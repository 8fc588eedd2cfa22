package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

var codeStatus = map[string]int{
	apperrors.CodeInvalidInput:      http.StatusBadRequest,
	apperrors.CodeInvalidCreds:      http.StatusUnauthorized,
	apperrors.CodeInvalidToken:      http.StatusUnauthorized,
	apperrors.CodeEmailExists:       http.StatusConflict,
	apperrors.CodeUserNotFound:      http.StatusNotFound,
	apperrors.CodeNotFound:          http.StatusNotFound,
	apperrors.CodeClickLimitReached: http.StatusForbidden,
	apperrors.CodeAuthNotConfigured: http.StatusServiceUnavailable,
	apperrors.CodeOAuthExchange:     http.StatusBadGateway,
	apperrors.CodeLLM:               http.StatusBadGateway,
	apperrors.CodeMarketData:        http.StatusBadGateway,
}

// fromAppError maps a domain error onto its transport status, keeping the domain code and message.
func fromAppError(err error) *HTTPError {
	code := apperrors.CodeOf(err)
	if code == "" {
		return asHTTPError(err)
	}
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return NewHTTPError(status, code, apperrors.MessageOf(err), err)
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "something went wrong",
		Err:     err,
	}
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func abortWithAppError(c *gin.Context, err error) {
	abortWithError(c, fromAppError(err))
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
