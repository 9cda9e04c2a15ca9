package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	GatewayErrorBadInput            = "GATEWAY_BAD_INPUT"
	GatewayErrorAuthentication      = "GATEWAY_AUTHENTICATION_FAILED"
	GatewayErrorUpstreamUnavailable = "GATEWAY_UPSTREAM_UNAVAILABLE"
	GatewayErrorRateLimited         = "GATEWAY_RATE_LIMITED"
	GatewayErrorCursorInvalid       = "GATEWAY_CURSOR_INVALID"
	GatewayErrorConfigRejected      = "GATEWAY_CONFIG_REJECTED"
	GatewayErrorResourceNotFound    = "GATEWAY_RESOURCE_NOT_FOUND"
	GatewayErrorInternal            = "GATEWAY_INTERNAL_ERROR"
)

var (
	// ErrAuthenticationFailed marks credential exchanges rejected by the
	// upstream. Never retried: a bad credential does not heal on its own.
	ErrAuthenticationFailed = errors.New("core: upstream authentication failed")

	// ErrUpstreamUnavailable marks transient upstream failure after the
	// bounded retry schedule is exhausted.
	ErrUpstreamUnavailable = errors.New("core: upstream unavailable")

	// ErrRateLimited marks a call the local governor could not admit within
	// its bounded wait.
	ErrRateLimited = errors.New("core: rate limited")

	// ErrCursorInvalid covers expired, tampered, and filter-mismatched
	// cursors. Callers recover by re-querying from the start.
	ErrCursorInvalid = errors.New("core: cursor invalid")

	// ErrConfigRejected marks a candidate config that failed validation; the
	// previous config stays active.
	ErrConfigRejected = errors.New("core: config rejected")

	ErrResourceNotFound = errors.New("core: resource not registered")
)

func gatewayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureGatewayErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return newGatewayError(err.Error(), goerrors.CategoryAuth, GatewayErrorAuthentication)
	case errors.Is(err, ErrUpstreamUnavailable):
		return newGatewayError(err.Error(), goerrors.CategoryExternal, GatewayErrorUpstreamUnavailable)
	case errors.Is(err, ErrRateLimited):
		return newGatewayError(err.Error(), goerrors.CategoryRateLimit, GatewayErrorRateLimited)
	case errors.Is(err, ErrCursorInvalid):
		return newGatewayError(err.Error(), goerrors.CategoryBadInput, GatewayErrorCursorInvalid)
	case errors.Is(err, ErrConfigRejected):
		return newGatewayError(err.Error(), goerrors.CategoryValidation, GatewayErrorConfigRejected)
	case errors.Is(err, ErrResourceNotFound):
		return newGatewayError(err.Error(), goerrors.CategoryNotFound, GatewayErrorResourceNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "cursor"):
		return newGatewayError(err.Error(), goerrors.CategoryBadInput, GatewayErrorCursorInvalid)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newGatewayError(err.Error(), goerrors.CategoryRateLimit, GatewayErrorRateLimited)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "authentication"):
		return newGatewayError(err.Error(), goerrors.CategoryAuth, GatewayErrorAuthentication)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newGatewayError(err.Error(), goerrors.CategoryBadInput, GatewayErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureGatewayErrorEnvelope(mapped)
}

func newGatewayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureGatewayErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureGatewayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = gatewayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultGatewayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultGatewayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return GatewayErrorBadInput
	case goerrors.CategoryNotFound:
		return GatewayErrorResourceNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return GatewayErrorAuthentication
	case goerrors.CategoryRateLimit:
		return GatewayErrorRateLimited
	case goerrors.CategoryExternal:
		return GatewayErrorUpstreamUnavailable
	default:
		return GatewayErrorInternal
	}
}

func gatewayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
