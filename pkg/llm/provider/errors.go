package provider

import (
	"errors"
	"net/http"

	"github.com/papercomputeco/switchboard/pkg/llm"
)

// ErrorKind is a dialect-neutral error category. Codecs map it to their own
// error type vocabulary.
type ErrorKind string

const (
	KindInvalidRequest ErrorKind = "invalid_request"
	KindNotFound       ErrorKind = "not_found"
	KindAuthentication ErrorKind = "authentication"
	KindPermission     ErrorKind = "permission"
	KindRateLimit      ErrorKind = "rate_limit"
	KindOverloaded     ErrorKind = "overloaded"
	KindTimeout        ErrorKind = "timeout"
	KindServer         ErrorKind = "server"
)

// APIError is a client-facing error before it is rendered in a dialect.
type APIError struct {
	Status  int
	Kind    ErrorKind
	Message string
}

// Classify maps a pipeline error to its client-facing status and kind.
func Classify(err error) APIError {
	var (
		unknownModel *llm.UnknownModelError
		validation   *llm.SchemaValidationError
		conversion   *llm.ConversionError
		protocol     *llm.UpstreamProtocolError
		transport    *llm.UpstreamTransportError
	)

	switch {
	case errors.As(err, &unknownModel):
		return APIError{Status: http.StatusNotFound, Kind: KindNotFound, Message: err.Error()}
	case errors.As(err, &validation):
		return APIError{Status: http.StatusBadRequest, Kind: KindInvalidRequest, Message: err.Error()}
	case errors.Is(err, llm.ErrTimeout):
		return APIError{Status: http.StatusGatewayTimeout, Kind: KindTimeout, Message: err.Error()}
	case errors.As(err, &conversion):
		return APIError{Status: http.StatusInternalServerError, Kind: KindServer, Message: err.Error()}
	case errors.As(err, &protocol):
		return APIError{Status: http.StatusBadGateway, Kind: KindServer, Message: err.Error()}
	case errors.As(err, &transport):
		kind, known := kindForType(transport.Type)
		if transport.StatusCode >= http.StatusBadRequest {
			if !known {
				kind = kindForStatus(transport.StatusCode)
			}
			return APIError{Status: transport.StatusCode, Kind: kind, Message: err.Error()}
		}
		if known {
			return APIError{Status: statusForKind(kind), Kind: kind, Message: err.Error()}
		}
		return APIError{Status: http.StatusBadGateway, Kind: KindServer, Message: err.Error()}
	default:
		return APIError{Status: http.StatusInternalServerError, Kind: KindServer, Message: "internal error"}
	}
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindInvalidRequest
	case http.StatusUnauthorized:
		return KindAuthentication
	case http.StatusForbidden:
		return KindPermission
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return KindTimeout
	case 529:
		return KindOverloaded
	}
	return KindServer
}

// kindForType maps a provider-reported error type from either dialect.
func kindForType(t string) (ErrorKind, bool) {
	switch t {
	case "invalid_request_error", "request_too_large":
		return KindInvalidRequest, true
	case "not_found_error":
		return KindNotFound, true
	case "authentication_error":
		return KindAuthentication, true
	case "permission_error":
		return KindPermission, true
	case "rate_limit_error", "rate_limit_exceeded", "insufficient_quota", "tokens", "requests":
		return KindRateLimit, true
	case "overloaded_error":
		return KindOverloaded, true
	case "timeout_error", "timeout":
		return KindTimeout, true
	case "api_error", "server_error":
		return KindServer, true
	}
	return "", false
}

func statusForKind(kind ErrorKind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindOverloaded:
		return 529
	case KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
