package errutil

import "net/http"

// CoreStatus is the transport-agnostic status code carried by every engine
// error. Domain-specific outcomes (insufficient funds, state machine guards)
// get their own codes so callers can branch without string matching.
type CoreStatus string

const (
	StatusBadRequest          CoreStatus = "BAD_REQUEST"
	StatusValidationFailed    CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized        CoreStatus = "UNAUTHORIZED"
	StatusForbidden           CoreStatus = "FORBIDDEN"
	StatusNotFound            CoreStatus = "NOT_FOUND"
	StatusConflict            CoreStatus = "CONFLICT"
	StatusUnprocessableEntity CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusTooManyRequests     CoreStatus = "TOO_MANY_REQUESTS"
	StatusTimeout             CoreStatus = "TIMEOUT"
	StatusInternal            CoreStatus = "INTERNAL"
	StatusNotImplemented      CoreStatus = "NOT_IMPLEMENTED"
	StatusUnavailable         CoreStatus = "UNAVAILABLE"
	StatusUnknown             CoreStatus = "UNKNOWN"

	// Engine-domain statuses.
	StatusInsufficientFunds CoreStatus = "INSUFFICIENT_FUNDS"
	StatusNotEligible       CoreStatus = "NOT_ELIGIBLE"
	StatusInvalidTransition CoreStatus = "INVALID_TRANSITION"
	StatusOrderFulfilled    CoreStatus = "ORDER_FULFILLED"
	StatusExpired           CoreStatus = "EXPIRED"
	StatusAlreadyTerminal   CoreStatus = "ALREADY_TERMINAL"
)

// HTTPStatus maps the CoreStatus to its closest HTTP status code equivalent.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden, StatusNotEligible:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusOrderFulfilled, StatusAlreadyTerminal:
		return http.StatusConflict
	case StatusUnprocessableEntity, StatusInvalidTransition, StatusExpired:
		return http.StatusUnprocessableEntity
	case StatusInsufficientFunds:
		return http.StatusPaymentRequired
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
