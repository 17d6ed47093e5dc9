package errors

import "net/http"

// Code is the stable, client-visible identifier of a failure class.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeInvalidPricing    Code = "INVALID_PRICING_INPUT"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeTransientStore    Code = "TRANSIENT_STORE_ERROR"
)

// Metadata is how a code is rendered on the wire.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	showDetails
)

func surface(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&showDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        surface(http.StatusBadRequest, "validation failed", showDetails),
	CodeInvalidPricing:    surface(http.StatusBadRequest, "invalid pricing input", showDetails),
	CodeUnauthorized:      surface(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:         surface(http.StatusForbidden, "access denied", 0),
	CodeNotFound:          surface(http.StatusNotFound, "resource not found", 0),
	CodeConflict:          surface(http.StatusConflict, "conflict detected", retryable),
	CodeEmptyCart:         surface(http.StatusUnprocessableEntity, "cart is empty", 0),
	CodeInsufficientStock: surface(http.StatusConflict, "insufficient stock", showDetails),
	CodeInvalidTransition: surface(http.StatusConflict, "state transition disallowed", showDetails),
	CodeIdempotency:       surface(http.StatusConflict, "idempotency key reused", showDetails),
	CodeRateLimit:         surface(http.StatusTooManyRequests, "rate limit exceeded", showDetails),
	CodeInternal:          surface(http.StatusInternalServerError, "internal server error", retryable),
	CodeTransientStore:    surface(http.StatusServiceUnavailable, "store temporarily unavailable", retryable|showDetails),
}

// MetadataFor falls back to INTERNAL_ERROR for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}
