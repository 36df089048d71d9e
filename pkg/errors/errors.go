package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnprocessable     Code = "UNPROCESSABLE"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable       Code = "PRODUCT_UNAVAILABLE"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeProductGone       Code = "PRODUCT_GONE"
	CodeTransactionFailed Code = "TRANSACTION_FAILED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata controls how a code is rendered to API clients.
type Metadata struct {
	HTTPStatus    int
	PublicMessage string
	// Retryable hints that the same request may succeed later.
	Retryable bool
	// DetailsAllowed lets Error.Details reach the response body.
	DetailsAllowed bool
	// ExposeMessage replaces PublicMessage with Error.Message when set.
	ExposeMessage bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	details
	expose
)

func meta(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&details != 0,
		ExposeMessage:  traits&expose != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        meta(http.StatusBadRequest, "validation failed", details|expose),
	CodeUnprocessable:     meta(http.StatusUnprocessableEntity, "value not allowed", details|expose),
	CodeUnauthorized:      meta(http.StatusUnauthorized, "authentication required", expose),
	CodeForbidden:         meta(http.StatusForbidden, "access denied", details|expose),
	CodeNotFound:          meta(http.StatusNotFound, "resource not found", expose),
	CodeConflict:          meta(http.StatusConflict, "conflict detected", expose),
	CodeIdempotency:       meta(http.StatusConflict, "idempotency key reused", details|expose),
	CodeRateLimit:         meta(http.StatusTooManyRequests, "rate limit exceeded", expose),
	CodeUnavailable:       meta(http.StatusBadRequest, "product is not available", details|expose),
	CodeInsufficientStock: meta(http.StatusBadRequest, "insufficient stock", details|expose),
	CodeEmptyCart:         meta(http.StatusBadRequest, "cart is empty", expose),
	CodeProductGone:       meta(http.StatusBadRequest, "product no longer exists", details|expose),
	CodeTransactionFailed: meta(http.StatusInternalServerError, "order could not be placed", retryable),
	CodeInternal:          meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:        meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|details),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded failure that the HTTP layer knows how to render.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Error includes the cause so logs carry the full story; clients only ever
// see Message or the public text.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := string(e.code) + ": " + e.message
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
