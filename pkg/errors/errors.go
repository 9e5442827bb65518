package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"

	CodeInvalidAmount        Code = "INVALID_AMOUNT"
	CodeInsufficientBalance  Code = "INSUFFICIENT_BALANCE"
	CodeUnknownAccount       Code = "UNKNOWN_ACCOUNT"
	CodeListingUnavailable   Code = "LISTING_UNAVAILABLE"
	CodeSelfOffer            Code = "SELF_OFFER_NOT_ALLOWED"
	CodeSelfRedemption       Code = "SELF_REDEMPTION_NOT_ALLOWED"
	CodeOfferLimitReached    Code = "OFFER_LIMIT_REACHED"
	CodeOfferNotFound        Code = "OFFER_NOT_FOUND"
	CodeOfferAlreadyResolved Code = "OFFER_ALREADY_RESOLVED"
	CodeNotAuthorized        Code = "NOT_AUTHORIZED"
	// CodeStoreUnavailable is the only retryable code.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func plain(status int, message string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: message}
}

// detailed codes may expose Details to the client.
func detailed(status int, message string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: message, DetailsAllowed: true}
}

func retryable(status int, message string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: message, Retryable: true}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:           detailed(http.StatusBadRequest, "validation failed"),
	CodeUnauthorized:         plain(http.StatusUnauthorized, "authentication required"),
	CodeNotFound:             plain(http.StatusNotFound, "resource not found"),
	CodeIdempotency:          detailed(http.StatusConflict, "idempotency key reused"),
	CodeRateLimit:            plain(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInternal:             plain(http.StatusInternalServerError, "internal server error"),
	CodeInvalidAmount:        detailed(http.StatusBadRequest, "amount must be a positive integer"),
	CodeInsufficientBalance:  detailed(http.StatusUnprocessableEntity, "insufficient balance"),
	CodeUnknownAccount:       plain(http.StatusNotFound, "account not found"),
	CodeListingUnavailable:   detailed(http.StatusConflict, "listing unavailable"),
	CodeSelfOffer:            plain(http.StatusUnprocessableEntity, "cannot make an offer on your own listing"),
	CodeSelfRedemption:       plain(http.StatusUnprocessableEntity, "cannot redeem your own listing"),
	CodeOfferLimitReached:    detailed(http.StatusConflict, "offer limit reached"),
	CodeOfferNotFound:        plain(http.StatusNotFound, "offer not found"),
	CodeOfferAlreadyResolved: detailed(http.StatusConflict, "offer already resolved"),
	CodeNotAuthorized:        plain(http.StatusForbidden, "not allowed"),
	CodeStoreUnavailable:     retryable(http.StatusServiceUnavailable, "temporarily unavailable, try again"),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a failure with a stable public Code. message and cause stay
// server side; details reach the client only for codes that allow it.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap is New with a cause. A nil err is allowed.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Code treats a nil *Error as an internal failure.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string { return e.message }

func (e *Error) Details() any { return e.details }

func (e *Error) Unwrap() error { return e.cause }

// WithDetails attaches client-visible context and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	e.details = details
	return e
}

func (e *Error) Error() string {
	head := string(e.code) + ": " + e.message
	if e.cause == nil {
		return head
	}
	return fmt.Sprintf("%s: %v", head, e.cause)
}

// Retryable reports whether the caller may repeat the whole operation.
func (e *Error) Retryable() bool {
	return MetadataFor(e.Code()).Retryable
}

// As finds the first *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// CodeOf returns the code of err, or CodeInternal when err is untyped.
func CodeOf(err error) Code {
	return As(err).Code()
}
