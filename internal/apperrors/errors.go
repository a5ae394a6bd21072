// Package apperrors defines the ledger's recoverable error kinds. Every kind
// carries the wire code and HTTP status handlers respond with, so the mapping
// lives in one place instead of being re-derived at each call site.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// LedgerError is a user-correctable failure of a ledger operation. Callers
// fix their input and retry; none of these should crash the process.
type LedgerError struct {
	Code    string
	Status  int
	Message string
}

func (e *LedgerError) Error() string {
	return e.Message
}

// Is matches on the wire code so wrapped instances created by the
// constructors below compare equal to their sentinel.
func (e *LedgerError) Is(target error) bool {
	var t *LedgerError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrSKUNotFound       = &LedgerError{Code: "SKU_NOT_FOUND", Status: http.StatusNotFound, Message: "SKU not found"}
	ErrSKUInactive       = &LedgerError{Code: "SKU_INACTIVE", Status: http.StatusUnprocessableEntity, Message: "SKU is not active"}
	ErrInsufficientStock = &LedgerError{Code: "INSUFFICIENT_STOCK", Status: http.StatusUnprocessableEntity, Message: "insufficient unallocated stock"}
	ErrInvalidSelection  = &LedgerError{Code: "INVALID_SELECTION", Status: http.StatusUnprocessableEntity, Message: "invalid manual selection"}
	ErrTagNotFound       = &LedgerError{Code: "TAG_NOT_FOUND", Status: http.StatusNotFound, Message: "tag not found"}
	ErrNotAllocated      = &LedgerError{Code: "NOT_ALLOCATED", Status: http.StatusUnprocessableEntity, Message: "SKU is not allocated on this tag"}
	ErrOverFulfillment   = &LedgerError{Code: "OVER_FULFILLMENT", Status: http.StatusUnprocessableEntity, Message: "requested quantity exceeds remaining allocation"}
	ErrInvalidTagState   = &LedgerError{Code: "INVALID_TAG_STATE", Status: http.StatusConflict, Message: "operation not allowed in current tag state"}
	ErrAllocationRace    = &LedgerError{Code: "ALLOCATION_CONFLICT", Status: http.StatusConflict, Message: "concurrent allocation conflict, retry the request"}
	ErrSKUInUse          = &LedgerError{Code: "SKU_IN_USE", Status: http.StatusConflict, Message: "SKU still has allocated instances"}
)

// Newf returns a copy of kind with a formatted message, preserving code and
// status so errors.Is still matches the sentinel.
func Newf(kind *LedgerError, format string, args ...interface{}) error {
	return &LedgerError{
		Code:    kind.Code,
		Status:  kind.Status,
		Message: fmt.Sprintf(format, args...),
	}
}

// AsLedgerError unwraps err into a *LedgerError if it is one.
func AsLedgerError(err error) (*LedgerError, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
