// Package apperr defines the error kinds surfaced by the stock service.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Message ids, shared with the locale files.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidQuantity = "invalid_quantity"
	CodeInvalidType     = "invalid_transaction_type"
	CodeInvalidChannel  = "invalid_channel"
	CodeInvalidDate     = "invalid_date"
	CodeInvalidPrice    = "invalid_price"
	CodeNameRequired    = "name_required"
	CodeBarcodeExists   = "barcode_exists"
	CodeItemNotFound    = "item_not_found"
	CodeInsufficient    = "insufficient_stock"
	CodeEmptySale       = "empty_sale"
	CodePersistence     = "persistence_failed"
	CodeSystemBusy      = "system_busy"
	CodeInternal        = "internal_error"
)

type Error struct {
	Kind   Kind
	Code   string
	Fields map[string]interface{}
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Code
	if len(e.Fields) > 0 {
		msg += fmt.Sprintf(" %v", e.Fields)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and code, so sentinel style checks work:
//
//	errors.Is(err, apperr.Validation(apperr.CodeInsufficient, nil))
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

func Validation(code string, fields map[string]interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Fields: fields}
}

func NotFound(code string, fields map[string]interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Fields: fields}
}

func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Code: CodePersistence, Err: err}
}

// As extracts the *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// EnsurePersistence leaves typed errors untouched and wraps anything else
// (driver, network) as a persistence failure.
func EnsurePersistence(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Persistence(err)
}
