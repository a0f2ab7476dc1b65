package core

import (
	"context"
	"errors"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidDescription = errors.New("invalid description")
	ErrInvalidSourceName  = errors.New("invalid source name")
	ErrSourceNotFound     = errors.New("source not found")
	ErrSameSourceTransfer = errors.New("transfer source and destination must differ")
	ErrDuplicateSource    = errors.New("source name already exists")
	ErrTransientStore     = errors.New("store temporarily unavailable")
	ErrNotFound           = errors.New("not found")
	ErrInvalidRequest     = errors.New("invalid request")
)

// ErrorKind is the machine-readable error identifier returned to API callers.
type ErrorKind string

const (
	KindInvalidAmount      ErrorKind = "invalid_amount"
	KindInvalidCategory    ErrorKind = "invalid_category"
	KindInvalidDescription ErrorKind = "invalid_description"
	KindInvalidSourceName  ErrorKind = "invalid_source_name"
	KindSourceNotFound     ErrorKind = "source_not_found"
	KindSameSourceTransfer ErrorKind = "same_source_transfer"
	KindDuplicateSource    ErrorKind = "duplicate_source"
	KindTransientStore     ErrorKind = "transient_store_failure"
	KindNotFound           ErrorKind = "not_found"
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindInternal           ErrorKind = "internal"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInvalidCategory, KindInvalidCategory},
	{ErrInvalidDescription, KindInvalidDescription},
	{ErrInvalidSourceName, KindInvalidSourceName},
	{ErrSourceNotFound, KindSourceNotFound},
	{ErrSameSourceTransfer, KindSameSourceTransfer},
	{ErrDuplicateSource, KindDuplicateSource},
	{ErrTransientStore, KindTransientStore},
	{ErrNotFound, KindNotFound},
	{ErrInvalidRequest, KindInvalidRequest},
}

// KindOf maps an error chain to its ErrorKind. Deadline errors count as
// transient store failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientStore
	}
	return KindInternal
}

// IsValidation reports whether err was raised before any mutation and must
// not be retried.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindInvalidAmount, KindInvalidCategory, KindInvalidDescription,
		KindInvalidSourceName, KindSameSourceTransfer, KindInvalidRequest:
		return true
	}
	return false
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransientStore
}
