// Package fault defines the stable, machine-readable error kinds shared by
// the ingestion core. Hosts switch on Kind; humans read the wrapped cause.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a failure class. Values are part of the public contract
// and must not change between releases.
type Kind string

const (
	IngestBadInput       Kind = "INGEST_BAD_INPUT"
	IngestPDFUnreadable  Kind = "INGEST_PDF_UNREADABLE"
	IngestOCRUnavailable Kind = "INGEST_OCR_UNAVAILABLE"
	FetchPolicyDenied    Kind = "FETCH_POLICY_DISALLOWED"
	FetchNetwork         Kind = "FETCH_NETWORK"
	FetchNon2xx          Kind = "FETCH_NON_2XX"
	CacheWrite           Kind = "CACHE_WRITE"
	BGGInvalidID         Kind = "BGG_INVALID_ID"
	BGGPartial           Kind = "BGG_PARTIAL"
	HarvestNotFound      Kind = "HARVEST_NOT_FOUND"
	ContractViolation    Kind = "STORYBOARD_CONTRACT_VIOLATION"
)

// Error couples a Kind with a human-readable message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

// Newf returns an error of the given kind with a formatted message.
func Newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause. A nil cause
// yields a plain kinded error.
func Wrap(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// KindOf walks the error chain and returns the first Kind found, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether any error in the chain carries kind k.
func IsKind(err error, k Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == k {
			return true
		}
		err = fe.Err
	}
	return false
}
