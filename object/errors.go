package object

import "errors"

// Kind is a stable category for programmatic error handling.
//
// These categories are intended to remain stable across versions.
// Callers should branch on Kind/RuleID rather than matching error strings.
//
// NOTE: Error() strings are intentionally kept human-readable and may evolve.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindEncoding covers malformed or non-canonical bytes. Encoding errors
	// are terminal for an object: the bytes are never fixed up or re-encoded
	// on the sender's behalf.
	KindEncoding Kind = "Encoding"
	// KindVerification covers signature and key failures.
	KindVerification Kind = "Verification"
	// KindValidation covers well-signed objects that violate structural rules.
	KindValidation Kind = "Validation"
	// KindAuthority covers moderation actions whose author lacks the
	// capability the action requires. Such objects are excluded from
	// projections but may be retained in raw logs.
	KindAuthority Kind = "Authority"
	// KindSyncConflict covers divergent sync state requiring a deterministic
	// merge decision.
	KindSyncConflict Kind = "SyncConflict"
	// KindStorage covers failures of the underlying store.
	KindStorage Kind = "Storage"
	KindInternal Kind = "Internal"
)

// Error is the module's structured error type.
//
// RuleID is a stable identifier (e.g., HUM-ENC-002, HUM-SIG-003, HUM-VAL-101)
// that names the violated invariant or validation rule.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError returns a structured error with the given kind and stable rule id.
func NewError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// WrapError attaches a cause to a structured error.
func WrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
