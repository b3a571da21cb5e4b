// Package agenterr defines the closed set of tagged errors the ticket pipeline
// components return across their boundaries (§7). The orchestrator is the
// only place that classifies one of these into a tracker-visible action.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the closed error categories an error belongs to.
type Kind int8

const (
	KindConfig Kind = iota
	KindVaultUnavailable
	KindTrackerTransient
	KindTrackerPermanent
	KindTenantMissing
	KindCredentialNotFound
	KindParse
	KindSchemaInvalid
	KindValidationFailed
	KindApprovalInvalidated
	KindBackendFailure
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config_error"
	case KindVaultUnavailable:
		return "vault_unavailable"
	case KindTrackerTransient:
		return "tracker_transient"
	case KindTrackerPermanent:
		return "tracker_permanent"
	case KindTenantMissing:
		return "tenant_missing"
	case KindCredentialNotFound:
		return "credential_not_found"
	case KindParse:
		return "parse_error"
	case KindSchemaInvalid:
		return "schema_invalid"
	case KindValidationFailed:
		return "validation_failed"
	case KindApprovalInvalidated:
		return "approval_invalidated"
	case KindBackendFailure:
		return "backend_failure"
	default:
		return "unknown"
	}
}

// Fatal reports whether this kind halts the whole run rather than being
// scoped to a single ticket (§7: ConfigError and VaultUnavailable are fatal).
func (k Kind) Fatal() bool {
	return k == KindConfig || k == KindVaultUnavailable
}

// Error is the tagged error value propagated across component boundaries.
type Error struct {
	Kind Kind
	Msg  string

	// File/Reason are populated for ParseError (§7: ParseError{file,reason}).
	File   string
	Reason string

	// MissingFields is populated for SchemaInvalid (§7).
	MissingFields []string

	// Err is the wrapped underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, &agenterr.Error{Kind: agenterr.KindCredentialNotFound})
// style checks by kind rather than by identity.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newKind(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Constructors — one per closed error category in §7.

func NewConfigError(format string, args ...any) *Error {
	return newKind(KindConfig, format, args...)
}

func NewVaultUnavailable(format string, args ...any) *Error {
	return newKind(KindVaultUnavailable, format, args...)
}

func NewTrackerTransient(err error) *Error {
	return &Error{Kind: KindTrackerTransient, Err: err}
}

func NewTrackerPermanent(err error) *Error {
	return &Error{Kind: KindTrackerPermanent, Err: err}
}

func NewTenantMissing() *Error {
	return &Error{Kind: KindTenantMissing, Msg: "no tenant identifier found in ticket text"}
}

func NewCredentialNotFound(tenant string) *Error {
	return &Error{Kind: KindCredentialNotFound, Msg: fmt.Sprintf("no credential on file for tenant %q", tenant)}
}

func NewParseError(file, reason string) *Error {
	return &Error{Kind: KindParse, File: file, Reason: reason, Msg: fmt.Sprintf("%s: %s", file, reason)}
}

func NewSchemaInvalid(missing []string) *Error {
	return &Error{Kind: KindSchemaInvalid, MissingFields: missing, Msg: fmt.Sprintf("missing required fields: %v", missing)}
}

func NewValidationFailed(histogram map[string]int) *Error {
	return &Error{Kind: KindValidationFailed, Msg: fmt.Sprintf("validation produced %d distinct error types", len(histogram))}
}

func NewApprovalInvalidated() *Error {
	return &Error{Kind: KindApprovalInvalidated, Msg: "approval fingerprints no longer match attachments"}
}

func NewBackendFailure(n int) *Error {
	return &Error{Kind: KindBackendFailure, Msg: fmt.Sprintf("%d backend operations failed", n)}
}

// As is a convenience wrapper over errors.As for the common case of testing
// whether an error is one of ours and, if so, extracting it.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
