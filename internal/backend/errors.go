package backend

import (
	"errors"
	"fmt"
)

// ValidationError reports bad or missing caller input. It is surfaced
// immediately and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NotFoundError reports an absent entity.
type NotFoundError struct {
	Kind string // e.g. "issue", "comment"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NotSupportedError reports a capability gap. It is an expected condition
// that drives orchestrator branching, not an exceptional one.
type NotSupportedError struct {
	Backend   string
	Operation string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("backend %s does not support %s", e.Backend, e.Operation)
}

// MissingExternalRefError reports a bead that has no external mapping.
// Remediation lists the supported reference formats.
type MissingExternalRefError struct {
	BeadID string
}

func (e *MissingExternalRefError) Error() string {
	return fmt.Sprintf("bead %s has no external reference; set one of the supported formats: github:{owner/repo}#{number} or shortcut:{number}", e.BeadID)
}

// AuthError reports an invalid or expired credential.
type AuthError struct {
	Backend string
	Reason  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s", e.Backend, e.Reason)
}

// SyncError wraps an opaque downstream failure. Only the message crosses
// the orchestration boundary.
type SyncError struct {
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsNotSupported reports whether err is a NotSupportedError.
func IsNotSupported(err error) bool {
	var ns *NotSupportedError
	return errors.As(err, &ns)
}

// IsMissingExternalRef reports whether err is a MissingExternalRefError.
func IsMissingExternalRef(err error) bool {
	var me *MissingExternalRefError
	return errors.As(err, &me)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
