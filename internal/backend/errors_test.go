package backend

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNotSupportedError_NamesOperation(t *testing.T) {
	err := &NotSupportedError{Backend: "dashboard", Operation: "createIssue"}
	if !strings.Contains(err.Error(), "createIssue") {
		t.Errorf("NotSupportedError message %q does not name the operation", err.Error())
	}
	if !strings.Contains(err.Error(), "dashboard") {
		t.Errorf("NotSupportedError message %q does not name the backend", err.Error())
	}
}

func TestMissingExternalRef_Remediation(t *testing.T) {
	err := &MissingExternalRefError{BeadID: "fe-42"}
	msg := err.Error()
	for _, want := range []string{"fe-42", "github:", "shortcut:"} {
		if !strings.Contains(msg, want) {
			t.Errorf("remediation text %q missing %q", msg, want)
		}
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"validation", &ValidationError{Field: "issueNumber", Message: "must be numeric"}, IsValidation, true},
		{"validation wrapped", fmt.Errorf("resolve: %w", &ValidationError{Message: "bad"}), IsValidation, true},
		{"not found", &NotFoundError{Kind: "issue", ID: "9"}, IsNotFound, true},
		{"not supported", &NotSupportedError{Backend: "dashboard", Operation: "updateIssue"}, IsNotSupported, true},
		{"missing ref", &MissingExternalRefError{BeadID: "a"}, IsMissingExternalRef, true},
		{"auth", &AuthError{Backend: "github", Reason: "expired token"}, IsAuth, true},
		{"cross-type", &NotFoundError{Kind: "issue", ID: "9"}, IsValidation, false},
		{"plain error", errors.New("boom"), IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("predicate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSyncError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &SyncError{Message: "posting comment", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("SyncError should unwrap to the downstream error")
	}
	if !strings.Contains(err.Error(), "posting comment") {
		t.Errorf("SyncError message %q missing context", err.Error())
	}
}
