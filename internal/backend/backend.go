// Package backend defines the capability contract implemented by every
// external tracker adapter (GitHub, Shortcut, and the read-only dashboard
// variant), along with the shared error taxonomy and the adapter registry.
package backend

import (
	"context"
	"time"
)

// IssueState is the lifecycle state of an external issue as seen through
// a backend adapter.
type IssueState string

const (
	StateOpen       IssueState = "open"
	StateInProgress IssueState = "in_progress"
	StateBlocked    IssueState = "blocked"
	StateCompleted  IssueState = "completed"
)

// Issue is the backend-neutral view of an external issue or story.
type Issue struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	State     IssueState `json:"state"`
	URL       string     `json:"url,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// Comment is a single comment on an external issue.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkedIssue describes a relationship from one external issue to another.
type LinkedIssue struct {
	ID       string `json:"id"`
	Relation string `json:"relation"` // e.g. "blocks", "sub_issue", "relates_to"
}

// SearchQuery filters issues by state and/or free text. Zero-value fields
// are ignored.
type SearchQuery struct {
	State IssueState
	Text  string
}

// IssueFields carries the writable fields for create/update operations.
// Nil pointer fields are left untouched on update.
type IssueFields struct {
	Title *string
	Body  *string
	State *IssueState
	// CustomFields keys are backend-specific field identifiers (for
	// Shortcut, custom field IDs). Each adapter maps them onto its own
	// custom-field write shape.
	CustomFields map[string]string
}

// Capabilities declares the optional features a backend supports. The
// orchestrator branches on these flags rather than on backend identity.
type Capabilities struct {
	SupportsProjects     bool
	SupportsSubIssues    bool
	SupportsCustomFields bool
	ReadOnly             bool

	// WritableStates lists the issue states the backend can persist on a
	// write. Empty means every IssueState round-trips. Reconciliation
	// must project desired states into this space so a state the backend
	// cannot represent never produces a perpetual diff.
	WritableStates []IssueState
}

// ProjectState maps a state into the backend's writable space. States the
// backend can persist pass through; completed never degrades; every other
// unrepresentable state collapses to open.
func ProjectState(caps Capabilities, state IssueState) IssueState {
	if len(caps.WritableStates) == 0 {
		return state
	}
	for _, s := range caps.WritableStates {
		if s == state {
			return state
		}
	}
	if state == StateCompleted {
		return StateCompleted
	}
	return StateOpen
}

// Backend is the uniform contract every adapter implements. A backend
// lacking a write capability must fail the corresponding call with a
// NotSupportedError naming the operation, never silently no-op.
type Backend interface {
	// Name returns the backend identifier (e.g. "github", "shortcut").
	Name() string

	// Capabilities returns the backend's declared capability flags.
	Capabilities() Capabilities

	// Authenticate establishes credentials for subsequent calls.
	Authenticate(ctx context.Context) error

	// IsAuthenticated reports whether Authenticate has succeeded.
	IsAuthenticated() bool

	// GetIssue fetches a single issue. Fails with NotFoundError when the
	// id does not exist.
	GetIssue(ctx context.Context, id string) (*Issue, error)

	// SearchIssues returns issues matching the query.
	SearchIssues(ctx context.Context, query SearchQuery) ([]Issue, error)

	// ListComments returns the comments on an issue, oldest first.
	ListComments(ctx context.Context, id string) ([]Comment, error)

	// GetLinkedIssues returns issues linked to the given issue.
	GetLinkedIssues(ctx context.Context, id string) ([]LinkedIssue, error)

	// CreateIssue creates a new issue and returns it.
	CreateIssue(ctx context.Context, fields IssueFields) (*Issue, error)

	// UpdateIssue applies the non-nil fields to an existing issue.
	UpdateIssue(ctx context.Context, id string, fields IssueFields) error

	// AddComment posts a comment and returns its id.
	AddComment(ctx context.Context, id string, body string) (string, error)

	// UpdateComment replaces the body of an existing comment.
	UpdateComment(ctx context.Context, issueID, commentID, body string) error

	// LinkIssues records a relationship between two issues.
	LinkIssues(ctx context.Context, fromID, toID, relation string) error
}
