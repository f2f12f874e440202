package broadcast

import (
	"context"
	"sort"
	"strings"

	"github.com/andywolf/beadbridge/internal/backend"
	"github.com/andywolf/beadbridge/internal/tracker"
)

// DashboardBackend exposes the live-state store through the Backend
// capability interface as a read-only variant. Every write fails with a
// NotSupportedError naming the operation.
type DashboardBackend struct {
	store *StateStore
}

// NewDashboardBackend wraps a state store.
func NewDashboardBackend(store *StateStore) *DashboardBackend {
	return &DashboardBackend{store: store}
}

func (d *DashboardBackend) Name() string { return "dashboard" }

func (d *DashboardBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{ReadOnly: true}
}

// Authenticate is a no-op: the dashboard reads process-local state.
func (d *DashboardBackend) Authenticate(ctx context.Context) error { return nil }

func (d *DashboardBackend) IsAuthenticated() bool { return true }

func toBackendIssue(issue tracker.Issue) backend.Issue {
	return backend.Issue{
		ID:        issue.ID,
		Title:     issue.Title,
		Body:      issue.Description,
		State:     backend.IssueState(issue.State),
		UpdatedAt: issue.UpdatedAt,
	}
}

// GetIssue looks the id up first as a snapshot key, then inside that
// snapshot's issue list. Both misses are NotFoundError.
func (d *DashboardBackend) GetIssue(ctx context.Context, id string) (*backend.Issue, error) {
	state, ok := d.store.GetState(id)
	if !ok {
		return nil, &backend.NotFoundError{Kind: "issue", ID: id}
	}

	for _, issue := range state.Issues {
		if issue.ID == id {
			out := toBackendIssue(issue)
			return &out, nil
		}
	}
	return nil, &backend.NotFoundError{Kind: "issue", ID: id}
}

// SearchIssues filters the union of all known snapshots' issues by state
// and case-insensitive text match on title and description.
func (d *DashboardBackend) SearchIssues(ctx context.Context, query backend.SearchQuery) ([]backend.Issue, error) {
	text := strings.ToLower(query.Text)

	var results []backend.Issue
	seen := make(map[string]bool)

	// Deterministic order across snapshots
	all := d.store.All()
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, issue := range all[key].Issues {
			if seen[issue.ID] {
				continue
			}
			if query.State != "" && backend.IssueState(issue.State) != query.State {
				continue
			}
			if text != "" &&
				!strings.Contains(strings.ToLower(issue.Title), text) &&
				!strings.Contains(strings.ToLower(issue.Description), text) {
				continue
			}
			seen[issue.ID] = true
			results = append(results, toBackendIssue(issue))
		}
	}
	return results, nil
}

// ListComments returns an empty list: snapshots carry no comment data.
func (d *DashboardBackend) ListComments(ctx context.Context, id string) ([]backend.Comment, error) {
	if _, ok := d.store.GetState(id); !ok {
		return nil, &backend.NotFoundError{Kind: "issue", ID: id}
	}
	return []backend.Comment{}, nil
}

// GetLinkedIssues reports parent/child links recorded in the snapshot.
func (d *DashboardBackend) GetLinkedIssues(ctx context.Context, id string) ([]backend.LinkedIssue, error) {
	state, ok := d.store.GetState(id)
	if !ok {
		return nil, &backend.NotFoundError{Kind: "issue", ID: id}
	}

	var linked []backend.LinkedIssue
	for _, issue := range state.Issues {
		if issue.ID != id {
			continue
		}
		for _, child := range issue.Children {
			linked = append(linked, backend.LinkedIssue{ID: child, Relation: "sub_issue"})
		}
	}
	return linked, nil
}

func (d *DashboardBackend) CreateIssue(ctx context.Context, fields backend.IssueFields) (*backend.Issue, error) {
	return nil, &backend.NotSupportedError{Backend: "dashboard", Operation: "createIssue"}
}

func (d *DashboardBackend) UpdateIssue(ctx context.Context, id string, fields backend.IssueFields) error {
	return &backend.NotSupportedError{Backend: "dashboard", Operation: "updateIssue"}
}

func (d *DashboardBackend) AddComment(ctx context.Context, id string, body string) (string, error) {
	return "", &backend.NotSupportedError{Backend: "dashboard", Operation: "addComment"}
}

func (d *DashboardBackend) UpdateComment(ctx context.Context, issueID, commentID, body string) error {
	return &backend.NotSupportedError{Backend: "dashboard", Operation: "updateComment"}
}

func (d *DashboardBackend) LinkIssues(ctx context.Context, fromID, toID, relation string) error {
	return &backend.NotSupportedError{Backend: "dashboard", Operation: "linkIssues"}
}
