// Package tracker provides read access to the local beads issue datastore.
// Each configured repository keeps its issues in a JSONL file; the tracker
// loads them and computes recursive epic status rollups.
package tracker

import (
	"math"
	"time"
)

// IssueState is the lifecycle state of a local bead.
type IssueState string

const (
	StateOpen       IssueState = "open"
	StateInProgress IssueState = "in_progress"
	StateBlocked    IssueState = "blocked"
	StateCompleted  IssueState = "completed"
)

// IssueType categorizes a bead.
type IssueType string

const (
	TypeTask IssueType = "task"
	TypeEpic IssueType = "epic"
	TypeBug  IssueType = "bug"
)

// Issue represents a bead in the local tracker.
type Issue struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	State          IssueState `json:"state"`
	IssueType      IssueType  `json:"issue_type"`
	ExternalRef    string     `json:"external_ref,omitempty"`
	Parent         string     `json:"parent,omitempty"`
	Children       []string   `json:"children,omitempty"`
	DiscoveredFrom string     `json:"discovered_from,omitempty"`
	CreatedAt      time.Time  `json:"created_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty"`
}

// EpicStatus is the recursive progress rollup for an epic's subtree.
// Blockers and Discovered are ordered summaries; aggregation across epics
// concatenates them without deduplication (documented policy: a shared
// underlying issue is counted once per epic that reaches it).
type EpicStatus struct {
	Total           int      `json:"total"`
	Completed       int      `json:"completed"`
	InProgress      int      `json:"in_progress"`
	Blocked         int      `json:"blocked"`
	NotStarted      int      `json:"not_started"`
	PercentComplete int      `json:"percent_complete"`
	Blockers        []string `json:"blockers,omitempty"`
	Discovered      []string `json:"discovered,omitempty"`
}

// PercentComplete returns round(completed/total*100), defined as 0 when
// total is 0.
func PercentComplete(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Tracker is the local datastore collaborator consumed by the resolver and
// sync service.
type Tracker interface {
	// GetAllIssues returns every configured repository's issues, keyed by
	// repository name, in stored order.
	GetAllIssues() (map[string][]Issue, error)

	// GetEpicStatus computes the recursive rollup for one epic.
	GetEpicStatus(repository, epicID string) (*EpicStatus, error)
}
