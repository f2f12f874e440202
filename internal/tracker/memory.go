package tracker

import "fmt"

// MemoryTracker serves issues from an in-memory map. Used by tests and by
// the dashboard's snapshot replay path.
type MemoryTracker struct {
	issues map[string][]Issue
}

// NewMemoryTracker creates a tracker over the given repository->issues map.
func NewMemoryTracker(issues map[string][]Issue) *MemoryTracker {
	return &MemoryTracker{issues: issues}
}

func (t *MemoryTracker) GetAllIssues() (map[string][]Issue, error) {
	out := make(map[string][]Issue, len(t.issues))
	for repo, list := range t.issues {
		copied := make([]Issue, len(list))
		copy(copied, list)
		out[repo] = copied
	}
	return out, nil
}

func (t *MemoryTracker) GetEpicStatus(repository, epicID string) (*EpicStatus, error) {
	issues, ok := t.issues[repository]
	if !ok {
		return nil, fmt.Errorf("unknown repository: %s", repository)
	}
	return RollupStatus(issues, epicID)
}
