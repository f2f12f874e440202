package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andywolf/beadbridge/internal/broadcast"
	"github.com/andywolf/beadbridge/internal/resolver"
	"github.com/andywolf/beadbridge/internal/tracker"
)

// StateRefresher recomputes dashboard snapshots from the local tracker.
// One snapshot is published per externally-referenced epic, keyed by the
// canonical reference.
type StateRefresher struct {
	tracker tracker.Tracker
	store   *broadcast.StateStore
	nowFunc func() time.Time
}

// NewStateRefresher creates a refresher publishing into store.
func NewStateRefresher(tr tracker.Tracker, store *broadcast.StateStore) *StateRefresher {
	return &StateRefresher{tracker: tr, store: store, nowFunc: time.Now}
}

// Refresh publishes a fresh snapshot for every epic carrying an external
// reference. A ref matched by epics in several repositories gets one
// snapshot with summed metrics.
func (sr *StateRefresher) Refresh(ctx context.Context) error {
	all, err := sr.tracker.GetAllIssues()
	if err != nil {
		return fmt.Errorf("loading issues: %w", err)
	}

	refs := make(map[string]bool)
	repos := make([]string, 0, len(all))
	for repo := range all {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	for _, repo := range repos {
		for _, issue := range all[repo] {
			if issue.IssueType == tracker.TypeEpic && issue.ExternalRef != "" {
				refs[issue.ExternalRef] = true
			}
		}
	}

	res := resolver.New(sr.tracker)
	for _, ref := range sortedKeys(refs) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		agg, err := res.Resolve(resolver.Request{Ref: ref})
		if err != nil {
			return fmt.Errorf("resolving %s: %w", ref, err)
		}

		sr.store.UpdateState(ref, broadcast.IssueState{
			Diagram:   RenderDiagram(agg),
			Metrics:   agg.Metrics,
			Issues:    subtreeIssues(all, agg),
			UpdatedAt: sr.nowFunc(),
		})
	}

	return nil
}

// subtreeIssues collects every issue reachable from the matched epics,
// epics themselves included, in deterministic order.
func subtreeIssues(all map[string][]tracker.Issue, agg *resolver.Aggregate) []tracker.Issue {
	var out []tracker.Issue
	for _, match := range agg.Epics {
		byID := make(map[string]tracker.Issue, len(all[match.Repository]))
		for _, issue := range all[match.Repository] {
			byID[issue.ID] = issue
		}

		seen := make(map[string]bool)
		queue := []string{match.EpicID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if seen[id] {
				continue
			}
			seen[id] = true

			issue, ok := byID[id]
			if !ok {
				continue
			}
			out = append(out, issue)
			queue = append(queue, issue.Children...)
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
