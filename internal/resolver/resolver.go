// Package resolver maps external references to local epics and aggregates
// progress status across repositories.
package resolver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/andywolf/beadbridge/internal/backend"
	"github.com/andywolf/beadbridge/internal/tracker"
)

// Request identifies an external issue either by explicit canonical ref or
// by a (repository, issueNumber) pair. An explicit ref wins.
type Request struct {
	Ref         string
	Repository  string
	IssueNumber string
}

// EpicMatch records one local epic mapped to the resolved reference.
type EpicMatch struct {
	Repository string `json:"repository"`
	EpicID     string `json:"epic_id"`
}

// Aggregate is the resolution result: the canonical reference, every
// matching epic, and the summed metrics across all matches.
type Aggregate struct {
	Ref     string             `json:"ref"`
	Epics   []EpicMatch        `json:"epics"`
	Metrics tracker.EpicStatus `json:"metrics"`
}

// Resolver scans the local tracker for epics carrying a given external ref.
type Resolver struct {
	tracker tracker.Tracker
}

// New creates a resolver over the given tracker.
func New(tr tracker.Tracker) *Resolver {
	return &Resolver{tracker: tr}
}

// Canonicalize builds the canonical reference string. Priority: an explicit
// ref is returned verbatim; otherwise the ref is inferred from repository
// and issueNumber. A repository that case-insensitively equals "shortcut"
// or starts with "shortcut:" yields shortcut:{n}; anything else yields
// github:{repository}#{n}.
func Canonicalize(req Request) (string, error) {
	if req.Ref != "" {
		return req.Ref, nil
	}

	if req.Repository == "" {
		return "", &backend.ValidationError{Field: "repository", Message: "repository or explicit ref is required"}
	}

	n, err := strconv.Atoi(req.IssueNumber)
	if err != nil {
		return "", &backend.ValidationError{Field: "issueNumber", Message: fmt.Sprintf("must be numeric, got %q", req.IssueNumber)}
	}

	lower := strings.ToLower(req.Repository)
	if lower == "shortcut" || strings.HasPrefix(lower, "shortcut:") {
		return fmt.Sprintf("shortcut:%d", n), nil
	}
	return fmt.Sprintf("github:%s#%d", req.Repository, n), nil
}

// Resolve canonicalizes the request, finds every epic across all configured
// repositories whose external_ref exactly matches (case-sensitive), and sums
// their rollups. Zero matches is a valid terminal outcome: the result has an
// empty epic list and all-zero metrics, never an error.
func (r *Resolver) Resolve(req Request) (*Aggregate, error) {
	ref, err := Canonicalize(req)
	if err != nil {
		return nil, err
	}

	all, err := r.tracker.GetAllIssues()
	if err != nil {
		return nil, fmt.Errorf("loading issues: %w", err)
	}

	// Deterministic scan order across repositories
	repos := make([]string, 0, len(all))
	for repo := range all {
		repos = append(repos, repo)
	}
	sort.Strings(repos)

	agg := &Aggregate{Ref: ref, Epics: []EpicMatch{}}
	for _, repo := range repos {
		for _, issue := range all[repo] {
			if issue.IssueType != tracker.TypeEpic || issue.ExternalRef != ref {
				continue
			}
			agg.Epics = append(agg.Epics, EpicMatch{Repository: repo, EpicID: issue.ID})

			status, err := r.tracker.GetEpicStatus(repo, issue.ID)
			if err != nil {
				return nil, fmt.Errorf("rollup for %s/%s: %w", repo, issue.ID, err)
			}
			mergeStatus(&agg.Metrics, status)
		}
	}

	agg.Metrics.PercentComplete = tracker.PercentComplete(agg.Metrics.Completed, agg.Metrics.Total)
	return agg, nil
}

// mergeStatus adds src counters into dst and concatenates the blocker and
// discovered lists. No deduplication: shared issues are counted once per
// epic that reaches them.
func mergeStatus(dst *tracker.EpicStatus, src *tracker.EpicStatus) {
	dst.Total += src.Total
	dst.Completed += src.Completed
	dst.InProgress += src.InProgress
	dst.Blocked += src.Blocked
	dst.NotStarted += src.NotStarted
	dst.Blockers = append(dst.Blockers, src.Blockers...)
	dst.Discovered = append(dst.Discovered, src.Discovered...)
}
