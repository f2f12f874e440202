// Package syncer reconciles local beads with their external issues,
// one-directionally (local to external), producing a per-bead report.
package syncer

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/andywolf/beadbridge/internal/backend"
	"github.com/andywolf/beadbridge/internal/orchestrator"
	"github.com/andywolf/beadbridge/internal/tracker"
)

// Detail status values for SyncReport entries.
const (
	StatusSynced  = "synced"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Detail is one per-bead outcome record. Details preserve input order.
type Detail struct {
	BeadID  string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Report summarizes a sync run. Errors > 0 is the hard-failure signal the
// CLI boundary maps to a nonzero exit status.
type Report struct {
	Synced  int      `json:"synced"`
	Errors  int      `json:"errors"`
	Skipped int      `json:"skipped"`
	Details []Detail `json:"details"`
}

// Ref is a parsed external reference.
type Ref struct {
	Backend    string // "github" or "shortcut"
	Repository string // owner/repo, empty for shortcut
	IssueID    string
}

// ParseRef splits a canonical external reference into its parts.
// Accepted forms: github:{owner/repo}#{number} and shortcut:{number}.
func ParseRef(ref string) (Ref, error) {
	switch {
	case strings.HasPrefix(ref, "github:"):
		rest := strings.TrimPrefix(ref, "github:")
		repo, num, ok := strings.Cut(rest, "#")
		if !ok || repo == "" {
			return Ref{}, &backend.ValidationError{Field: "external_ref", Message: fmt.Sprintf("malformed github ref %q", ref)}
		}
		if _, err := strconv.Atoi(num); err != nil {
			return Ref{}, &backend.ValidationError{Field: "external_ref", Message: fmt.Sprintf("issue number in %q must be numeric", ref)}
		}
		return Ref{Backend: "github", Repository: repo, IssueID: num}, nil
	case strings.HasPrefix(ref, "shortcut:"):
		num := strings.TrimPrefix(ref, "shortcut:")
		if _, err := strconv.Atoi(num); err != nil {
			return Ref{}, &backend.ValidationError{Field: "external_ref", Message: fmt.Sprintf("story id in %q must be numeric", ref)}
		}
		return Ref{Backend: "shortcut", IssueID: num}, nil
	default:
		return Ref{}, &backend.ValidationError{Field: "external_ref", Message: fmt.Sprintf("unknown ref prefix in %q; supported formats: github:{owner/repo}#{number}, shortcut:{number}", ref)}
	}
}

// BackendResolver maps a parsed reference to the backend owning it.
// Implementations may construct and cache backends lazily.
type BackendResolver interface {
	BackendFor(ctx context.Context, ref Ref) (backend.Backend, error)
}

// ProgressSyncer publishes rollup progress for an epic to its external
// issue. The orchestrator is the production implementation.
type ProgressSyncer interface {
	SyncProgress(ctx context.Context, b backend.Backend, req orchestrator.Request) orchestrator.Result
}

// Service reconciles beads against their external issues. Authentication
// is lazy: each backend is authenticated at most once, on first use.
type Service struct {
	tracker  tracker.Tracker
	resolver BackendResolver
	progress ProgressSyncer
	logger   *log.Logger

	mu     sync.Mutex
	authed map[string]bool // keyed by backend name
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithProgress wires the epic progress syncer. When set, every epic bead
// gets its rollup comment refreshed after state reconciliation.
func WithProgress(p ProgressSyncer) Option {
	return func(s *Service) { s.progress = p }
}

// New creates a sync service over the given tracker and backend resolver.
func New(tr tracker.Tracker, res BackendResolver, opts ...Option) *Service {
	s := &Service{tracker: tr, resolver: res, authed: make(map[string]bool)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// SyncBead reconciles a single bead by identifier. The outcome is always a
// report entry; per-bead failures never escape as errors.
func (s *Service) SyncBead(ctx context.Context, repository, beadID string, dryRun bool) *Report {
	report := &Report{Details: []Detail{}}
	bead, err := s.findBead(repository, beadID)
	if err != nil {
		report.add(Detail{BeadID: beadID, Status: StatusError, Message: err.Error()})
		return report
	}
	s.syncOne(ctx, *bead, dryRun, report)
	return report
}

// SyncRepository reconciles every bead in the given local repository, in
// the order the tracker returns them.
func (s *Service) SyncRepository(ctx context.Context, repository string, dryRun bool) (*Report, error) {
	all, err := s.tracker.GetAllIssues()
	if err != nil {
		return nil, fmt.Errorf("loading issues: %w", err)
	}
	beads, ok := all[repository]
	if !ok {
		return nil, &backend.NotFoundError{Kind: "repository", ID: repository}
	}

	report := &Report{Details: []Detail{}}
	for _, bead := range beads {
		s.syncOne(ctx, bead, dryRun, report)
	}
	return report, nil
}

// syncOne pushes one bead's state to its external issue and records the
// outcome. A bead without an external_ref is skipped and reported, never
// silently dropped.
func (s *Service) syncOne(ctx context.Context, bead tracker.Issue, dryRun bool, report *Report) {
	if bead.ExternalRef == "" {
		err := &backend.MissingExternalRefError{BeadID: bead.ID}
		report.add(Detail{BeadID: bead.ID, Status: StatusSkipped, Message: err.Error()})
		return
	}

	ref, err := ParseRef(bead.ExternalRef)
	if err != nil {
		report.add(Detail{BeadID: bead.ID, Status: StatusError, Message: err.Error()})
		return
	}

	b, err := s.resolver.BackendFor(ctx, ref)
	if err != nil {
		report.add(Detail{BeadID: bead.ID, Status: StatusError, Message: err.Error()})
		return
	}

	if err := s.ensureAuthenticated(ctx, b); err != nil {
		report.add(Detail{BeadID: bead.ID, Status: StatusError, Message: err.Error()})
		return
	}

	external, err := b.GetIssue(ctx, ref.IssueID)
	if err != nil {
		report.add(Detail{BeadID: bead.ID, Status: StatusError, Message: err.Error()})
		return
	}

	// Compare in the backend's writable-state space. A local state the
	// backend cannot represent must not produce a diff every run.
	caps := b.Capabilities()
	want := backend.ProjectState(caps, backend.IssueState(bead.State))
	have := backend.ProjectState(caps, external.State)

	var msg string
	switch {
	case have == want:
		msg = "already up to date"
	case dryRun:
		msg = fmt.Sprintf("would update %s state %s -> %s", bead.ExternalRef, have, want)
	default:
		if err := b.UpdateIssue(ctx, ref.IssueID, backend.IssueFields{State: &want}); err != nil {
			report.add(Detail{BeadID: bead.ID, Status: StatusError, Message: err.Error()})
			return
		}
		s.logf("synced %s to %s (state %s)", bead.ID, bead.ExternalRef, want)
		msg = fmt.Sprintf("updated %s state to %s", bead.ExternalRef, want)
	}

	if bead.IssueType == tracker.TypeEpic && s.progress != nil {
		progressMsg, err := s.syncProgress(ctx, b, ref, dryRun)
		if err != nil {
			report.add(Detail{BeadID: bead.ID, Status: StatusError,
				Message: fmt.Sprintf("%s; progress: %s", msg, err)})
			return
		}
		msg += "; " + progressMsg
	}

	report.add(Detail{BeadID: bead.ID, Status: StatusSynced, Message: msg})
}

// syncProgress refreshes the rollup comment on an epic's external issue.
// Shortcut refs carry no repository; the backend name stands in so the
// ref canonicalizes back to shortcut:{n}.
func (s *Service) syncProgress(ctx context.Context, b backend.Backend, ref Ref, dryRun bool) (string, error) {
	repo := ref.Repository
	if repo == "" {
		repo = ref.Backend
	}
	res := s.progress.SyncProgress(ctx, b, orchestrator.Request{
		Repository:  repo,
		IssueNumber: ref.IssueID,
		DryRun:      dryRun,
	})
	if !res.Success {
		if res.Error != nil {
			return "", fmt.Errorf("%s", res.Error.Message)
		}
		return "", fmt.Errorf("progress sync failed")
	}
	switch {
	case res.DryRun:
		return "would refresh progress comment", nil
	case res.CommentCreated:
		return fmt.Sprintf("progress comment created (%d%%)", res.PercentComplete), nil
	case res.CommentUpdated:
		return fmt.Sprintf("progress comment updated (%d%%)", res.PercentComplete), nil
	default:
		return "progress synced", nil
	}
}

// ensureAuthenticated authenticates each backend once, on first use.
func (s *Service) ensureAuthenticated(ctx context.Context, b backend.Backend) error {
	s.mu.Lock()
	done := s.authed[b.Name()]
	s.mu.Unlock()
	if done || b.IsAuthenticated() {
		return nil
	}

	if err := b.Authenticate(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.authed[b.Name()] = true
	s.mu.Unlock()
	return nil
}

func (s *Service) findBead(repository, beadID string) (*tracker.Issue, error) {
	all, err := s.tracker.GetAllIssues()
	if err != nil {
		return nil, fmt.Errorf("loading issues: %w", err)
	}
	beads, ok := all[repository]
	if !ok {
		return nil, &backend.NotFoundError{Kind: "repository", ID: repository}
	}
	for i := range beads {
		if beads[i].ID == beadID {
			return &beads[i], nil
		}
	}
	return nil, &backend.NotFoundError{Kind: "bead", ID: beadID}
}

func (r *Report) add(d Detail) {
	r.Details = append(r.Details, d)
	switch d.Status {
	case StatusSynced:
		r.Synced++
	case StatusError:
		r.Errors++
	case StatusSkipped:
		r.Skipped++
	}
}
