// Package orchestrator computes progress diffs and performs idempotent
// external writes: one bridge-signed comment per external issue, updated in
// place on subsequent syncs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/andywolf/beadbridge/internal/backend"
	"github.com/andywolf/beadbridge/internal/resolver"
)

// commentMarker identifies bridge-authored comments. It renders invisibly
// as an HTML comment; its presence is what makes repeat syncs update
// instead of append.
const commentMarker = "<!-- beadbridge:progress -->"

// StorySyncer is the dedicated Shortcut story-sync collaborator. When
// configured, Shortcut beads bypass the generic comment path.
type StorySyncer interface {
	SyncStory(ctx context.Context, issueNumber, narrative string) error
}

// ResultError carries a classified failure across the orchestration
// boundary.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the structured outcome of one progress sync. Classifiable
// failures land here; only programmer/configuration errors are raised.
type Result struct {
	Success         bool         `json:"success"`
	Error           *ResultError `json:"error,omitempty"`
	Ref             string       `json:"ref,omitempty"`
	PercentComplete int          `json:"percent_complete"`
	CommentUpdated  bool         `json:"comment_updated"`
	CommentCreated  bool         `json:"comment_created"`
	FieldsUpdated   bool         `json:"fields_updated"`
	DryRun          bool         `json:"dry_run,omitempty"`
}

// Request identifies the external issue to sync progress to.
type Request struct {
	Repository  string
	IssueNumber string
	// Narrative is optional free text handed to the story syncer.
	Narrative string
	DryRun    bool
}

// Orchestrator drives the per-issue progress sync.
type Orchestrator struct {
	resolver    *resolver.Resolver
	storySyncer StorySyncer
	logger      *log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStorySyncer wires the dedicated Shortcut collaborator.
func WithStorySyncer(s StorySyncer) Option {
	return func(o *Orchestrator) { o.storySyncer = s }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator over the given resolver.
func New(res *resolver.Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{resolver: res}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}

func failure(code, message string) Result {
	return Result{Success: false, Error: &ResultError{Code: code, Message: message}}
}

// classify maps an error from the backend or resolver to a result error
// code.
func classify(err error) *ResultError {
	switch {
	case backend.IsValidation(err):
		return &ResultError{Code: "validation", Message: err.Error()}
	case backend.IsNotFound(err):
		return &ResultError{Code: "not_found", Message: err.Error()}
	case backend.IsAuth(err):
		return &ResultError{Code: "auth", Message: err.Error()}
	default:
		return &ResultError{Code: "sync", Message: err.Error()}
	}
}

// SyncProgress recomputes aggregate status for (repository, issueNumber)
// and pushes it to the external issue through b. Missing input
// short-circuits with a validation result before any I/O. Repeated calls
// under unchanged state update the existing bridge comment rather than
// appending a new one.
func (o *Orchestrator) SyncProgress(ctx context.Context, b backend.Backend, req Request) Result {
	if req.Repository == "" {
		return failure("validation", "repository is required")
	}
	if req.IssueNumber == "" {
		return failure("validation", "issueNumber is required")
	}

	// Shortcut beads with a configured story syncer take the dedicated path
	if b.Name() == "shortcut" && o.storySyncer != nil {
		if req.DryRun {
			return Result{Success: true, DryRun: true}
		}
		if err := o.storySyncer.SyncStory(ctx, req.IssueNumber, req.Narrative); err != nil {
			return Result{Success: false, Error: classify(err)}
		}
		return Result{Success: true}
	}

	agg, err := o.resolver.Resolve(resolver.Request{
		Repository:  req.Repository,
		IssueNumber: req.IssueNumber,
	})
	if err != nil {
		return Result{Success: false, Error: classify(err)}
	}

	body := RenderSummary(agg) + "\n" + commentMarker

	result := Result{
		Success:         true,
		Ref:             agg.Ref,
		PercentComplete: agg.Metrics.PercentComplete,
		DryRun:          req.DryRun,
	}

	if req.DryRun {
		return result
	}

	if err := o.upsertComment(ctx, b, req.IssueNumber, body, &result); err != nil {
		return Result{Success: false, Error: classify(err), Ref: agg.Ref}
	}

	if b.Capabilities().SupportsCustomFields {
		err := b.UpdateIssue(ctx, req.IssueNumber, backend.IssueFields{
			CustomFields: map[string]string{"progress": strconv.Itoa(agg.Metrics.PercentComplete)},
		})
		switch {
		case err == nil:
			result.FieldsUpdated = true
		case backend.IsNotSupported(err):
			// Capability flag lied; treat like an unsupported backend
			o.logf("backend %s rejected custom fields despite capability flag", b.Name())
		default:
			return Result{Success: false, Error: classify(err), Ref: agg.Ref}
		}
	}

	return result
}

// upsertComment updates the most recent bridge-signed comment on the
// issue, or creates one when none exists.
func (o *Orchestrator) upsertComment(ctx context.Context, b backend.Backend, issueID, body string, result *Result) error {
	comments, err := b.ListComments(ctx, issueID)
	if err != nil {
		return wrapDownstream("listing comments", err)
	}

	// Comments arrive oldest first; the last marked one is the most recent
	var existing string
	for _, comment := range comments {
		if strings.Contains(comment.Body, commentMarker) {
			existing = comment.ID
		}
	}

	if existing != "" {
		if err := b.UpdateComment(ctx, issueID, existing, body); err != nil {
			return wrapDownstream("updating progress comment", err)
		}
		result.CommentUpdated = true
		o.logf("updated progress comment %s on %s", existing, issueID)
		return nil
	}

	id, err := b.AddComment(ctx, issueID, body)
	if err != nil {
		return wrapDownstream("posting progress comment", err)
	}
	result.CommentCreated = true
	o.logf("posted progress comment %s on %s", id, issueID)
	return nil
}

// wrapDownstream keeps typed failures classifiable while adding context to
// everything else.
func wrapDownstream(action string, err error) error {
	if backend.IsNotFound(err) || backend.IsAuth(err) || backend.IsValidation(err) {
		return err
	}
	var ns *backend.NotSupportedError
	if errors.As(err, &ns) {
		return err
	}
	return &backend.SyncError{Message: fmt.Sprintf("%s failed", action), Err: err}
}
