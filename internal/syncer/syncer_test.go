package syncer

import (
	"context"
	"strings"
	"testing"

	"github.com/andywolf/beadbridge/internal/backend"
	"github.com/andywolf/beadbridge/internal/orchestrator"
	"github.com/andywolf/beadbridge/internal/tracker"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    Ref
		wantErr bool
	}{
		{"github", "github:org/repo#12", Ref{Backend: "github", Repository: "org/repo", IssueID: "12"}, false},
		{"shortcut", "shortcut:34", Ref{Backend: "shortcut", IssueID: "34"}, false},
		{"github missing number", "github:org/repo", Ref{}, true},
		{"github non-numeric", "github:org/repo#abc", Ref{}, true},
		{"shortcut non-numeric", "shortcut:abc", Ref{}, true},
		{"unknown prefix", "jira:ABC-1", Ref{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !backend.IsValidation(err) {
					t.Errorf("error %v is not a ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRef(%q) error: %v", tt.ref, err)
			}
			if got != tt.want {
				t.Errorf("ParseRef(%q) = %+v, want %+v", tt.ref, got, tt.want)
			}
		})
	}
}

// fakeBackend implements backend.Backend with minimal programmable state.
type fakeBackend struct {
	name      string
	caps      backend.Capabilities
	authed    bool
	authCalls int
	authErr   error
	issues    map[string]*backend.Issue
	updates   map[string]backend.IssueFields
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{
		name:    name,
		issues:  make(map[string]*backend.Issue),
		updates: make(map[string]backend.IssueFields),
	}
}

func (f *fakeBackend) Name() string                       { return f.name }
func (f *fakeBackend) Capabilities() backend.Capabilities { return f.caps }
func (f *fakeBackend) Authenticate(ctx context.Context) error {
	f.authCalls++
	if f.authErr != nil {
		return f.authErr
	}
	f.authed = true
	return nil
}
func (f *fakeBackend) IsAuthenticated() bool { return f.authed }
func (f *fakeBackend) GetIssue(ctx context.Context, id string) (*backend.Issue, error) {
	if iss, ok := f.issues[id]; ok {
		return iss, nil
	}
	return nil, &backend.NotFoundError{Kind: "issue", ID: id}
}
func (f *fakeBackend) SearchIssues(ctx context.Context, q backend.SearchQuery) ([]backend.Issue, error) {
	return nil, nil
}
func (f *fakeBackend) ListComments(ctx context.Context, id string) ([]backend.Comment, error) {
	return nil, nil
}
func (f *fakeBackend) GetLinkedIssues(ctx context.Context, id string) ([]backend.LinkedIssue, error) {
	return nil, nil
}
func (f *fakeBackend) CreateIssue(ctx context.Context, fields backend.IssueFields) (*backend.Issue, error) {
	return nil, nil
}
func (f *fakeBackend) UpdateIssue(ctx context.Context, id string, fields backend.IssueFields) error {
	f.updates[id] = fields
	return nil
}
func (f *fakeBackend) AddComment(ctx context.Context, id, body string) (string, error) {
	return "", nil
}
func (f *fakeBackend) UpdateComment(ctx context.Context, issueID, commentID, body string) error {
	return nil
}
func (f *fakeBackend) LinkIssues(ctx context.Context, fromID, toID, relation string) error {
	return nil
}

// fakeResolver hands out pre-built backends by type.
type fakeResolver struct {
	backends map[string]backend.Backend
}

func (r *fakeResolver) BackendFor(ctx context.Context, ref Ref) (backend.Backend, error) {
	b, ok := r.backends[ref.Backend]
	if !ok {
		return nil, &backend.NotFoundError{Kind: "backend", ID: ref.Backend}
	}
	return b, nil
}

// fakeProgress records progress sync requests and replies with a canned
// result.
type fakeProgress struct {
	calls  []orchestrator.Request
	result orchestrator.Result
}

func (p *fakeProgress) SyncProgress(ctx context.Context, b backend.Backend, req orchestrator.Request) orchestrator.Result {
	p.calls = append(p.calls, req)
	return p.result
}

func testService(gh *fakeBackend, beads []tracker.Issue, opts ...Option) *Service {
	tr := tracker.NewMemoryTracker(map[string][]tracker.Issue{"local": beads})
	return New(tr, &fakeResolver{backends: map[string]backend.Backend{"github": gh, "shortcut": gh}}, opts...)
}

func TestSyncBead_UpdatesExternalState(t *testing.T) {
	gh := newFakeBackend("github")
	gh.issues["12"] = &backend.Issue{ID: "12", State: backend.StateOpen}
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", State: tracker.StateCompleted, ExternalRef: "github:org/repo#12"},
	})

	report := svc.SyncBead(context.Background(), "local", "b1", false)
	if report.Synced != 1 || report.Errors != 0 || report.Skipped != 0 {
		t.Fatalf("report = %+v", report)
	}
	fields, ok := gh.updates["12"]
	if !ok || fields.State == nil || *fields.State != backend.StateCompleted {
		t.Errorf("external update = %+v", fields)
	}
	if gh.authCalls != 1 {
		t.Errorf("auth calls = %d, want 1", gh.authCalls)
	}
}

func TestSyncBead_MissingExternalRefSkipped(t *testing.T) {
	gh := newFakeBackend("github")
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", State: tracker.StateOpen},
	})

	report := svc.SyncBead(context.Background(), "local", "b1", false)
	if report.Synced != 0 || report.Errors != 0 || report.Skipped != 1 {
		t.Fatalf("report = %+v, want exactly one skip", report)
	}
	if len(report.Details) != 1 {
		t.Fatalf("details = %+v", report.Details)
	}
	detail := report.Details[0]
	if detail.Status != StatusSkipped {
		t.Errorf("status = %q", detail.Status)
	}
	// Remediation must name the supported formats
	for _, want := range []string{"github:{owner/repo}#{number}", "shortcut:{number}"} {
		if !strings.Contains(detail.Message, want) {
			t.Errorf("detail %q missing remediation %q", detail.Message, want)
		}
	}
}

func TestSyncBead_UnknownBead(t *testing.T) {
	svc := testService(newFakeBackend("github"), nil)

	report := svc.SyncBead(context.Background(), "local", "nope", false)
	if report.Errors != 1 {
		t.Fatalf("report = %+v, want one error", report)
	}
}

func TestSyncBead_DryRunSkipsWrites(t *testing.T) {
	gh := newFakeBackend("github")
	gh.issues["12"] = &backend.Issue{ID: "12", State: backend.StateOpen}
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", State: tracker.StateCompleted, ExternalRef: "github:org/repo#12"},
	})

	report := svc.SyncBead(context.Background(), "local", "b1", true)
	if report.Synced != 1 {
		t.Fatalf("report = %+v, dry run must compute the same plan", report)
	}
	if len(gh.updates) != 0 {
		t.Error("dry run issued external writes")
	}
	if !strings.Contains(report.Details[0].Message, "would update") {
		t.Errorf("detail = %q", report.Details[0].Message)
	}
}

func TestSyncBead_AlreadyUpToDate(t *testing.T) {
	gh := newFakeBackend("github")
	gh.issues["12"] = &backend.Issue{ID: "12", State: backend.StateCompleted}
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", State: tracker.StateCompleted, ExternalRef: "github:org/repo#12"},
	})

	report := svc.SyncBead(context.Background(), "local", "b1", false)
	if report.Synced != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(gh.updates) != 0 {
		t.Error("no-op sync must not write")
	}
}

func TestSyncRepository_MixedOutcomes(t *testing.T) {
	gh := newFakeBackend("github")
	gh.issues["1"] = &backend.Issue{ID: "1", State: backend.StateOpen}
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", State: tracker.StateCompleted, ExternalRef: "github:org/repo#1"},
		{ID: "b2", State: tracker.StateOpen}, // no ref
		{ID: "b3", State: tracker.StateOpen, ExternalRef: "github:org/repo#404"},
		{ID: "b4", State: tracker.StateOpen, ExternalRef: "jira:ABC-1"},
	})

	report, err := svc.SyncRepository(context.Background(), "local", false)
	if err != nil {
		t.Fatalf("SyncRepository() error: %v", err)
	}
	if report.Synced != 1 || report.Skipped != 1 || report.Errors != 2 {
		t.Fatalf("report = %+v", report)
	}
	// Details preserve bead order
	order := make([]string, 0, len(report.Details))
	for _, d := range report.Details {
		order = append(order, d.BeadID+":"+d.Status)
	}
	want := []string{"b1:synced", "b2:skipped", "b3:error", "b4:error"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("details[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestSyncRepository_UnknownRepository(t *testing.T) {
	svc := testService(newFakeBackend("github"), nil)

	_, err := svc.SyncRepository(context.Background(), "missing", false)
	if !backend.IsNotFound(err) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestAuthenticateOncePerBackend(t *testing.T) {
	gh := newFakeBackend("github")
	gh.issues["1"] = &backend.Issue{ID: "1", State: backend.StateOpen}
	gh.issues["2"] = &backend.Issue{ID: "2", State: backend.StateOpen}
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", State: tracker.StateCompleted, ExternalRef: "github:org/repo#1"},
		{ID: "b2", State: tracker.StateCompleted, ExternalRef: "github:org/repo#2"},
	})

	if _, err := svc.SyncRepository(context.Background(), "local", false); err != nil {
		t.Fatal(err)
	}
	if gh.authCalls != 1 {
		t.Errorf("auth calls = %d, want 1", gh.authCalls)
	}
}

func TestAuthFailureReported(t *testing.T) {
	gh := newFakeBackend("github")
	gh.authErr = &backend.AuthError{Backend: "github", Reason: "bad token"}
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", State: tracker.StateCompleted, ExternalRef: "github:org/repo#1"},
	})

	report := svc.SyncBead(context.Background(), "local", "b1", false)
	if report.Errors != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Details[0].Message, "authentication failed") {
		t.Errorf("detail = %q", report.Details[0].Message)
	}
}

func TestSyncBead_UnrepresentableStateIsNoOp(t *testing.T) {
	// GitHub issues only persist open and completed. A bead parked in a
	// richer local state must read back as in sync, not rewrite the issue
	// on every run.
	gh := newFakeBackend("github")
	gh.caps = backend.Capabilities{WritableStates: []backend.IssueState{backend.StateOpen, backend.StateCompleted}}
	gh.issues["12"] = &backend.Issue{ID: "12", State: backend.StateOpen}
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", State: tracker.StateInProgress, ExternalRef: "github:org/repo#12"},
		{ID: "b2", State: tracker.StateBlocked, ExternalRef: "github:org/repo#12"},
	})

	report, err := svc.SyncRepository(context.Background(), "local", false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Synced != 2 || report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}
	for _, d := range report.Details {
		if d.Message != "already up to date" {
			t.Errorf("%s: message = %q", d.BeadID, d.Message)
		}
	}
	if len(gh.updates) != 0 {
		t.Errorf("unexpected writes: %+v", gh.updates)
	}
}

func TestSyncBead_WritesProjectedState(t *testing.T) {
	gh := newFakeBackend("github")
	gh.caps = backend.Capabilities{WritableStates: []backend.IssueState{backend.StateOpen, backend.StateCompleted}}
	gh.issues["12"] = &backend.Issue{ID: "12", State: backend.StateCompleted}
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", State: tracker.StateBlocked, ExternalRef: "github:org/repo#12"},
	})

	report := svc.SyncBead(context.Background(), "local", "b1", false)
	if report.Synced != 1 {
		t.Fatalf("report = %+v", report)
	}
	fields, ok := gh.updates["12"]
	if !ok || fields.State == nil || *fields.State != backend.StateOpen {
		t.Errorf("external update = %+v, want projected state %q", fields, backend.StateOpen)
	}
}

func TestSyncEpic_RefreshesProgress(t *testing.T) {
	gh := newFakeBackend("github")
	gh.issues["12"] = &backend.Issue{ID: "12", State: backend.StateOpen}
	progress := &fakeProgress{result: orchestrator.Result{Success: true, CommentUpdated: true, PercentComplete: 40}}
	svc := testService(gh, []tracker.Issue{
		{ID: "e1", IssueType: tracker.TypeEpic, State: tracker.StateOpen, ExternalRef: "github:org/repo#12"},
	}, WithProgress(progress))

	report := svc.SyncBead(context.Background(), "local", "e1", false)
	if report.Synced != 1 || report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(progress.calls) != 1 {
		t.Fatalf("progress calls = %d, want 1", len(progress.calls))
	}
	req := progress.calls[0]
	if req.Repository != "org/repo" || req.IssueNumber != "12" || req.DryRun {
		t.Errorf("progress request = %+v", req)
	}
	if !strings.Contains(report.Details[0].Message, "progress comment updated (40%)") {
		t.Errorf("detail = %q", report.Details[0].Message)
	}
}

func TestSyncEpic_ShortcutRefUsesBackendName(t *testing.T) {
	sc := newFakeBackend("shortcut")
	sc.issues["34"] = &backend.Issue{ID: "34", State: backend.StateOpen}
	progress := &fakeProgress{result: orchestrator.Result{Success: true, CommentCreated: true}}
	svc := testService(sc, []tracker.Issue{
		{ID: "e1", IssueType: tracker.TypeEpic, State: tracker.StateOpen, ExternalRef: "shortcut:34"},
	}, WithProgress(progress))

	report := svc.SyncBead(context.Background(), "local", "e1", false)
	if report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(progress.calls) != 1 || progress.calls[0].Repository != "shortcut" {
		t.Errorf("progress calls = %+v", progress.calls)
	}
}

func TestSyncTask_SkipsProgress(t *testing.T) {
	gh := newFakeBackend("github")
	gh.issues["12"] = &backend.Issue{ID: "12", State: backend.StateOpen}
	progress := &fakeProgress{result: orchestrator.Result{Success: true}}
	svc := testService(gh, []tracker.Issue{
		{ID: "b1", IssueType: tracker.TypeTask, State: tracker.StateOpen, ExternalRef: "github:org/repo#12"},
	}, WithProgress(progress))

	svc.SyncBead(context.Background(), "local", "b1", false)
	if len(progress.calls) != 0 {
		t.Errorf("progress called for a task bead: %+v", progress.calls)
	}
}

func TestSyncEpic_DryRunPropagates(t *testing.T) {
	gh := newFakeBackend("github")
	gh.issues["12"] = &backend.Issue{ID: "12", State: backend.StateOpen}
	progress := &fakeProgress{result: orchestrator.Result{Success: true, DryRun: true}}
	svc := testService(gh, []tracker.Issue{
		{ID: "e1", IssueType: tracker.TypeEpic, State: tracker.StateCompleted, ExternalRef: "github:org/repo#12"},
	}, WithProgress(progress))

	report := svc.SyncBead(context.Background(), "local", "e1", true)
	if len(progress.calls) != 1 || !progress.calls[0].DryRun {
		t.Fatalf("progress calls = %+v, want one dry-run request", progress.calls)
	}
	if len(gh.updates) != 0 {
		t.Error("dry run issued external writes")
	}
	if !strings.Contains(report.Details[0].Message, "would refresh progress comment") {
		t.Errorf("detail = %q", report.Details[0].Message)
	}
}

func TestSyncEpic_ProgressFailureReported(t *testing.T) {
	gh := newFakeBackend("github")
	gh.issues["12"] = &backend.Issue{ID: "12", State: backend.StateOpen}
	progress := &fakeProgress{result: orchestrator.Result{
		Success: false,
		Error:   &orchestrator.ResultError{Code: "sync", Message: "listing comments failed"},
	}}
	svc := testService(gh, []tracker.Issue{
		{ID: "e1", IssueType: tracker.TypeEpic, State: tracker.StateOpen, ExternalRef: "github:org/repo#12"},
	}, WithProgress(progress))

	report := svc.SyncBead(context.Background(), "local", "e1", false)
	if report.Errors != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Details[0].Message, "progress: listing comments failed") {
		t.Errorf("detail = %q", report.Details[0].Message)
	}
}

func TestCachingResolverReusesBackends(t *testing.T) {
	r := NewCachingResolver(nil)

	a, err := r.BackendFor(context.Background(), Ref{Backend: "github", Repository: "org/repo", IssueID: "1"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.BackendFor(context.Background(), Ref{Backend: "github", Repository: "org/repo", IssueID: "2"})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same repository must reuse the cached adapter")
	}

	other, err := r.BackendFor(context.Background(), Ref{Backend: "github", Repository: "org/other", IssueID: "1"})
	if err != nil {
		t.Fatal(err)
	}
	if other == a {
		t.Error("distinct repositories must get distinct adapters")
	}

	if _, err := r.BackendFor(context.Background(), Ref{Backend: "jira", IssueID: "1"}); err == nil {
		t.Error("unknown backend type must fail")
	}
}
