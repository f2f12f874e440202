// Package github implements the backend adapter for GitHub issue trackers.
// Transport is the gh CLI, authenticated either by a static token or a
// GitHub App installation token.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/andywolf/beadbridge/internal/backend"
	"github.com/andywolf/beadbridge/internal/credentials"
	ghauth "github.com/andywolf/beadbridge/internal/github"
)

func init() {
	backend.Register("github", func(repo string, creds *credentials.Cache) backend.Backend {
		return New(repo, creds)
	})
}

// commandRunner executes a gh invocation and returns its stdout. Tests
// substitute a fake; production uses execRunner.
type commandRunner func(ctx context.Context, env []string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, env []string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Env = append(os.Environ(), env...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return output, fmt.Errorf("gh %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return output, err
	}
	return output, nil
}

// Adapter is the GitHub backend for one repository.
type Adapter struct {
	repo  string // owner/name
	creds *credentials.Cache

	token    string
	tokenMgr *ghauth.TokenManager

	run commandRunner
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithRunner substitutes the gh invocation function (tests).
func WithRunner(run commandRunner) Option {
	return func(a *Adapter) { a.run = run }
}

// New creates a GitHub adapter for the given owner/name repository.
func New(repo string, creds *credentials.Cache, opts ...Option) *Adapter {
	a := &Adapter{
		repo:  repo,
		creds: creds,
		run:   execRunner,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return "github" }

func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		SupportsProjects:  true,
		SupportsSubIssues: true,
		// Plain GitHub issues have no native progress fields
		SupportsCustomFields: false,
		// Issues are only ever open or closed
		WritableStates: []backend.IssueState{backend.StateOpen, backend.StateCompleted},
	}
}

// Authenticate resolves the github credential record. A "github_app" record
// builds a token manager with automatic refresh; a "token" record uses the
// resolved token as-is.
func (a *Adapter) Authenticate(ctx context.Context) error {
	cred, err := a.creds.Get(ctx, "github")
	if err != nil {
		return &backend.AuthError{Backend: "github", Reason: err.Error()}
	}

	switch cred.Kind {
	case "github_app":
		tm, err := ghauth.NewTokenManager(ghauth.AppCredentials{
			AppID:          cred.AppID,
			InstallationID: cred.InstallationID,
			PrivateKeyPEM:  cred.PrivateKey,
		})
		if err != nil {
			return &backend.AuthError{Backend: "github", Reason: err.Error()}
		}
		if _, err := tm.Token(); err != nil {
			return err
		}
		a.tokenMgr = tm
	case "token", "":
		if cred.Token == "" {
			return &backend.AuthError{Backend: "github", Reason: "credential record has no token"}
		}
		a.token = cred.Token
	default:
		return &backend.AuthError{Backend: "github", Reason: fmt.Sprintf("unknown credential kind %q", cred.Kind)}
	}
	return nil
}

func (a *Adapter) IsAuthenticated() bool {
	return a.token != "" || a.tokenMgr != nil
}

// tokenEnv returns the GITHUB_TOKEN environment entry for gh invocations.
func (a *Adapter) tokenEnv() ([]string, error) {
	if a.tokenMgr != nil {
		token, err := a.tokenMgr.Token()
		if err != nil {
			return nil, err
		}
		return []string{"GITHUB_TOKEN=" + token}, nil
	}
	if a.token != "" {
		return []string{"GITHUB_TOKEN=" + a.token}, nil
	}
	// Fall through to gh's own auth when nothing is configured
	return nil, nil
}

func (a *Adapter) gh(ctx context.Context, args ...string) ([]byte, error) {
	env, err := a.tokenEnv()
	if err != nil {
		return nil, err
	}
	return a.run(ctx, env, args...)
}

// ghIssue is the gh CLI JSON shape for an issue.
type ghIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (i ghIssue) toIssue() backend.Issue {
	state := backend.StateOpen
	if strings.EqualFold(i.State, "closed") {
		state = backend.StateCompleted
	}
	return backend.Issue{
		ID:        strconv.Itoa(i.Number),
		Title:     i.Title,
		Body:      i.Body,
		State:     state,
		URL:       i.URL,
		UpdatedAt: i.UpdatedAt,
	}
}

func (a *Adapter) GetIssue(ctx context.Context, id string) (*backend.Issue, error) {
	output, err := a.gh(ctx, "issue", "view", id,
		"--repo", a.repo,
		"--json", "number,title,body,state,url,updatedAt",
	)
	if err != nil {
		if isNotFoundOutput(err) {
			return nil, &backend.NotFoundError{Kind: "issue", ID: id}
		}
		return nil, fmt.Errorf("fetching issue #%s: %w", id, err)
	}

	var issue ghIssue
	if err := json.Unmarshal(output, &issue); err != nil {
		return nil, fmt.Errorf("parsing issue #%s: %w", id, err)
	}
	out := issue.toIssue()
	return &out, nil
}

// isNotFoundOutput matches gh's phrasing for missing issues.
func isNotFoundOutput(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not resolve") || strings.Contains(msg, "not found")
}

func (a *Adapter) SearchIssues(ctx context.Context, query backend.SearchQuery) ([]backend.Issue, error) {
	args := []string{"issue", "list",
		"--repo", a.repo,
		"--limit", "200",
		"--json", "number,title,body,state,url,updatedAt",
	}
	switch query.State {
	case backend.StateCompleted:
		args = append(args, "--state", "closed")
	case backend.StateOpen, backend.StateInProgress, backend.StateBlocked:
		args = append(args, "--state", "open")
	default:
		args = append(args, "--state", "all")
	}
	if query.Text != "" {
		args = append(args, "--search", query.Text)
	}

	output, err := a.gh(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}

	var raw []ghIssue
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("parsing issue list: %w", err)
	}

	issues := make([]backend.Issue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, r.toIssue())
	}
	return issues, nil
}

func (a *Adapter) ListComments(ctx context.Context, id string) ([]backend.Comment, error) {
	output, err := a.gh(ctx, "issue", "view", id,
		"--repo", a.repo,
		"--json", "comments",
	)
	if err != nil {
		if isNotFoundOutput(err) {
			return nil, &backend.NotFoundError{Kind: "issue", ID: id}
		}
		return nil, fmt.Errorf("listing comments on #%s: %w", id, err)
	}

	var payload struct {
		Comments []struct {
			ID        string    `json:"id"`
			Body      string    `json:"body"`
			CreatedAt time.Time `json:"createdAt"`
			Author    struct {
				Login string `json:"login"`
			} `json:"author"`
		} `json:"comments"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return nil, fmt.Errorf("parsing comments on #%s: %w", id, err)
	}

	comments := make([]backend.Comment, 0, len(payload.Comments))
	for _, c := range payload.Comments {
		comments = append(comments, backend.Comment{
			ID:        c.ID,
			Author:    c.Author.Login,
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		})
	}
	return comments, nil
}

// GetLinkedIssues queries the sub-issues GraphQL API.
func (a *Adapter) GetLinkedIssues(ctx context.Context, id string) ([]backend.LinkedIssue, error) {
	owner, name, err := splitRepo(a.repo)
	if err != nil {
		return nil, err
	}
	num, err := strconv.Atoi(id)
	if err != nil {
		return nil, &backend.ValidationError{Field: "id", Message: fmt.Sprintf("must be numeric, got %q", id)}
	}

	query := fmt.Sprintf(`{ repository(owner: %q, name: %q) { issue(number: %d) { subIssues(first: 50) { nodes { number state } } } } }`,
		owner, name, num)

	output, err := a.gh(ctx, "api", "graphql", "-f", "query="+query)
	if err != nil {
		return nil, fmt.Errorf("querying sub-issues of #%s: %w", id, err)
	}

	var resp struct {
		Data struct {
			Repository struct {
				Issue struct {
					SubIssues struct {
						Nodes []struct {
							Number int `json:"number"`
						} `json:"nodes"`
					} `json:"subIssues"`
				} `json:"issue"`
			} `json:"repository"`
		} `json:"data"`
	}
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, fmt.Errorf("parsing sub-issues of #%s: %w", id, err)
	}

	var linked []backend.LinkedIssue
	for _, node := range resp.Data.Repository.Issue.SubIssues.Nodes {
		linked = append(linked, backend.LinkedIssue{
			ID:       strconv.Itoa(node.Number),
			Relation: "sub_issue",
		})
	}
	return linked, nil
}

func (a *Adapter) CreateIssue(ctx context.Context, fields backend.IssueFields) (*backend.Issue, error) {
	if fields.Title == nil || *fields.Title == "" {
		return nil, &backend.ValidationError{Field: "title", Message: "title is required"}
	}

	args := []string{"issue", "create", "--repo", a.repo, "--title", *fields.Title}
	if fields.Body != nil {
		args = append(args, "--body", *fields.Body)
	} else {
		args = append(args, "--body", "")
	}

	output, err := a.gh(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}

	// gh prints the new issue URL; the trailing path segment is the number
	url := strings.TrimSpace(string(output))
	num := url[strings.LastIndex(url, "/")+1:]

	issue := &backend.Issue{ID: num, Title: *fields.Title, State: backend.StateOpen, URL: url}
	if fields.Body != nil {
		issue.Body = *fields.Body
	}
	return issue, nil
}

func (a *Adapter) UpdateIssue(ctx context.Context, id string, fields backend.IssueFields) error {
	if len(fields.CustomFields) > 0 {
		return &backend.NotSupportedError{Backend: "github", Operation: "updateIssue.customFields"}
	}

	args := []string{"issue", "edit", id, "--repo", a.repo}
	edit := false
	if fields.Title != nil {
		args = append(args, "--title", *fields.Title)
		edit = true
	}
	if fields.Body != nil {
		args = append(args, "--body", *fields.Body)
		edit = true
	}

	if edit {
		if _, err := a.gh(ctx, args...); err != nil {
			if isNotFoundOutput(err) {
				return &backend.NotFoundError{Kind: "issue", ID: id}
			}
			return fmt.Errorf("editing issue #%s: %w", id, err)
		}
	}

	if fields.State != nil {
		verb := "reopen"
		if *fields.State == backend.StateCompleted {
			verb = "close"
		}
		if _, err := a.gh(ctx, "issue", verb, id, "--repo", a.repo); err != nil {
			return fmt.Errorf("%sing issue #%s: %w", verb, id, err)
		}
	}
	return nil
}

func (a *Adapter) AddComment(ctx context.Context, id string, body string) (string, error) {
	output, err := a.gh(ctx, "issue", "comment", id, "--repo", a.repo, "--body", body)
	if err != nil {
		if isNotFoundOutput(err) {
			return "", &backend.NotFoundError{Kind: "issue", ID: id}
		}
		return "", fmt.Errorf("commenting on #%s: %w", id, err)
	}

	// gh prints the comment URL ending in #issuecomment-<id>
	url := strings.TrimSpace(string(output))
	if idx := strings.LastIndex(url, "issuecomment-"); idx >= 0 {
		return url[idx+len("issuecomment-"):], nil
	}
	return url, nil
}

func (a *Adapter) UpdateComment(ctx context.Context, issueID, commentID, body string) error {
	path := fmt.Sprintf("repos/%s/issues/comments/%s", a.repo, commentID)
	if _, err := a.gh(ctx, "api", path, "-X", "PATCH", "-f", "body="+body); err != nil {
		if isNotFoundOutput(err) {
			return &backend.NotFoundError{Kind: "comment", ID: commentID}
		}
		return fmt.Errorf("updating comment %s: %w", commentID, err)
	}
	return nil
}

// LinkIssues records fromID as the parent of toID using the sub-issues API.
func (a *Adapter) LinkIssues(ctx context.Context, fromID, toID, relation string) error {
	if relation != "sub_issue" {
		return &backend.NotSupportedError{Backend: "github", Operation: "linkIssues." + relation}
	}

	owner, name, err := splitRepo(a.repo)
	if err != nil {
		return err
	}

	mutation := fmt.Sprintf(`mutation { addSubIssue(input: { issueId: %q, subIssueId: %q }) { issue { number } } }`,
		issueNodeRef(owner, name, fromID), issueNodeRef(owner, name, toID))

	if _, err := a.gh(ctx, "api", "graphql", "-f", "query="+mutation); err != nil {
		return fmt.Errorf("linking #%s under #%s: %w", toID, fromID, err)
	}
	return nil
}

// issueNodeRef builds the node lookup used by the sub-issue mutation.
func issueNodeRef(owner, name, number string) string {
	return fmt.Sprintf("%s/%s#%s", owner, name, number)
}

// splitRepo extracts owner and name, tolerating URL-ish prefixes.
func splitRepo(repo string) (owner, name string, err error) {
	repo = strings.TrimPrefix(repo, "https://")
	repo = strings.TrimPrefix(repo, "github.com/")
	repo = strings.TrimSuffix(repo, ".git")

	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format: %q", repo)
	}
	return parts[0], parts[1], nil
}
