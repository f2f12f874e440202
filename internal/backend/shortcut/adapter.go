// Package shortcut implements the backend adapter for Shortcut story
// trackers over the REST v3 API.
package shortcut

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andywolf/beadbridge/internal/backend"
	"github.com/andywolf/beadbridge/internal/credentials"
)

const defaultBaseURL = "https://api.shortcut.com/api/v3"

func init() {
	// The shortcut adapter is workspace-wide; repo is ignored.
	backend.Register("shortcut", func(repo string, creds *credentials.Cache) backend.Backend {
		return New(creds)
	})
}

// Adapter is the Shortcut backend.
type Adapter struct {
	creds      *credentials.Cache
	token      string
	baseURL    string
	httpClient *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at a custom API endpoint (tests).
func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.httpClient = client }
}

// New creates a Shortcut adapter.
func New(creds *credentials.Cache, opts ...Option) *Adapter {
	a := &Adapter{
		creds:      creds,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return "shortcut" }

func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		SupportsProjects:  true,
		SupportsSubIssues: false,
		// Stories carry native custom fields for progress tracking
		SupportsCustomFields: true,
		// Updates only flip the completed marker; workflow transitions
		// are workspace-specific
		WritableStates: []backend.IssueState{backend.StateOpen, backend.StateCompleted},
	}
}

func (a *Adapter) Authenticate(ctx context.Context) error {
	cred, err := a.creds.Get(ctx, "shortcut")
	if err != nil {
		return &backend.AuthError{Backend: "shortcut", Reason: err.Error()}
	}
	if cred.Token == "" {
		return &backend.AuthError{Backend: "shortcut", Reason: "credential record has no token"}
	}
	a.token = cred.Token
	return nil
}

func (a *Adapter) IsAuthenticated() bool { return a.token != "" }

// request performs an authenticated API call and returns the response body.
func (a *Adapter) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Shortcut-Token", a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling shortcut API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &backend.NotFoundError{Kind: "story", ID: path}
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &backend.AuthError{Backend: "shortcut", Reason: "token rejected"}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("shortcut API %s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	return data, nil
}

// story is the Shortcut API story shape (the fields this bridge reads).
type story struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AppURL      string    `json:"app_url"`
	Completed   bool      `json:"completed"`
	Started     bool      `json:"started"`
	Blocked     bool      `json:"blocked"`
	UpdatedAt   time.Time `json:"updated_at"`
	StoryLinks  []struct {
		Verb      string `json:"verb"`
		SubjectID int    `json:"subject_id"`
		ObjectID  int    `json:"object_id"`
	} `json:"story_links"`
	Comments []struct {
		ID        int       `json:"id"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"created_at"`
		Author    string    `json:"author_id"`
	} `json:"comments"`
}

func (s story) toIssue() backend.Issue {
	state := backend.StateOpen
	switch {
	case s.Completed:
		state = backend.StateCompleted
	case s.Blocked:
		state = backend.StateBlocked
	case s.Started:
		state = backend.StateInProgress
	}
	return backend.Issue{
		ID:        strconv.Itoa(s.ID),
		Title:     s.Name,
		Body:      s.Description,
		State:     state,
		URL:       s.AppURL,
		UpdatedAt: s.UpdatedAt,
	}
}

func (a *Adapter) getStory(ctx context.Context, id string) (*story, error) {
	if _, err := strconv.Atoi(id); err != nil {
		return nil, &backend.ValidationError{Field: "id", Message: fmt.Sprintf("story id must be numeric, got %q", id)}
	}

	data, err := a.request(ctx, http.MethodGet, "/stories/"+id, nil)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, &backend.NotFoundError{Kind: "story", ID: id}
		}
		return nil, err
	}

	var s story
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing story %s: %w", id, err)
	}
	return &s, nil
}

func (a *Adapter) GetIssue(ctx context.Context, id string) (*backend.Issue, error) {
	s, err := a.getStory(ctx, id)
	if err != nil {
		return nil, err
	}
	issue := s.toIssue()
	return &issue, nil
}

func (a *Adapter) SearchIssues(ctx context.Context, query backend.SearchQuery) ([]backend.Issue, error) {
	q := query.Text
	switch query.State {
	case backend.StateCompleted:
		q += " state:done"
	case backend.StateInProgress:
		q += " state:started"
	case backend.StateOpen, backend.StateBlocked:
		q += " state:unstarted"
	}

	params := url.Values{}
	params.Set("page_size", "25")
	params.Set("query", strings.TrimSpace(q))

	data, err := a.request(ctx, http.MethodGet, "/search/stories?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []story `json:"data"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing story search: %w", err)
	}

	issues := make([]backend.Issue, 0, len(result.Data))
	for _, s := range result.Data {
		issues = append(issues, s.toIssue())
	}
	return issues, nil
}

func (a *Adapter) ListComments(ctx context.Context, id string) ([]backend.Comment, error) {
	s, err := a.getStory(ctx, id)
	if err != nil {
		return nil, err
	}

	comments := make([]backend.Comment, 0, len(s.Comments))
	for _, c := range s.Comments {
		comments = append(comments, backend.Comment{
			ID:        strconv.Itoa(c.ID),
			Author:    c.Author,
			Body:      c.Text,
			CreatedAt: c.CreatedAt,
		})
	}
	return comments, nil
}

func (a *Adapter) GetLinkedIssues(ctx context.Context, id string) ([]backend.LinkedIssue, error) {
	s, err := a.getStory(ctx, id)
	if err != nil {
		return nil, err
	}

	var linked []backend.LinkedIssue
	for _, link := range s.StoryLinks {
		other := link.ObjectID
		if strconv.Itoa(link.SubjectID) != id {
			other = link.SubjectID
		}
		linked = append(linked, backend.LinkedIssue{
			ID:       strconv.Itoa(other),
			Relation: link.Verb,
		})
	}
	return linked, nil
}

func (a *Adapter) CreateIssue(ctx context.Context, fields backend.IssueFields) (*backend.Issue, error) {
	if fields.Title == nil || *fields.Title == "" {
		return nil, &backend.ValidationError{Field: "title", Message: "name is required"}
	}

	payload := map[string]any{"name": *fields.Title}
	if fields.Body != nil {
		payload["description"] = *fields.Body
	}

	data, err := a.request(ctx, http.MethodPost, "/stories", payload)
	if err != nil {
		return nil, err
	}

	var s story
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing created story: %w", err)
	}
	issue := s.toIssue()
	return &issue, nil
}

func (a *Adapter) UpdateIssue(ctx context.Context, id string, fields backend.IssueFields) error {
	payload := map[string]any{}
	if fields.Title != nil {
		payload["name"] = *fields.Title
	}
	if fields.Body != nil {
		payload["description"] = *fields.Body
	}
	if len(fields.CustomFields) > 0 {
		// Shortcut takes custom fields as {field_id, value} pairs, not
		// top-level story attributes. Keys are sorted so the request
		// body is stable.
		keys := make([]string, 0, len(fields.CustomFields))
		for k := range fields.CustomFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := make([]map[string]string, 0, len(keys))
		for _, k := range keys {
			values = append(values, map[string]string{
				"field_id": k,
				"value":    fields.CustomFields[k],
			})
		}
		payload["custom_fields"] = values
	}
	if len(payload) == 0 && fields.State == nil {
		return nil
	}
	if fields.State != nil {
		// Workflow transitions are workspace-specific; the bridge only
		// flips the completed marker.
		payload["completed"] = *fields.State == backend.StateCompleted
	}

	_, err := a.request(ctx, http.MethodPut, "/stories/"+id, payload)
	return err
}

func (a *Adapter) AddComment(ctx context.Context, id string, body string) (string, error) {
	data, err := a.request(ctx, http.MethodPost, "/stories/"+id+"/comments", map[string]any{"text": body})
	if err != nil {
		return "", err
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("parsing created comment: %w", err)
	}
	return strconv.Itoa(created.ID), nil
}

func (a *Adapter) UpdateComment(ctx context.Context, issueID, commentID, body string) error {
	path := fmt.Sprintf("/stories/%s/comments/%s", issueID, commentID)
	_, err := a.request(ctx, http.MethodPut, path, map[string]any{"text": body})
	return err
}

func (a *Adapter) LinkIssues(ctx context.Context, fromID, toID, relation string) error {
	subject, err := strconv.Atoi(fromID)
	if err != nil {
		return &backend.ValidationError{Field: "fromID", Message: "must be numeric"}
	}
	object, err := strconv.Atoi(toID)
	if err != nil {
		return &backend.ValidationError{Field: "toID", Message: "must be numeric"}
	}

	verb := relation
	if verb == "" || verb == "sub_issue" {
		verb = "relates to"
	}

	_, err = a.request(ctx, http.MethodPost, "/story-links", map[string]any{
		"subject_id": subject,
		"verb":       verb,
		"object_id":  object,
	})
	return err
}
