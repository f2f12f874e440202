package tracker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// FileTracker reads beads from per-repository JSONL files. It is the
// production Tracker implementation; tests typically substitute an
// in-memory map via NewMemoryTracker.
type FileTracker struct {
	// paths maps repository name to its issues JSONL file.
	paths map[string]string
}

// NewFileTracker creates a tracker over the given repository->path mapping.
func NewFileTracker(paths map[string]string) *FileTracker {
	return &FileTracker{paths: paths}
}

// GetAllIssues loads every repository's issue file. A missing file yields
// an empty issue list for that repository, not an error.
func (t *FileTracker) GetAllIssues() (map[string][]Issue, error) {
	all := make(map[string][]Issue, len(t.paths))
	for repo, path := range t.paths {
		issues, err := readIssueFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading issues for %s: %w", repo, err)
		}
		all[repo] = issues
	}
	return all, nil
}

// GetEpicStatus computes the rollup for one epic in one repository.
func (t *FileTracker) GetEpicStatus(repository, epicID string) (*EpicStatus, error) {
	path, ok := t.paths[repository]
	if !ok {
		return nil, fmt.Errorf("unknown repository: %s", repository)
	}
	issues, err := readIssueFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading issues for %s: %w", repository, err)
	}
	return RollupStatus(issues, epicID)
}

// readIssueFile parses a JSONL issue file, one issue per line. Blank lines
// are skipped. A nonexistent file is treated as empty.
func readIssueFile(path string) ([]Issue, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Issue{}, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var issues []Issue
	scanner := bufio.NewScanner(f)

	// Large descriptions can exceed the default token size (1MB max line)
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var issue Issue
		if err := json.Unmarshal(line, &issue); err != nil {
			return nil, fmt.Errorf("parsing issue on line %d: %w", lineNum, err)
		}
		issues = append(issues, issue)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading issue file: %w", err)
	}

	return issues, nil
}

// RollupStatus walks the epic's dependent subtree and counts states. The
// epic itself is not counted. Cycles are guarded by a visited set.
func RollupStatus(issues []Issue, epicID string) (*EpicStatus, error) {
	byID := make(map[string]*Issue, len(issues))
	for i := range issues {
		byID[issues[i].ID] = &issues[i]
	}

	epic, ok := byID[epicID]
	if !ok {
		return nil, fmt.Errorf("epic %s not found", epicID)
	}
	if epic.IssueType != TypeEpic {
		return nil, fmt.Errorf("issue %s is not an epic (type %s)", epicID, epic.IssueType)
	}

	status := &EpicStatus{}
	visited := map[string]bool{epicID: true}
	collectSubtree(byID, epic, visited, status)

	// Discovered issues point back into the subtree via discovered_from
	for i := range issues {
		issue := &issues[i]
		if issue.DiscoveredFrom != "" && visited[issue.DiscoveredFrom] && !visited[issue.ID] {
			status.Discovered = append(status.Discovered, summarize(issue))
		}
	}

	status.PercentComplete = PercentComplete(status.Completed, status.Total)
	return status, nil
}

func collectSubtree(byID map[string]*Issue, parent *Issue, visited map[string]bool, status *EpicStatus) {
	for _, childID := range parent.Children {
		child, ok := byID[childID]
		if !ok || visited[childID] {
			continue
		}
		visited[childID] = true

		status.Total++
		switch child.State {
		case StateCompleted:
			status.Completed++
		case StateInProgress:
			status.InProgress++
		case StateBlocked:
			status.Blocked++
			status.Blockers = append(status.Blockers, summarize(child))
		default:
			status.NotStarted++
		}

		collectSubtree(byID, child, visited, status)
	}
}

func summarize(issue *Issue) string {
	return fmt.Sprintf("%s: %s", issue.ID, issue.Title)
}
