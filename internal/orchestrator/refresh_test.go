package orchestrator

import (
	"context"
	"testing"

	"github.com/andywolf/beadbridge/internal/broadcast"
	"github.com/andywolf/beadbridge/internal/tracker"
)

func TestRefreshPublishesSnapshotPerRef(t *testing.T) {
	tr := tracker.NewMemoryTracker(map[string][]tracker.Issue{
		"frontend": {
			{ID: "e1", IssueType: tracker.TypeEpic, ExternalRef: "github:org/app#1", Children: []string{"t1", "t2"}},
			{ID: "t1", IssueType: tracker.TypeTask, State: tracker.StateCompleted},
			{ID: "t2", IssueType: tracker.TypeTask, State: tracker.StateOpen},
			{ID: "e2", IssueType: tracker.TypeEpic, ExternalRef: "shortcut:9"},
			{ID: "unrelated", IssueType: tracker.TypeTask, State: tracker.StateOpen},
		},
	})
	store := broadcast.NewStateStore()

	sr := NewStateRefresher(tr, store)
	if err := sr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	if got := len(store.All()); got != 2 {
		t.Fatalf("snapshots = %d, want 2", got)
	}

	state, ok := store.GetState("github:org/app#1")
	if !ok {
		t.Fatal("missing snapshot for github ref")
	}
	if state.Metrics.Total != 2 || state.Metrics.PercentComplete != 50 {
		t.Errorf("metrics = %+v", state.Metrics)
	}
	if state.Diagram == "" {
		t.Error("snapshot has no diagram")
	}
	// Subtree only: the epic, its two tasks, not the unrelated bead
	if len(state.Issues) != 3 {
		t.Errorf("subtree size = %d, want 3", len(state.Issues))
	}
	for _, issue := range state.Issues {
		if issue.ID == "unrelated" {
			t.Error("snapshot includes issue outside the epic subtree")
		}
	}
}

func TestRefreshAggregatesAcrossRepositories(t *testing.T) {
	tr := tracker.NewMemoryTracker(map[string][]tracker.Issue{
		"frontend": {
			{ID: "fe", IssueType: tracker.TypeEpic, ExternalRef: "github:org/app#1", Children: []string{"f1"}},
			{ID: "f1", IssueType: tracker.TypeTask, State: tracker.StateCompleted},
		},
		"backend": {
			{ID: "be", IssueType: tracker.TypeEpic, ExternalRef: "github:org/app#1", Children: []string{"b1"}},
			{ID: "b1", IssueType: tracker.TypeTask, State: tracker.StateOpen},
		},
	})
	store := broadcast.NewStateStore()

	if err := NewStateRefresher(tr, store).Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	state, ok := store.GetState("github:org/app#1")
	if !ok {
		t.Fatal("missing snapshot")
	}
	if state.Metrics.Total != 2 || state.Metrics.Completed != 1 {
		t.Errorf("metrics = %+v", state.Metrics)
	}
	if len(state.Issues) != 4 {
		t.Errorf("subtree size = %d, want 4", len(state.Issues))
	}
}

func TestRefreshEmitsUpdateEnvelopes(t *testing.T) {
	tr := tracker.NewMemoryTracker(map[string][]tracker.Issue{
		"frontend": {
			{ID: "e1", IssueType: tracker.TypeEpic, ExternalRef: "github:org/app#1"},
		},
	})
	store := broadcast.NewStateStore()
	bc := broadcast.NewChannelBroadcaster()
	store.AttachBroadcaster(bc)
	sub := bc.Subscribe()
	defer bc.Unsubscribe(sub.ID)

	if err := NewStateRefresher(tr, store).Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case env := <-sub.C:
		if env.Type != "update" || env.IssueID != "github:org/app#1" {
			t.Errorf("envelope = %+v", env)
		}
	default:
		t.Fatal("no envelope delivered")
	}
}
