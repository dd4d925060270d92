package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"rangePilot/internal/model"
)

func TestWorkflowFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.json")
	store := NewWorkflowFile(path)
	ctx := context.Background()

	want := model.WorkflowStatus{
		RunID:            "run-1",
		Owner:            "0xOwner",
		Pool:             "0xPool",
		State:            "failed",
		RequiresRecovery: true,
		Detail:           "mint: slippage",
		UpdatedAt:        "2026-08-31T00:00:00Z",
	}
	if err := store.SaveWorkflowStatus(ctx, want); err != nil {
		t.Fatalf("SaveWorkflowStatus: %v", err)
	}

	got, ok, err := store.LoadWorkflowStatus(ctx, "0xowner", "0xpool")
	if err != nil {
		t.Fatalf("LoadWorkflowStatus: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored status")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestWorkflowFileMissing(t *testing.T) {
	store := NewWorkflowFile(filepath.Join(t.TempDir(), "missing.json"))

	_, ok, err := store.LoadWorkflowStatus(context.Background(), "0xowner", "0xpool")
	if err != nil {
		t.Fatalf("LoadWorkflowStatus: %v", err)
	}
	if ok {
		t.Fatal("expected no stored status")
	}
}

func TestWorkflowFileOwnerMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.json")
	store := NewWorkflowFile(path)
	ctx := context.Background()

	status := model.WorkflowStatus{RunID: "run-1", Owner: "0xowner", Pool: "0xpool", State: "idle"}
	if err := store.SaveWorkflowStatus(ctx, status); err != nil {
		t.Fatalf("SaveWorkflowStatus: %v", err)
	}

	_, ok, err := store.LoadWorkflowStatus(ctx, "0xother", "0xpool")
	if err != nil {
		t.Fatalf("LoadWorkflowStatus: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched owner to report no status")
	}
}
