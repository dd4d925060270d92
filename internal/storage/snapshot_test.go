package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"rangePilot/internal/model"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "position.json")
	store := NewFileStore(path)

	pos := model.LiquidityPosition{
		ID:              "42",
		Owner:           "0x1111111111111111111111111111111111111111",
		Pool:            "0x2222222222222222222222222222222222222222",
		RangeLower:      1800,
		RangeUpper:      2200,
		LiquidityAmount: "1000000000000000000",
		Status:          model.StatusActive,
		UpdatedAt:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := store.SavePosition(context.Background(), pos); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, ok, err := store.LoadPosition(context.Background(), pos.Owner, pos.Pool)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to exist")
	}
	if !reflect.DeepEqual(pos, loaded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", pos, loaded)
	}
}

func TestFileStoreMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	_, ok, err := store.LoadPosition(context.Background(), "0xaa", "0xbb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot")
	}
}

func TestFileStoreOwnerMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "position.json")
	store := NewFileStore(path)

	pos := model.LiquidityPosition{
		Owner:  "0x1111111111111111111111111111111111111111",
		Pool:   "0x2222222222222222222222222222222222222222",
		Status: model.StatusActive,
	}
	if err := store.SavePosition(context.Background(), pos); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	_, ok, err := store.LoadPosition(context.Background(), "0x3333333333333333333333333333333333333333", pos.Pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch to report no snapshot")
	}
}
