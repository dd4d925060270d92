package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestLiquidityPositionJSONRoundTrip(t *testing.T) {
	original := LiquidityPosition{
		ID:              "812345",
		Owner:           "0x1111111111111111111111111111111111111111",
		Pool:            "0x2222222222222222222222222222222222222222",
		RangeLower:      1800,
		RangeUpper:      2200,
		LiquidityAmount: "123456789000000000000",
		AccruedFees0:    0.42,
		AccruedFees1:    17.5,
		Status:          StatusActive,
		UpdatedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded LiquidityPosition
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestInRange(t *testing.T) {
	pos := LiquidityPosition{RangeLower: 1800, RangeUpper: 2200}

	if !pos.InRange(2000) {
		t.Fatalf("expected 2000 in range")
	}
	if pos.InRange(1799.99) {
		t.Fatalf("expected 1799.99 out of range")
	}
	if pos.InRange(2200.01) {
		t.Fatalf("expected 2200.01 out of range")
	}
}
