package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangePilot/internal/model"
)

const (
	testOwner = "0x1111111111111111111111111111111111111111"
	testPool  = "0x2222222222222222222222222222222222222222"
)

type memorySink struct {
	records []model.AuditRecord
}

func (m *memorySink) Append(record model.AuditRecord) error {
	m.records = append(m.records, record)
	return nil
}

type memoryStore struct {
	saved []model.LiquidityPosition
	fail  error
}

func (m *memoryStore) SavePosition(_ context.Context, pos model.LiquidityPosition) error {
	if m.fail != nil {
		return m.fail
	}
	m.saved = append(m.saved, pos)
	return nil
}

func (m *memoryStore) LoadPosition(_ context.Context, _, _ string) (model.LiquidityPosition, bool, error) {
	if len(m.saved) == 0 {
		return model.LiquidityPosition{}, false, nil
	}
	return m.saved[len(m.saved)-1], true, nil
}

func openedLedger(t *testing.T, sink *memorySink, store *memoryStore) *Ledger {
	t.Helper()
	l := New(testOwner, testPool, store, sink, nil)
	_, err := l.Open(context.Background(), 1800, 2200, "1000000", "42")
	require.NoError(t, err)
	return l
}

func TestOpenRejectsSecondPosition(t *testing.T) {
	l := openedLedger(t, &memorySink{}, &memoryStore{})

	_, err := l.Open(context.Background(), 1900, 2100, "500", "43")
	assert.True(t, errors.Is(err, model.ErrAlreadyActive))
}

func TestOpenRejectsBadRange(t *testing.T) {
	l := New(testOwner, testPool, nil, nil, nil)

	_, err := l.Open(context.Background(), 2200, 1800, "1", "1")
	assert.True(t, errors.Is(err, model.ErrInvalidInput))

	_, err = l.Open(context.Background(), 0, 1800, "1", "1")
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestRebalanceRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := openedLedger(t, &memorySink{}, &memoryStore{})

	require.NoError(t, l.RecordFees(ctx, 0.5, 12))

	pos, err := l.BeginRebalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRebalancing, pos.Status)

	require.NoError(t, l.ApplyRebalanceResult(ctx, 1900, 2300, "2000000", "43"))

	got := l.Position()
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, 1900.0, got.RangeLower)
	assert.Equal(t, 2300.0, got.RangeUpper)
	assert.Equal(t, "2000000", got.LiquidityAmount)
	assert.Equal(t, "43", got.ID)
	assert.Zero(t, got.AccruedFees0)
	assert.Zero(t, got.AccruedFees1)
}

func TestAbortRebalanceKeepsPosition(t *testing.T) {
	ctx := context.Background()
	l := openedLedger(t, &memorySink{}, &memoryStore{})

	require.NoError(t, l.RecordFees(ctx, 1, 2))
	_, err := l.BeginRebalance(ctx)
	require.NoError(t, err)

	require.NoError(t, l.AbortRebalance(ctx))

	got := l.Position()
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, 1800.0, got.RangeLower)
	assert.Equal(t, 2200.0, got.RangeUpper)
	assert.Equal(t, "1000000", got.LiquidityAmount)
	assert.Equal(t, 1.0, got.AccruedFees0)
	assert.Equal(t, 2.0, got.AccruedFees1)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	l := New(testOwner, testPool, nil, nil, nil)

	_, err := l.BeginRebalance(ctx)
	assert.True(t, errors.Is(err, model.ErrInvalidState))

	assert.True(t, errors.Is(l.ApplyRebalanceResult(ctx, 1, 2, "1", "1"), model.ErrInvalidState))
	assert.True(t, errors.Is(l.AbortRebalance(ctx), model.ErrInvalidState))
	assert.True(t, errors.Is(l.Close(ctx), model.ErrInvalidState))
	assert.True(t, errors.Is(l.RecordFees(ctx, 1, 1), model.ErrInvalidState))
}

func TestAuditSequenceMonotonic(t *testing.T) {
	ctx := context.Background()
	sink := &memorySink{}
	l := openedLedger(t, sink, &memoryStore{})

	require.NoError(t, l.RecordFees(ctx, 1, 1))
	_, err := l.BeginRebalance(ctx)
	require.NoError(t, err)
	require.NoError(t, l.AbortRebalance(ctx))
	require.NoError(t, l.Close(ctx))

	require.Len(t, sink.records, 5)
	for i, record := range sink.records {
		assert.Equal(t, uint64(i+1), record.Sequence)
	}
	assert.Equal(t, "open", sink.records[0].Transition)
	assert.Equal(t, "close", sink.records[4].Transition)
}

func TestFailedSaveLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	l := openedLedger(t, &memorySink{}, store)

	store.fail = errors.New("disk full")
	_, err := l.BeginRebalance(ctx)
	require.Error(t, err)

	assert.Equal(t, model.StatusActive, l.Position().Status)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	l := openedLedger(t, &memorySink{}, store)
	_, err := l.BeginRebalance(ctx)
	require.NoError(t, err)

	fresh := New(testOwner, testPool, store, nil, nil)
	require.NoError(t, fresh.Restore(ctx))
	assert.Equal(t, model.StatusRebalancing, fresh.Position().Status)
}
