package quota

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain"
)

func newTracker(daily, monthly int64, action Action) *Tracker {
	return NewTracker("embedding:test", daily, monthly, action, domain.ErrEmbeddingQuotaExceeded, zap.NewNop())
}

func TestTracker_RejectWhenExceeded(t *testing.T) {
	bt := newTracker(100, 0, ActionReject)

	bt.Record(100)

	if err := bt.Check(context.Background()); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected domain.ErrEmbeddingQuotaExceeded, got %v", err)
	}
}

func TestTracker_RejectUsesScopeError(t *testing.T) {
	bt := NewTracker("oracle:test", 10, 0, ActionReject, domain.ErrOracleQuotaExceeded, zap.NewNop())
	bt.Record(10)

	if err := bt.Check(context.Background()); !errors.Is(err, domain.ErrOracleQuotaExceeded) {
		t.Fatalf("expected domain.ErrOracleQuotaExceeded, got %v", err)
	}
}

func TestTracker_DefaultExceededError(t *testing.T) {
	bt := NewTracker("x", 1, 0, ActionReject, nil, zap.NewNop())
	bt.Record(1)

	if err := bt.Check(context.Background()); !errors.Is(err, ErrExceeded) {
		t.Fatalf("expected ErrExceeded, got %v", err)
	}
}

func TestTracker_WarnWhenExceeded(t *testing.T) {
	bt := newTracker(100, 0, ActionWarn)

	bt.Record(200)

	if err := bt.Check(context.Background()); err != nil {
		t.Fatalf("expected nil error for warn action, got %v", err)
	}
}

func TestTracker_MonthlyReject(t *testing.T) {
	bt := newTracker(0, 500, ActionReject)

	bt.Record(500)

	if err := bt.Check(context.Background()); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected domain.ErrEmbeddingQuotaExceeded for monthly limit, got %v", err)
	}
}

func TestTracker_UnlimitedWhenZero(t *testing.T) {
	bt := newTracker(0, 0, ActionReject)

	bt.Record(999999999)

	if err := bt.Check(context.Background()); err != nil {
		t.Fatalf("expected nil error for unlimited budget, got %v", err)
	}
}

func TestTracker_Remaining(t *testing.T) {
	bt := newTracker(1000, 10000, ActionWarn)

	bt.Record(300)

	if daily := bt.RemainingDaily(); daily != 700 {
		t.Errorf("expected daily remaining 700, got %d", daily)
	}
	if monthly := bt.RemainingMonthly(); monthly != 9700 {
		t.Errorf("expected monthly remaining 9700, got %d", monthly)
	}
}

func TestTracker_RemainingUnlimited(t *testing.T) {
	bt := newTracker(0, 0, ActionWarn)

	if daily := bt.RemainingDaily(); daily != -1 {
		t.Errorf("expected -1 for unlimited daily, got %d", daily)
	}
	if monthly := bt.RemainingMonthly(); monthly != -1 {
		t.Errorf("expected -1 for unlimited monthly, got %d", monthly)
	}
}

func TestTracker_RemainingNeverNegative(t *testing.T) {
	bt := newTracker(100, 0, ActionWarn)
	bt.Record(250)

	if got := bt.RemainingDaily(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestParseAction(t *testing.T) {
	tests := map[string]Action{
		"reject": ActionReject,
		"warn":   ActionWarn,
		"":       ActionWarn,
		"block":  ActionWarn,
	}
	for in, want := range tests {
		if got := ParseAction(in); got != want {
			t.Errorf("ParseAction(%q) = %q, want %q", in, got, want)
		}
	}
}

// --- Mock Store ---

type mockStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	setErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]int64)}
}

func (m *mockStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] += val
	return nil
}

func (m *mockStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

// --- Persistence tests ---

func TestTracker_WithStore_LoadsValues(t *testing.T) {
	store := newMockStore()

	bt := newTracker(1000, 10000, ActionReject)
	store.data[bt.dailyKey(bt.lastDayReset)] = 300
	store.data[bt.monthlyKey(bt.lastMonthReset)] = 5000

	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 300 {
		t.Errorf("expected daily_used=300, got %d", bt.DailyUsed())
	}
	if bt.MonthlyUsed() != 5000 {
		t.Errorf("expected monthly_used=5000, got %d", bt.MonthlyUsed())
	}
}

func TestTracker_Record_MultipleIncrements(t *testing.T) {
	store := newMockStore()
	bt := newTracker(10000, 100000, ActionWarn)
	bt.WithStore(context.Background(), store)

	bt.Record(100)
	bt.Record(200)
	bt.Record(300)

	if bt.DailyUsed() != 600 {
		t.Errorf("expected daily_used=600, got %d", bt.DailyUsed())
	}

	store.mu.Lock()
	daily := store.data[bt.dailyKey(bt.lastDayReset)]
	monthly := store.data[bt.monthlyKey(bt.lastMonthReset)]
	store.mu.Unlock()
	if daily != 600 || monthly != 600 {
		t.Errorf("expected store daily=600 monthly=600, got %d/%d", daily, monthly)
	}
}

func TestTracker_WithStore_LoadError(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("connection refused")

	bt := newTracker(1000, 10000, ActionReject)
	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 0 || bt.MonthlyUsed() != 0 {
		t.Errorf("expected zero usage on load error, got %d/%d", bt.DailyUsed(), bt.MonthlyUsed())
	}
}

func TestTracker_Record_StoreWriteError(t *testing.T) {
	store := newMockStore()
	bt := newTracker(1000, 10000, ActionWarn)
	bt.WithStore(context.Background(), store)

	store.mu.Lock()
	store.setErr = errors.New("write timeout")
	store.mu.Unlock()

	bt.Record(50)

	if bt.DailyUsed() != 50 {
		t.Errorf("expected daily_used=50 even with store error, got %d", bt.DailyUsed())
	}
}

func TestTracker_NoStore_RecordWorks(t *testing.T) {
	bt := newTracker(1000, 10000, ActionWarn)

	bt.Record(42)

	if bt.DailyUsed() != 42 {
		t.Errorf("expected daily_used=42, got %d", bt.DailyUsed())
	}
}

func TestTracker_KeyFormat(t *testing.T) {
	bt := NewTracker("oracle:openai", 0, 0, ActionWarn, nil, zap.NewNop())

	daily := bt.dailyKey(bt.lastDayReset)
	if !strings.HasPrefix(daily, "agrirag:budget:oracle:openai:daily:") {
		t.Errorf("unexpected daily key: %s", daily)
	}
	monthly := bt.monthlyKey(bt.lastMonthReset)
	if !strings.HasPrefix(monthly, "agrirag:budget:oracle:openai:monthly:") {
		t.Errorf("unexpected monthly key: %s", monthly)
	}
}
