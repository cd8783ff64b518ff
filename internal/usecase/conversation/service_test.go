package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/agrirag/internal/domain/conversation"
)

type memStore struct {
	turns   map[string][]conversation.Turn
	readErr error
}

func (m *memStore) Turns(_ context.Context, userID string) ([]conversation.Turn, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.turns[userID], nil
}

func (m *memStore) Append(_ context.Context, userID string, t conversation.Turn) error {
	if m.turns == nil {
		m.turns = map[string][]conversation.Turn{}
	}
	m.turns[userID] = append(m.turns[userID], t)
	return nil
}

func (m *memStore) Clear(_ context.Context, userID string) error {
	delete(m.turns, userID)
	return nil
}

type fakeRewriter struct {
	out     string
	err     error
	history string
	calls   int
}

func (f *fakeRewriter) Rewrite(_ context.Context, query, history string) (string, error) {
	f.calls++
	f.history = history
	if f.err != nil {
		return query, f.err
	}
	return f.out, nil
}

var patterns = []string{"đó", "này", "thuốc đó", "vậy"}

func seeded() *memStore {
	return &memStore{turns: map[string][]conversation.Turn{
		"u1": {
			{Role: conversation.RoleUser, Content: "Thuốc trừ rầy nâu cho lúa?"},
			{Role: conversation.RoleAssistant, Content: "Dùng pymetrozine."},
		},
	}}
}

func TestNeedsRewrite(t *testing.T) {
	s := New(nil, nil, patterns, 0)
	tests := []struct {
		query string
		want  bool
	}{
		{"Liều lượng thuốc đó thế nào?", true},
		{"Vậy phun lúc nào", true},
		{"Thuốc trừ rầy nâu", false},
		{"đó", false},
		{"Lá bị đỏ thì sao", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := s.NeedsRewrite(tt.query); got != tt.want {
				t.Errorf("NeedsRewrite(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestFormatHistory_LastTurns(t *testing.T) {
	s := New(nil, nil, patterns, 2)
	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "a"},
		{Role: conversation.RoleAssistant, Content: "b"},
		{Role: conversation.RoleUser, Content: "c"},
	}
	if got := s.FormatHistory(turns); got != "ASSISTANT: b\nUSER: c" {
		t.Errorf("FormatHistory = %q", got)
	}
}

func TestResolve_Rewrites(t *testing.T) {
	rw := &fakeRewriter{out: "Liều lượng pymetrozine trên lúa?"}
	s := New(seeded(), rw, patterns, 0)

	res := s.Resolve(context.Background(), "u1", "Liều lượng thuốc đó?")
	if !res.Rewritten || res.Query != "Liều lượng pymetrozine trên lúa?" {
		t.Errorf("Resolve = %+v", res)
	}
	if !strings.HasPrefix(rw.history, "USER: Thuốc trừ rầy nâu cho lúa?") {
		t.Errorf("history = %q", rw.history)
	}
}

func TestResolve_KeepsOriginal(t *testing.T) {
	q := "Liều lượng thuốc đó?"
	tests := []struct {
		name   string
		store  *memStore
		rw     *fakeRewriter
		userID string
		query  string
	}{
		{"no user", seeded(), &fakeRewriter{out: "x"}, "", q},
		{"no history", &memStore{}, &fakeRewriter{out: "x"}, "u1", q},
		{"no reference", seeded(), &fakeRewriter{out: "x"}, "u1", "Thuốc trừ rầy nâu"},
		{"oracle error", seeded(), &fakeRewriter{err: errors.New("down")}, "u1", q},
		{"empty output", seeded(), &fakeRewriter{out: ""}, "u1", q},
		{"store error", &memStore{readErr: errors.New("redis down")}, &fakeRewriter{out: "x"}, "u1", q},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.store, tt.rw, patterns, 0)
			res := s.Resolve(context.Background(), tt.userID, tt.query)
			if res.Rewritten || res.Query != tt.query {
				t.Errorf("Resolve = %+v, want original", res)
			}
		})
	}
}

func TestAppend(t *testing.T) {
	store := &memStore{}
	s := New(store, nil, patterns, 0)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	ctx := context.Background()
	if err := s.AppendUser(ctx, "u1", "hỏi"); err != nil {
		t.Fatalf("AppendUser: %v", err)
	}
	if err := s.AppendAssistant(ctx, "u1", "đáp"); err != nil {
		t.Fatalf("AppendAssistant: %v", err)
	}
	if err := s.AppendUser(ctx, "", "anonymous"); err != nil {
		t.Fatalf("anonymous append must be a no-op: %v", err)
	}

	turns, err := s.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 2 || turns[1].Role != conversation.RoleAssistant || !turns[0].At.Equal(fixed) {
		t.Errorf("turns = %+v", turns)
	}

	if err := s.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if turns, _ := s.History(ctx, "u1"); len(turns) != 0 {
		t.Errorf("turns after clear = %d", len(turns))
	}
}

type fakeMemory struct {
	transcript string
	err        error
	forgot     []string
}

func (f *fakeMemory) Remember(_ context.Context, _, transcript string) (int, error) {
	f.transcript = transcript
	return 1, f.err
}

func (f *fakeMemory) Forget(_ context.Context, userID string) error {
	f.forgot = append(f.forgot, userID)
	return nil
}

func TestAppendAssistant_RefreshesMemory(t *testing.T) {
	mem := &fakeMemory{}
	s := New(seeded(), nil, patterns, 0).WithMemory(mem)

	if err := s.AppendAssistant(context.Background(), "u1", "Pha 10 ml mỗi bình."); err != nil {
		t.Fatalf("AppendAssistant: %v", err)
	}
	want := "USER: Thuốc trừ rầy nâu cho lúa?\nASSISTANT: Dùng pymetrozine.\nASSISTANT: Pha 10 ml mỗi bình."
	if mem.transcript != want {
		t.Errorf("transcript = %q, want %q", mem.transcript, want)
	}

	if err := s.Clear(context.Background(), "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(mem.forgot) != 1 || mem.forgot[0] != "u1" {
		t.Errorf("forgot = %v", mem.forgot)
	}
}

func TestAppendAssistant_MemoryFailureIsNotAnError(t *testing.T) {
	mem := &fakeMemory{err: errors.New("oracle down")}
	s := New(seeded(), nil, patterns, 0).WithMemory(mem)
	if err := s.AppendAssistant(context.Background(), "u1", "đáp"); err != nil {
		t.Fatalf("memory failure must not fail the append: %v", err)
	}
	if mem.transcript == "" {
		t.Error("memory must have been asked to remember")
	}
}
