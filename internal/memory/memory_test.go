package memory

import (
	"fmt"
	"strings"
	"testing"
)

func TestAppendAndHistory(t *testing.T) {
	m := New(20, 0)
	m.Append("user", "hello")
	m.Append("assistant", "hi there")

	hist := m.History()
	if len(hist) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(hist))
	}
	if hist[0].Role != "user" || hist[0].Content != "hello" {
		t.Errorf("unexpected first turn: %+v", hist[0])
	}
	if hist[1].At.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestFIFOEvictionByTurns(t *testing.T) {
	m := New(4, 0)
	for i := 0; i < 10; i++ {
		m.Append("user", fmt.Sprintf("message %d", i))
	}

	hist := m.History()
	if len(hist) != 4 {
		t.Fatalf("expected 4 retained turns, got %d", len(hist))
	}
	if hist[0].Content != "message 6" {
		t.Errorf("expected oldest retained to be 'message 6', got %q", hist[0].Content)
	}
	if hist[3].Content != "message 9" {
		t.Errorf("expected newest to be 'message 9', got %q", hist[3].Content)
	}
}

func TestEvictionByChars(t *testing.T) {
	m := New(100, 50)
	m.Append("user", strings.Repeat("a", 30))
	m.Append("assistant", strings.Repeat("b", 30))
	m.Append("user", strings.Repeat("c", 30))

	hist := m.History()
	total := 0
	for _, turn := range hist {
		total += len(turn.Content)
	}
	if total > 50 {
		t.Errorf("char budget exceeded: %d > 50", total)
	}
	// The newest turn always survives even if oversized.
	if hist[len(hist)-1].Content != strings.Repeat("c", 30) {
		t.Error("expected newest turn to be retained")
	}
}

func TestAppendExchangeAtomic(t *testing.T) {
	m := New(2, 0)
	m.Append("user", "old question")
	m.AppendExchange("new question", "new answer")

	hist := m.History()
	if len(hist) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(hist))
	}
	if hist[0].Content != "new question" || hist[1].Content != "new answer" {
		t.Errorf("expected the exchange to survive eviction together, got %+v", hist)
	}
}

func TestContextStringFormatsRoles(t *testing.T) {
	m := New(20, 0)
	m.AppendExchange("what was revenue in 2021?", "Revenue was $4.2B.")

	ctx := m.ContextString(5)
	if !strings.Contains(ctx, "User: what was revenue in 2021?") {
		t.Errorf("missing user line: %q", ctx)
	}
	if !strings.Contains(ctx, "Assistant: Revenue was $4.2B.") {
		t.Errorf("missing assistant line: %q", ctx)
	}
}

func TestContextStringWindow(t *testing.T) {
	m := New(20, 0)
	for i := 0; i < 10; i++ {
		m.Append("user", fmt.Sprintf("q%d", i))
	}

	ctx := m.ContextString(3)
	if strings.Contains(ctx, "q6") {
		t.Errorf("expected only last 3 turns, got %q", ctx)
	}
	for _, want := range []string{"q7", "q8", "q9"} {
		if !strings.Contains(ctx, want) {
			t.Errorf("missing %s in window: %q", want, ctx)
		}
	}
}

func TestClear(t *testing.T) {
	m := New(20, 0)
	m.AppendExchange("q", "a")
	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("expected empty memory, got %d turns", m.Len())
	}
}

func TestSessionStoreIsolation(t *testing.T) {
	store := NewSessionStore(20, 0)
	store.Get("alice").Append("user", "alice question")
	store.Get("bob").Append("user", "bob question")

	if store.Get("alice").Len() != 1 || store.Get("bob").Len() != 1 {
		t.Fatal("expected isolated sessions with one turn each")
	}
	if store.Get("alice").History()[0].Content != "alice question" {
		t.Error("session contents crossed")
	}

	store.Drop("alice")
	if store.Get("alice").Len() != 0 {
		t.Error("expected fresh session after drop")
	}
}
