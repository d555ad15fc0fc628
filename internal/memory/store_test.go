package memory

import (
	"testing"

	"github.com/wiplab/wip-agent/internal/llm"
)

func user(content string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: content}
}

func TestAppendAndHistory(t *testing.T) {
	s := NewStore(5)
	s.Append("s1", user("hello"))
	s.Append("s1", llm.Message{Role: llm.RoleAssistant, Content: "hi"})

	h := s.History("s1")
	if len(h) != 2 {
		t.Fatalf("history len = %d, want 2", len(h))
	}
	if h[0].Content != "hello" || h[1].Content != "hi" {
		t.Errorf("history = %+v", h)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewStore(5)
	s.Append("s1", user("original"))

	h := s.History("s1")
	h[0].Content = "mutated"

	if got := s.History("s1")[0].Content; got != "original" {
		t.Errorf("store mutated through returned slice: %q", got)
	}
}

func TestHistoryDoesNotCreateSession(t *testing.T) {
	s := NewStore(5)
	if h := s.History("ghost"); h != nil {
		t.Errorf("history of unknown session = %v, want nil", h)
	}
	if n := len(s.Sessions()); n != 0 {
		t.Errorf("read created a session: %d live", n)
	}
}

func TestEvictionKeepsPinnedSystem(t *testing.T) {
	s := NewStore(3)
	s.PinSystem("s1", "system prompt")
	s.Append("s1", user("turn1"))
	s.Append("s1", user("turn2"))
	s.Append("s1", user("turn3"))

	h := s.History("s1")
	if len(h) != 3 {
		t.Fatalf("history len = %d, want 3", len(h))
	}
	if h[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %s, want system", h[0].Role)
	}
	if h[1].Content != "turn2" || h[2].Content != "turn3" {
		t.Errorf("wrong eviction order: %+v", h)
	}
}

func TestEvictionWithoutSystem(t *testing.T) {
	s := NewStore(2)
	s.Append("s1", user("a"), user("b"), user("c"))

	h := s.History("s1")
	if len(h) != 2 {
		t.Fatalf("history len = %d, want 2", len(h))
	}
	if h[0].Content != "b" || h[1].Content != "c" {
		t.Errorf("history = %+v", h)
	}
}

func TestPinSystemOnFullLog(t *testing.T) {
	s := NewStore(2)
	s.Append("s1", user("a"), user("b"))
	s.PinSystem("s1", "sys")

	h := s.History("s1")
	if len(h) != 2 {
		t.Fatalf("history len = %d, want 2", len(h))
	}
	if h[0].Role != llm.RoleSystem || h[1].Content != "b" {
		t.Errorf("history = %+v", h)
	}
}

func TestPinSystemUpdatesInPlace(t *testing.T) {
	s := NewStore(5)
	s.PinSystem("s1", "v1")
	s.Append("s1", user("hello"))
	s.PinSystem("s1", "v2")

	h := s.History("s1")
	if len(h) != 2 {
		t.Fatalf("history len = %d, want 2", len(h))
	}
	if h[0].Content != "v2" {
		t.Errorf("system content = %q, want v2", h[0].Content)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(5)
	s.PinSystem("s1", "sys")
	s.Append("s1", user("hello"))
	s.Clear("s1")

	if h := s.History("s1"); h != nil {
		t.Errorf("history after clear = %v", h)
	}
}

func TestSessionsIsolated(t *testing.T) {
	s := NewStore(5)
	s.Append("s1", user("one"))
	s.Append("s2", user("two"))

	if got := s.History("s1")[0].Content; got != "one" {
		t.Errorf("s1 history = %q", got)
	}
	if got := s.History("s2")[0].Content; got != "two" {
		t.Errorf("s2 history = %q", got)
	}
}

func TestTurnLock(t *testing.T) {
	s := NewStore(5)

	if !s.BeginTurn("s1") {
		t.Fatal("first BeginTurn refused")
	}
	if s.BeginTurn("s1") {
		t.Fatal("second BeginTurn succeeded while turn in flight")
	}
	// Another session is unaffected.
	if !s.BeginTurn("s2") {
		t.Fatal("BeginTurn on other session refused")
	}
	s.EndTurn("s1")
	if !s.BeginTurn("s1") {
		t.Fatal("BeginTurn refused after EndTurn")
	}
	s.EndTurn("s1")
	s.EndTurn("s2")
}

func TestDefaultCapacity(t *testing.T) {
	s := NewStore(0)
	if s.Capacity() != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", s.Capacity(), DefaultCapacity)
	}
}
