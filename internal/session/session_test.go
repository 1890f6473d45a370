package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/plantia/plantia/internal/log"
)

func TestStore_AppendAndHistory(t *testing.T) {
	s := NewStore(10, log.NewNop())
	id := NewSessionID()

	s.Append(id, RoleUser, "hola")
	s.Append(id, RoleAssistant, "hola, ¿en qué puedo ayudar?")

	history := s.History(id)
	if len(history) != 2 {
		t.Fatalf("len = %d, want 2", len(history))
	}
	if history[0].Role != RoleUser || history[0].Content != "hola" {
		t.Errorf("first message = %+v", history[0])
	}
	if history[1].Role != RoleAssistant {
		t.Errorf("second message role = %q", history[1].Role)
	}
}

func TestStore_BoundedHistory(t *testing.T) {
	s := NewStore(3, log.NewNop())
	id := NewSessionID()

	for i := 0; i < 5; i++ {
		s.Append(id, RoleUser, fmt.Sprintf("m%d", i))
	}

	history := s.History(id)
	if len(history) != 3 {
		t.Fatalf("len = %d, want 3", len(history))
	}
	// Oldest messages evicted first.
	if history[0].Content != "m2" || history[2].Content != "m4" {
		t.Errorf("history = %v", history)
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(10, log.NewNop())
	id := NewSessionID()

	s.Append(id, RoleUser, "hola")
	s.Clear(id)

	if got := s.History(id); len(got) != 0 {
		t.Errorf("history after clear = %v", got)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestStore_HistoryIsACopy(t *testing.T) {
	s := NewStore(10, log.NewNop())
	id := NewSessionID()
	s.Append(id, RoleUser, "original")

	history := s.History(id)
	history[0].Content = "mutated"

	if got := s.History(id)[0].Content; got != "original" {
		t.Errorf("stored message mutated through returned slice: %q", got)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(20, log.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", n%4)
			for j := 0; j < 50; j++ {
				s.Append(id, RoleUser, "msg")
				s.History(id)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 4 {
		t.Errorf("Len() = %d, want 4", s.Len())
	}
}

func TestValidID(t *testing.T) {
	if !ValidID(NewSessionID()) {
		t.Error("generated id should validate")
	}
	if ValidID("not-a-uuid") {
		t.Error("malformed id should not validate")
	}
}
