package chat

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSessionResetClearsState(t *testing.T) {
	s := NewSession(zerolog.Nop())
	s.SetChatID(9)
	s.AppendTurn(SpeakerAssistant, "hello")
	s.AppendTurn(SpeakerUser, "hi")
	s.SetError("something broke")

	s.Reset()

	if got := s.Transcript(); len(got) != 0 {
		t.Fatalf("transcript length = %d, want 0", len(got))
	}
	if _, ok := s.ChatID(); ok {
		t.Fatalf("chat id should be unset after reset")
	}
	if s.Status() != StatusIdle {
		t.Fatalf("status = %q, want %q", s.Status(), StatusIdle)
	}
	if s.LastError() != "" {
		t.Fatalf("last error = %q, want empty", s.LastError())
	}
}

func TestSessionTurnIDsAreMonotonic(t *testing.T) {
	s := NewSession(zerolog.Nop())
	a := s.AppendTurn(SpeakerUser, "one")
	b := s.AppendTurn(SpeakerAssistant, "two")
	c := s.AppendAssistantPlaceholder()

	if !(a.ID < b.ID && b.ID < c.ID) {
		t.Fatalf("ids not monotonically increasing: %d, %d, %d", a.ID, b.ID, c.ID)
	}
}

func TestAppendToActiveAssistantTurn(t *testing.T) {
	s := NewSession(zerolog.Nop())
	s.AppendTurn(SpeakerAssistant, "greeting")
	s.AppendTurn(SpeakerUser, "hi")
	placeholder := s.AppendAssistantPlaceholder()

	s.AppendToActiveAssistantTurn("Hel")
	s.AppendToActiveAssistantTurn("lo")

	got := s.Transcript()
	last := got[len(got)-1]
	if last.ID != placeholder.ID {
		t.Fatalf("fragment applied to turn %d, want %d", last.ID, placeholder.ID)
	}
	if last.Text != "Hello" {
		t.Fatalf("text = %q, want %q", last.Text, "Hello")
	}
	if !last.UpdatedAt.After(placeholder.UpdatedAt) && !last.UpdatedAt.Equal(placeholder.UpdatedAt) {
		t.Fatalf("UpdatedAt went backwards: %v -> %v", placeholder.UpdatedAt, last.UpdatedAt)
	}
	// The earlier assistant turn must be untouched.
	if got[0].Text != "greeting" {
		t.Fatalf("first turn text = %q, want %q", got[0].Text, "greeting")
	}
}

func TestAppendFragmentWithoutAssistantTurnIsDropped(t *testing.T) {
	s := NewSession(zerolog.Nop())
	s.AppendTurn(SpeakerUser, "hi")

	// A fragment arriving after a reset race must not panic or mutate.
	s.AppendToActiveAssistantTurn("stray")

	got := s.Transcript()
	if len(got) != 1 || got[0].Text != "hi" {
		t.Fatalf("transcript mutated by stray fragment: %+v", got)
	}
}

func TestTranscriptReturnsCopy(t *testing.T) {
	s := NewSession(zerolog.Nop())
	s.AppendTurn(SpeakerUser, "hi")

	snapshot := s.Transcript()
	snapshot[0].Text = "mutated"

	if got := s.Transcript()[0].Text; got != "hi" {
		t.Fatalf("internal state mutated through snapshot: %q", got)
	}
}
