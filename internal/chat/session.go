package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Session is the single mutable source of truth for one screening
// conversation: the server-assigned chat id, the ordered transcript and the
// status flags the UI renders from. All mutation goes through methods; reads
// return copies so callers can never alias internal state.
type Session struct {
	mu         sync.Mutex
	chatID     int64
	hasChat    bool
	transcript []Turn
	status     Status
	lastError  string
	nextTurnID int64
	log        zerolog.Logger
}

func NewSession(log zerolog.Logger) *Session {
	return &Session{
		status: StatusIdle,
		log:    log.With().Str("component", "chat.session").Logger(),
	}
}

// Reset clears the transcript, the chat id and any recorded error, returning
// the session to idle. Losing the local transcript is safe: the server
// remains the source of truth and logs can be re-fetched by report id.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = 0
	s.hasChat = false
	s.transcript = nil
	s.lastError = ""
	s.status = StatusIdle
}

// SetChatID records the server-assigned chat identifier.
func (s *Session) SetChatID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = id
	s.hasChat = true
}

// ChatID reports the active chat identifier, if one has been assigned.
func (s *Session) ChatID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID, s.hasChat
}

// AppendTurn appends a complete turn to the transcript and returns a copy of
// it. Ordering is insertion order; turns are never reordered or removed
// except by Reset.
func (s *Session) AppendTurn(speaker Speaker, text string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(speaker, text)
}

// AppendAssistantPlaceholder appends an empty assistant turn that a stream
// will fill in. The placeholder exists so consumers can render a pending
// state immediately after the user's message is echoed.
func (s *Session) AppendAssistantPlaceholder() Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(SpeakerAssistant, "")
}

func (s *Session) appendLocked(speaker Speaker, text string) Turn {
	s.nextTurnID++
	now := time.Now().UTC()
	t := Turn{
		ID:        s.nextTurnID,
		Speaker:   speaker,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.transcript = append(s.transcript, t)
	return t
}

// AppendToActiveAssistantTurn concatenates a streamed fragment onto the most
// recently appended assistant turn. A fragment arriving when no assistant
// turn exists (e.g. after a reset raced a stream) is logged and dropped
// rather than treated as fatal.
func (s *Session) AppendToActiveAssistantTurn(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.transcript) - 1; i >= 0; i-- {
		if s.transcript[i].Speaker != SpeakerAssistant {
			continue
		}
		s.transcript[i].Text += fragment
		s.transcript[i].UpdatedAt = time.Now().UTC()
		return
	}
	s.log.Warn().Msg("dropping stream fragment: no assistant turn in transcript")
}

// Transcript returns a copy of the transcript in conversation order.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetError records a human-readable failure description and flips the
// session into the error status.
func (s *Session) SetError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = message
	s.status = StatusError
}

// ClearError wipes the recorded failure; called on the next successful
// operation.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
