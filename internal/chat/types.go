package chat

import (
	"errors"
	"time"
)

// Speaker identifies which side of the conversation produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Status describes what the session is currently doing.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusCreating         Status = "creating"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusError            Status = "error"
)

// ErrInvalidState is returned when an operation's precondition does not hold,
// e.g. sending a message before a chat session exists. Callers should not
// retry without changing state first.
var ErrInvalidState = errors.New("chat: operation not valid in current session state")

// Turn is one message within the transcript. IDs are minted locally from a
// per-session counter; they correlate turns on this client only and are never
// reconciled against server-side ids.
type Turn struct {
	ID        int64     `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
