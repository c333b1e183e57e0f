package assess

import (
	"errors"
	"fmt"
	"time"
)

// CreateChatRequest opens a new chat session scoped to a screening report.
type CreateChatRequest struct {
	ReportID int64 `json:"report_id"`
}

// CreateChatResponse carries the server-assigned chat id and the opening
// assistant greeting.
type CreateChatResponse struct {
	ChatID  int64  `json:"chat_id"`
	Message string `json:"message"`
}

// MessageRequest is the payload for both the streamed and non-streamed send
// paths.
type MessageRequest struct {
	ReportID int64  `json:"report_id"`
	ChatID   int64  `json:"chat_id"`
	Message  string `json:"message"`
}

// LogEntry is one persisted turn as returned by the chat log endpoints.
type LogEntry struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Evaluation is the result of finalizing a chat session.
type Evaluation struct {
	ChatResult string `json:"chat_result"`
	ChatRisk   string `json:"chat_risk"`
	Message    string `json:"message"`
}

// ErrNoSession is returned when a call requiring an active chat session is
// made with no chat id; no network request is attempted.
var ErrNoSession = errors.New("assess: active chat session required")

// StatusError reports a non-2xx response from the assessment API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("assess: http status %d: %s", e.StatusCode, e.Body)
}
