package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a chat id or report id with no persisted session.
var ErrNotFound = errors.New("store: not found")

// Entry is one persisted chat turn.
type Entry struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	ReportID  int64     `json:"report_id"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists chat sessions and transcripts for the dev relay.
type Store interface {
	// CreateChat registers a new chat session under a report and returns
	// its id.
	CreateChat(ctx context.Context, reportID int64) (int64, error)
	// ChatByReport returns the most recent chat id for a report.
	ChatByReport(ctx context.Context, reportID int64) (int64, error)
	// ChatReport returns the report a chat belongs to.
	ChatReport(ctx context.Context, chatID int64) (int64, error)
	AppendEntry(ctx context.Context, entry Entry) (Entry, error)
	EntriesByReport(ctx context.Context, reportID int64) ([]Entry, error)
	EntriesByChat(ctx context.Context, chatID int64) ([]Entry, error)
	Close() error
}
