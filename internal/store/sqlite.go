package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists chat sessions in a local SQLite file, for dev setups
// without a PostgreSQL instance.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The sqlite driver is not safe for concurrent writers over multiple
	// connections on one file.
	db.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			report_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_report ON chats (report_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			report_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_entries_chat_created ON chat_entries (chat_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateChat(ctx context.Context, reportID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (report_id, created_at) VALUES (?, ?)`,
		reportID, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("create chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create chat id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ChatByReport(ctx context.Context, reportID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM chats WHERE report_id=? ORDER BY created_at DESC, id DESC LIMIT 1`,
		reportID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("chat by report: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ChatReport(ctx context.Context, chatID int64) (int64, error) {
	var reportID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT report_id FROM chats WHERE id=?`, chatID,
	).Scan(&reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("chat report: %w", err)
	}
	return reportID, nil
}

func (s *SQLiteStore) AppendEntry(ctx context.Context, entry Entry) (Entry, error) {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_entries (chat_id, report_id, role, message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ChatID,
		entry.ReportID,
		entry.Role,
		entry.Message,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append entry: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("append entry id: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) EntriesByReport(ctx context.Context, reportID int64) ([]Entry, error) {
	return s.queryEntries(ctx,
		`SELECT id, chat_id, report_id, role, message, created_at, updated_at
		 FROM chat_entries WHERE report_id=? ORDER BY created_at ASC, id ASC`,
		reportID,
	)
}

func (s *SQLiteStore) EntriesByChat(ctx context.Context, chatID int64) ([]Entry, error) {
	return s.queryEntries(ctx,
		`SELECT id, chat_id, report_id, role, message, created_at, updated_at
		 FROM chat_entries WHERE chat_id=? ORDER BY created_at ASC, id ASC`,
		chatID,
	)
}

func (s *SQLiteStore) queryEntries(ctx context.Context, query string, arg int64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var items []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ChatID, &e.ReportID, &e.Role, &e.Message, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
