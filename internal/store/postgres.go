package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists chat sessions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id BIGSERIAL PRIMARY KEY,
			report_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_report ON chats (report_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_entries (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL REFERENCES chats(id),
			report_id BIGINT NOT NULL,
			role TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_entries_chat_created ON chat_entries (chat_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateChat(ctx context.Context, reportID int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chats (report_id) VALUES ($1) RETURNING id`, reportID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create chat: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ChatByReport(ctx context.Context, reportID int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM chats WHERE report_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		reportID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("chat by report: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ChatReport(ctx context.Context, chatID int64) (int64, error) {
	var reportID int64
	err := s.pool.QueryRow(ctx,
		`SELECT report_id FROM chats WHERE id=$1`, chatID,
	).Scan(&reportID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("chat report: %w", err)
	}
	return reportID, nil
}

func (s *PostgresStore) AppendEntry(ctx context.Context, entry Entry) (Entry, error) {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_entries (chat_id, report_id, role, message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		entry.ChatID,
		entry.ReportID,
		entry.Role,
		entry.Message,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("append entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) EntriesByReport(ctx context.Context, reportID int64) ([]Entry, error) {
	return s.queryEntries(ctx,
		`SELECT id, chat_id, report_id, role, message, created_at, updated_at
		 FROM chat_entries WHERE report_id=$1 ORDER BY created_at ASC, id ASC`,
		reportID,
	)
}

func (s *PostgresStore) EntriesByChat(ctx context.Context, chatID int64) ([]Entry, error) {
	return s.queryEntries(ctx,
		`SELECT id, chat_id, report_id, role, message, created_at, updated_at
		 FROM chat_entries WHERE chat_id=$1 ORDER BY created_at ASC, id ASC`,
		chatID,
	)
}

func (s *PostgresStore) queryEntries(ctx context.Context, query string, arg int64) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, query, arg)
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

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
