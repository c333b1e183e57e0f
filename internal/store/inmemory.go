package store

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	chatSeq  int64
	entrySeq int64
	reports  map[int64]int64   // chat id -> report id
	chats    map[int64]int64   // report id -> latest chat id
	entries  map[int64][]Entry // chat id -> transcript
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		reports: make(map[int64]int64),
		chats:   make(map[int64]int64),
		entries: make(map[int64][]Entry),
	}
}

func (s *InMemoryStore) CreateChat(_ context.Context, reportID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatSeq++
	id := s.chatSeq
	s.reports[id] = reportID
	s.chats[reportID] = id
	return id, nil
}

func (s *InMemoryStore) ChatByReport(_ context.Context, reportID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.chats[reportID]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (s *InMemoryStore) ChatReport(_ context.Context, chatID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reportID, ok := s.reports[chatID]
	if !ok {
		return 0, ErrNotFound
	}
	return reportID, nil
}

func (s *InMemoryStore) AppendEntry(_ context.Context, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[entry.ChatID]; !ok {
		return Entry{}, ErrNotFound
	}
	s.entrySeq++
	entry.ID = s.entrySeq
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}
	s.entries[entry.ChatID] = append(s.entries[entry.ChatID], entry)
	return entry, nil
}

func (s *InMemoryStore) EntriesByReport(ctx context.Context, reportID int64) ([]Entry, error) {
	s.mu.RLock()
	chatID, ok := s.chats[reportID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.EntriesByChat(ctx, chatID)
}

func (s *InMemoryStore) EntriesByChat(_ context.Context, chatID int64) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.entries[chatID]
	out := make([]Entry, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
