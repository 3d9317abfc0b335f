package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"hta-chat/internal/domain"
)

// Backend is a key-value medium holding one serialized blob. Read returns
// (nil, nil) when nothing has been written yet. Write replaces the whole
// value in one operation.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Store persists the full ordered session list as a single JSON blob.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

type StoreOption func(*Store)

func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a Store over the given backend.
func NewStore(backend Backend, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, errors.New("repository: backend must not be nil")
	}
	s := &Store{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load reads the persisted session list. Absent, unreadable or malformed
// data yields an empty list; it is never reported as a failure.
func (s *Store) Load(ctx context.Context) []domain.Session {
	sessions, err := s.Refresh(ctx)
	if err != nil {
		s.logger.Warn("session store unreadable, starting empty", "err", err)
		return []domain.Session{}
	}
	return sessions
}

// Refresh is Load for callers that already hold a session list: a backend
// read error is returned so the caller can keep what it has. Malformed data
// is still an empty list.
func (s *Store) Refresh(ctx context.Context) ([]domain.Session, error) {
	raw, err := s.backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: Refresh: %w", err)
	}
	if len(raw) == 0 {
		return []domain.Session{}, nil
	}

	var stored []domain.Session
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Warn("session store malformed, starting empty", "err", err)
		return []domain.Session{}, nil
	}

	sessions := make([]domain.Session, 0, len(stored))
	for _, sess := range stored {
		if sess.ID == "" || len(sess.Messages) == 0 {
			s.logger.Warn("dropping invalid stored session", "session_id", sess.ID, "messages", len(sess.Messages))
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Save serializes the complete list and overwrites the stored blob.
func (s *Store) Save(ctx context.Context, sessions []domain.Session) error {
	if sessions == nil {
		sessions = []domain.Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("repository: Save marshal: %w", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}
