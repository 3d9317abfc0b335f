package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hta-chat/internal/domain"
)

// memStore is an in-memory SessionStore that records every Save. saveErr
// applies once saveErrAfter saves have succeeded.
type memStore struct {
	mu           sync.Mutex
	sessions     []domain.Session
	saves        int
	saveErr      error
	saveErrAfter int
	refreshErr   error
}

func (m *memStore) Load(_ context.Context) []domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out
}

func (m *memStore) Refresh(ctx context.Context) ([]domain.Session, error) {
	m.mu.Lock()
	err := m.refreshErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.Load(ctx), nil
}

func (m *memStore) Save(_ context.Context, sessions []domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil && m.saves >= m.saveErrAfter {
		return m.saveErr
	}
	m.saves++
	m.sessions = make([]domain.Session, 0, len(sessions))
	for _, s := range sessions {
		m.sessions = append(m.sessions, s.Clone())
	}
	return nil
}

func (m *memStore) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for _, s := range m.sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

type stubGen struct {
	mu       sync.Mutex
	reply    string
	err      error
	credErr  error
	role     string
	calls    int
	lastReq  domain.GenerationRequest
	block    chan struct{}
	entered  chan struct{}
	deadline bool
}

func (s *stubGen) CheckCredential(_ context.Context) error { return s.credErr }

func (s *stubGen) AssistantRole() string {
	if s.role == "" {
		return "model"
	}
	return s.role
}

func (s *stubGen) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	s.mu.Lock()
	s.calls++
	s.lastReq = req
	_, s.deadline = ctx.Deadline()
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func (s *stubGen) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("sess-%d", n)
	}
}

func newTestManager(t *testing.T, store *memStore) *SessionManager {
	t.Helper()
	m, err := NewSessionManager(store,
		WithManagerLogger(quietLogger()),
		WithClock(fixedClock(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))),
		WithIDGenerator(sequentialIDs()),
	)
	require.NoError(t, err)
	return m
}

func newTestOrchestrator(gen GenerationService, opts ...OrchestratorOption) *Orchestrator {
	return NewOrchestrator(gen, append([]OrchestratorOption{WithOrchestratorLogger(quietLogger())}, opts...)...)
}

func expectUsecaseError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}
