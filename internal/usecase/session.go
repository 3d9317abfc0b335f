package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hta-chat/internal/domain"
)

const (
	titleLength   = 30
	previewLength = 50
)

type SessionStore interface {
	Load(ctx context.Context) []domain.Session
	Save(ctx context.Context, sessions []domain.Session) error
}

// refresher is implemented by stores that report read failures instead of
// returning an empty list.
type refresher interface {
	Refresh(ctx context.Context) ([]domain.Session, error)
}

// SessionManager is the only writer of the session store within a process.
// The full session list is held in memory, most recently persisted first,
// and rewritten to the store on every mutation. With WithReloadPerCall the
// list is re-read before each operation, for stores shared between
// processes.
type SessionManager struct {
	store  SessionStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	reloadPerCall bool

	mu       sync.Mutex
	loaded   bool
	sessions []domain.Session
}

type ManagerOption func(*SessionManager)

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithIDGenerator(newID func() string) ManagerOption {
	return func(m *SessionManager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// WithReloadPerCall re-reads the store at the start of every operation so
// sessions written by other processes are seen and kept.
func WithReloadPerCall() ManagerOption {
	return func(m *SessionManager) {
		m.reloadPerCall = true
	}
}

func NewSessionManager(store SessionStore, opts ...ManagerOption) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	m := &SessionManager{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		newID:  newUUID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Initialize loads the stored sessions. Calling it again reloads from the
// store. Other operations load lazily if Initialize was never called.
func (m *SessionManager) Initialize(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = m.store.Load(ctx)
	m.loaded = true
	m.logger.Debug("sessions loaded", "count", len(m.sessions))
}

func (m *SessionManager) ensureLoadedLocked(ctx context.Context) {
	if m.loaded {
		return
	}
	m.sessions = m.store.Load(ctx)
	m.loaded = true
}

// syncLocked brings the cached list up to date before an operation.
func (m *SessionManager) syncLocked(ctx context.Context) error {
	if !m.reloadPerCall {
		m.ensureLoadedLocked(ctx)
		return nil
	}
	r, ok := m.store.(refresher)
	if !ok {
		m.sessions = m.store.Load(ctx)
		m.loaded = true
		return nil
	}
	sessions, err := r.Refresh(ctx)
	if err != nil {
		return err
	}
	m.sessions = sessions
	m.loaded = true
	return nil
}

// StartNewSession returns an unsaved, empty session. The store is untouched.
func (m *SessionManager) StartNewSession() domain.Session {
	return domain.Session{Messages: []domain.Message{}}
}

// ListSessions returns summaries, most recently persisted first.
func (m *SessionManager) ListSessions(ctx context.Context) []domain.SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.syncLocked(ctx); err != nil {
		m.logger.Warn("session store refresh failed, listing cached sessions", "err", err)
		m.ensureLoadedLocked(ctx)
	}

	out := make([]domain.SessionSummary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Summary())
	}
	return out
}

// LoadSession returns a copy of the stored session or *domain.NotFoundError.
func (m *SessionManager) LoadSession(ctx context.Context, id string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.syncLocked(ctx); err != nil {
		return domain.Session{}, fmt.Errorf("usecase: load session: %w", err)
	}

	if i := m.indexLocked(id); i >= 0 {
		return m.sessions[i].Clone(), nil
	}
	return domain.Session{}, &domain.NotFoundError{ID: id}
}

// DeleteSession removes id and persists the remaining set. Unknown ids are a
// no-op.
func (m *SessionManager) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.syncLocked(ctx); err != nil {
		return newError(ErrorInternal, "store_read_error", err)
	}

	i := m.indexLocked(id)
	if i < 0 {
		return nil
	}
	next := make([]domain.Session, 0, len(m.sessions)-1)
	next = append(next, m.sessions[:i]...)
	next = append(next, m.sessions[i+1:]...)

	if err := m.store.Save(ctx, next); err != nil {
		return newError(ErrorInternal, "store_write_error", err)
	}
	m.sessions = next
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// PersistTurn upserts the session identified by currentID with messages and
// moves it to the front of the list. An empty currentID starts a new session:
// a fresh id is assigned and the title is derived from the first message.
// The title of an existing session is never recomputed; preview and
// timestamp always are.
func (m *SessionManager) PersistTurn(ctx context.Context, currentID string, messages []domain.Message) (string, error) {
	if len(messages) == 0 {
		return "", newError(ErrorInvalidInput, "empty_session", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.syncLocked(ctx); err != nil {
		return "", newError(ErrorInternal, "store_read_error", err)
	}

	id := currentID
	title := ""
	existing := -1
	if id == "" {
		id = m.newID()
	} else {
		existing = m.indexLocked(id)
	}
	if existing >= 0 {
		title = m.sessions[existing].Title
	} else {
		title = truncateRunes(messages[0].Content, titleLength)
	}

	updated := domain.Session{
		ID:        id,
		Title:     title,
		Preview:   truncateRunes(messages[len(messages)-1].Content, previewLength),
		Timestamp: m.now(),
		Messages:  append([]domain.Message(nil), messages...),
	}

	next := make([]domain.Session, 0, len(m.sessions)+1)
	next = append(next, updated)
	for i, s := range m.sessions {
		if i == existing {
			continue
		}
		next = append(next, s)
	}

	if err := m.store.Save(ctx, next); err != nil {
		return "", newError(ErrorInternal, "store_write_error", err)
	}
	m.sessions = next
	return id, nil
}

func (m *SessionManager) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, s := range m.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// truncateRunes returns the leading n runes of the trimmed string.
func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var newUUID = func() string {
	return uuid.NewString()
}
