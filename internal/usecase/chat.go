package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"hta-chat/internal/domain"
)

const defaultMaxInputLength = 4000

// SessionLifecycle is the session manager surface used by ChatService.
type SessionLifecycle interface {
	StartNewSession() domain.Session
	ListSessions(ctx context.Context) []domain.SessionSummary
	LoadSession(ctx context.Context, id string) (domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
	PersistTurn(ctx context.Context, currentID string, messages []domain.Message) (string, error)
}

type Submitter interface {
	Submit(ctx context.Context, sessionID string, history []domain.Message, text string) (domain.Message, error)
}

// Exchange is the outcome of one user turn.
type Exchange struct {
	Session domain.Session
	Reply   domain.Message
}

// ChatService drives a conversation turn end to end and tracks the
// session currently shown to the user.
type ChatService struct {
	sessions    SessionLifecycle
	submitter   Submitter
	maxInputLen int
	turns       *flightGate

	mu      sync.Mutex
	current domain.Session
}

func NewChatService(sessions SessionLifecycle, submitter Submitter, maxInputLen int) (*ChatService, error) {
	if sessions == nil {
		return nil, errors.New("usecase: session lifecycle must not be nil")
	}
	if submitter == nil {
		return nil, errors.New("usecase: submitter must not be nil")
	}
	if maxInputLen <= 0 {
		maxInputLen = defaultMaxInputLength
	}
	return &ChatService{
		sessions:    sessions,
		submitter:   submitter,
		maxInputLen: maxInputLen,
		turns:       newFlightGate(),
		current:     sessions.StartNewSession(),
	}, nil
}

// Current returns a copy of the session currently in view.
func (c *ChatService) Current() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// NewChat switches the view to a new, unsaved session.
func (c *ChatService) NewChat() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.sessions.StartNewSession()
	return c.current.Clone()
}

func (c *ChatService) List(ctx context.Context) []domain.SessionSummary {
	return c.sessions.ListSessions(ctx)
}

// Open makes the stored session id the current one.
func (c *ChatService) Open(ctx context.Context, id string) (domain.Session, error) {
	sess, err := c.load(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	return sess.Clone(), nil
}

// Get returns a stored session without changing the current one.
func (c *ChatService) Get(ctx context.Context, id string) (domain.Session, error) {
	return c.load(ctx, id)
}

// Delete removes a stored session. If it was the current one, the view
// moves to a new, unsaved session.
func (c *ChatService) Delete(ctx context.Context, id string) error {
	if err := c.sessions.DeleteSession(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	if id != "" && c.current.ID == id {
		c.current = c.sessions.StartNewSession()
	}
	c.mu.Unlock()
	return nil
}

// Send runs one turn on the current session and keeps it current. When the
// turn fails after the user message was stored, the view follows the stored
// session so the next Send continues it.
func (c *ChatService) Send(ctx context.Context, text string) (Exchange, error) {
	c.mu.Lock()
	id := c.current.ID
	c.mu.Unlock()

	ex, persistedID, err := c.converse(ctx, id, text)
	if err != nil {
		if persistedID != "" {
			if sess, loadErr := c.sessions.LoadSession(ctx, persistedID); loadErr == nil {
				c.mu.Lock()
				c.current = sess
				c.mu.Unlock()
			}
		}
		return Exchange{}, err
	}
	c.mu.Lock()
	c.current = ex.Session.Clone()
	c.mu.Unlock()
	return ex, nil
}

// Converse runs one turn on sessionID, or on a new session when sessionID
// is empty: the user message is persisted, the reply is generated and
// persisted after it.
func (c *ChatService) Converse(ctx context.Context, sessionID, text string) (Exchange, error) {
	ex, _, err := c.converse(ctx, sessionID, text)
	return ex, err
}

// converse also returns the id the user message was stored under, which is
// set even when a later step fails.
func (c *ChatService) converse(ctx context.Context, sessionID, text string) (Exchange, string, error) {
	if err := c.validate(text); err != nil {
		return Exchange{}, "", err
	}

	if sessionID != "" {
		release, ok := c.turns.tryAcquire(sessionID)
		if !ok {
			return Exchange{}, "", newError(ErrorSessionBusy, "turn_in_flight", ErrSessionBusy)
		}
		defer release()
	}

	sess := c.sessions.StartNewSession()
	if sessionID != "" {
		var err error
		if sess, err = c.load(ctx, sessionID); err != nil {
			return Exchange{}, "", err
		}
	}

	history := sess.Messages
	messages := append(append([]domain.Message(nil), history...), domain.UserMessage(text))
	id, err := c.sessions.PersistTurn(ctx, sess.ID, messages)
	if err != nil {
		return Exchange{}, "", err
	}

	reply, err := c.submitter.Submit(ctx, id, history, text)
	if err != nil {
		if errors.Is(err, ErrSessionBusy) {
			return Exchange{}, id, newError(ErrorSessionBusy, "submit_in_flight", err)
		}
		if errors.Is(err, ErrEmptyInput) {
			return Exchange{}, id, newError(ErrorInvalidInput, "empty_message", err)
		}
		return Exchange{}, id, newError(ErrorInternal, "submit_error", err)
	}

	messages = append(messages, reply)
	if _, err := c.sessions.PersistTurn(ctx, id, messages); err != nil {
		return Exchange{}, id, err
	}

	stored, err := c.load(ctx, id)
	if err != nil {
		return Exchange{}, id, err
	}
	return Exchange{Session: stored, Reply: reply}, id, nil
}

func (c *ChatService) validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return newError(ErrorInvalidInput, "empty_message", ErrEmptyInput)
	}
	if utf8.RuneCountInString(text) > c.maxInputLen {
		return newError(ErrorInvalidInput, "message_too_long", nil)
	}
	return nil
}

func (c *ChatService) load(ctx context.Context, id string) (domain.Session, error) {
	sess, err := c.sessions.LoadSession(ctx, id)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return domain.Session{}, newError(ErrorNotFound, "session_not_found", err)
		}
		return domain.Session{}, newError(ErrorInternal, "session_load_error", err)
	}
	return sess, nil
}
