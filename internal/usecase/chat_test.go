package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hta-chat/internal/domain"
)

func newTestChat(t *testing.T, store *memStore, gen GenerationService) (*ChatService, *SessionManager) {
	t.Helper()
	m := newTestManager(t, store)
	c, err := NewChatService(m, newTestOrchestrator(gen), 50)
	require.NoError(t, err)
	return c, m
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	m := newTestManager(t, &memStore{})
	_, err := NewChatService(nil, newTestOrchestrator(nil), 10)
	require.Error(t, err)
	_, err = NewChatService(m, nil, 10)
	require.Error(t, err)
}

func TestSend_EndToEnd(t *testing.T) {
	store := &memStore{}
	c, _ := newTestChat(t, store, &stubGen{reply: "Hi there"})
	require.True(t, c.Current().IsNew())

	ex, err := c.Send(context.Background(), "Hello")
	require.NoError(t, err)
	require.NotEmpty(t, ex.Session.ID)
	require.Equal(t, []domain.Message{
		domain.UserMessage("Hello"),
		domain.AssistantMessage("Hi there"),
	}, ex.Session.Messages)
	require.Equal(t, "Hi there", ex.Session.Preview)
	require.Equal(t, "Hello", ex.Session.Title)
	require.Equal(t, domain.AssistantMessage("Hi there"), ex.Reply)

	require.Equal(t, ex.Session.ID, c.Current().ID)
	require.Equal(t, []string{ex.Session.ID}, store.ids())
	require.Equal(t, 2, store.saves, "user turn and reply are each persisted")
}

func TestSend_ContinuesCurrentSession(t *testing.T) {
	store := &memStore{}
	gen := &stubGen{reply: "one"}
	c, _ := newTestChat(t, store, gen)
	ctx := context.Background()

	first, err := c.Send(ctx, "Hello")
	require.NoError(t, err)

	gen.reply = "two"
	second, err := c.Send(ctx, "Again")
	require.NoError(t, err)
	require.Equal(t, first.Session.ID, second.Session.ID)
	require.Len(t, second.Session.Messages, 4)
	require.Equal(t, "Hello", second.Session.Title)
	require.Equal(t, "two", second.Session.Preview)

	require.Equal(t, []domain.Turn{{Role: "user", Text: "Hello"}, {Role: "model", Text: "one"}}, gen.lastReq.History)
	require.Equal(t, "Again", gen.lastReq.Text)
	require.Len(t, store.ids(), 1)
}

func TestSend_FailureIsRecordedAsMessage(t *testing.T) {
	store := &memStore{}
	c, _ := newTestChat(t, store, &stubGen{err: &domain.ProviderError{Category: domain.FailureQuotaExceeded}})

	ex, err := c.Send(context.Background(), "Hello")
	require.NoError(t, err)
	require.Equal(t, msgQuotaExceeded, ex.Reply.Content)
	require.Len(t, ex.Session.Messages, 2)
	require.Equal(t, msgQuotaExceeded, ex.Session.Messages[1].Content)
}

func TestSend_ValidationErrors(t *testing.T) {
	store := &memStore{}
	gen := &stubGen{reply: "x"}
	c, _ := newTestChat(t, store, gen)

	_, err := c.Send(context.Background(), "   ")
	expectUsecaseError(t, err, ErrorInvalidInput, "empty_message")
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = c.Send(context.Background(), strings.Repeat("á", 51))
	expectUsecaseError(t, err, ErrorInvalidInput, "message_too_long")

	require.Zero(t, gen.callCount())
	require.Zero(t, store.saves)
}

func TestConverse_UnknownSession(t *testing.T) {
	c, _ := newTestChat(t, &memStore{}, &stubGen{reply: "x"})
	_, err := c.Converse(context.Background(), "missing", "Hello")
	expectUsecaseError(t, err, ErrorNotFound, "session_not_found")
}

func TestConverse_StoreWriteFailure(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	gen := &stubGen{reply: "x"}
	c, _ := newTestChat(t, store, gen)

	_, err := c.Converse(context.Background(), "", "Hello")
	expectUsecaseError(t, err, ErrorInternal, "store_write_error")
	require.Zero(t, gen.callCount())
}

func TestSend_ReplyWriteFailureKeepsStoredSessionCurrent(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full"), saveErrAfter: 1}
	gen := &stubGen{reply: "Hi there"}
	c, _ := newTestChat(t, store, gen)
	ctx := context.Background()

	_, err := c.Send(ctx, "Hello")
	expectUsecaseError(t, err, ErrorInternal, "store_write_error")
	require.Equal(t, []string{"sess-1"}, store.ids())

	cur := c.Current()
	require.Equal(t, "sess-1", cur.ID)
	require.Equal(t, []domain.Message{domain.UserMessage("Hello")}, cur.Messages)

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()

	ex, err := c.Send(ctx, "Again")
	require.NoError(t, err)
	require.Equal(t, "sess-1", ex.Session.ID)
	require.Equal(t, []string{"sess-1"}, store.ids())
	require.Len(t, ex.Session.Messages, 3)
}

func TestConverse_RejectsConcurrentTurnOnSameSession(t *testing.T) {
	store := &memStore{}
	gen := &stubGen{reply: "first"}
	c, _ := newTestChat(t, store, gen)
	ctx := context.Background()

	ex, err := c.Send(ctx, "Hello")
	require.NoError(t, err)
	id := ex.Session.ID

	gen.block = make(chan struct{})
	gen.entered = make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		_, err := c.Converse(ctx, id, "slow")
		done <- err
	}()
	<-gen.entered

	_, err = c.Converse(ctx, id, "racing")
	expectUsecaseError(t, err, ErrorSessionBusy, "turn_in_flight")

	close(gen.block)
	require.NoError(t, <-done)

	s, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, s.Messages, 4)
	require.Equal(t, "slow", s.Messages[2].Content)
}

func TestOpenAndDelete(t *testing.T) {
	store := &memStore{}
	c, _ := newTestChat(t, store, &stubGen{reply: "r"})
	ctx := context.Background()

	a, err := c.Send(ctx, "A")
	require.NoError(t, err)
	c.NewChat()
	require.True(t, c.Current().IsNew())
	b, err := c.Send(ctx, "B")
	require.NoError(t, err)

	opened, err := c.Open(ctx, a.Session.ID)
	require.NoError(t, err)
	require.Equal(t, a.Session.ID, opened.ID)
	require.Equal(t, a.Session.ID, c.Current().ID)

	list := c.List(ctx)
	require.Len(t, list, 2)
	require.Equal(t, b.Session.ID, list[0].ID)

	require.NoError(t, c.Delete(ctx, b.Session.ID))
	require.Equal(t, a.Session.ID, c.Current().ID, "deleting another session keeps the current one")

	require.NoError(t, c.Delete(ctx, a.Session.ID))
	require.True(t, c.Current().IsNew(), "deleting the current session starts a new one")
	require.Empty(t, c.List(ctx))

	require.NoError(t, c.Delete(ctx, a.Session.ID))

	_, err = c.Open(ctx, a.Session.ID)
	expectUsecaseError(t, err, ErrorNotFound, "session_not_found")
}
