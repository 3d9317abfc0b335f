package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hta-chat/internal/domain"
	"hta-chat/internal/repository"
)

func TestNewSessionManager_ValidatesStore(t *testing.T) {
	_, err := NewSessionManager(nil)
	require.Error(t, err)
}

func TestStartNewSession_DoesNotTouchStore(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)

	s := m.StartNewSession()
	require.True(t, s.IsNew())
	require.Empty(t, s.Messages)
	require.Zero(t, store.saves)
}

func TestPersistTurn_NewSessionAssignsID(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)

	id, err := m.PersistTurn(context.Background(), "", []domain.Message{domain.UserMessage("Hello")})
	require.NoError(t, err)
	require.Equal(t, "sess-1", id)

	s, err := m.LoadSession(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Hello", s.Title)
	require.Equal(t, "Hello", s.Preview)
	require.Len(t, s.Messages, 1)
	require.Equal(t, []string{"sess-1"}, store.ids())
}

func TestPersistTurn_RejectsEmptyMessages(t *testing.T) {
	m := newTestManager(t, &memStore{})
	_, err := m.PersistTurn(context.Background(), "", nil)
	expectUsecaseError(t, err, ErrorInvalidInput, "empty_session")
}

func TestPersistTurn_IdempotentIDAssignment(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	ctx := context.Background()

	msgs := []domain.Message{domain.UserMessage("Hello")}
	id, err := m.PersistTurn(ctx, "", msgs)
	require.NoError(t, err)

	msgs = append(msgs, domain.AssistantMessage("Hi there"))
	again, err := m.PersistTurn(ctx, id, msgs)
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Len(t, m.ListSessions(ctx), 1)
	require.Equal(t, []string{id}, store.ids())
}

func TestPersistTurn_TitleStablePreviewVolatile(t *testing.T) {
	m := newTestManager(t, &memStore{})
	ctx := context.Background()

	first := "Hãy giới thiệu về lịch sử Việt Nam thời kỳ Lý Trần một cách ngắn gọn"
	msgs := []domain.Message{domain.UserMessage(first)}
	id, err := m.PersistTurn(ctx, "", msgs)
	require.NoError(t, err)
	wantTitle := string([]rune(first)[:titleLength])

	lastStamp := mustLoad(t, m, id).Timestamp
	for i := 0; i < 4; i++ {
		var next domain.Message
		if i%2 == 0 {
			next = domain.AssistantMessage(strings.Repeat("trả lời ", i+1))
		} else {
			next = domain.UserMessage(strings.Repeat("câu hỏi ", i+10))
		}
		msgs = append(msgs, next)
		_, err := m.PersistTurn(ctx, id, msgs)
		require.NoError(t, err)

		s := mustLoad(t, m, id)
		require.Equal(t, wantTitle, s.Title)
		require.Equal(t, truncateRunes(next.Content, previewLength), s.Preview)
		require.True(t, s.Timestamp.After(lastStamp))
		lastStamp = s.Timestamp
	}
}

func TestPersistTurn_RecencyOrdering(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	ctx := context.Background()

	a, err := m.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("A")})
	require.NoError(t, err)
	b, err := m.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("B")})
	require.NoError(t, err)
	c, err := m.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("C")})
	require.NoError(t, err)
	require.Equal(t, []string{c, b, a}, store.ids())

	_, err = m.PersistTurn(ctx, a, []domain.Message{domain.UserMessage("A"), domain.AssistantMessage("reply")})
	require.NoError(t, err)
	require.Equal(t, []string{a, c, b}, store.ids())

	summaries := m.ListSessions(ctx)
	require.Equal(t, a, summaries[0].ID)
	require.Equal(t, 2, summaries[0].MessageCount)
}

func TestPersistTurn_UnknownIDKeepsIDAndDerivesTitle(t *testing.T) {
	m := newTestManager(t, &memStore{})
	id, err := m.PersistTurn(context.Background(), "resumed", []domain.Message{domain.UserMessage("old chat")})
	require.NoError(t, err)
	require.Equal(t, "resumed", id)
	require.Equal(t, "old chat", mustLoad(t, m, id).Title)
}

func TestPersistTurn_WriteFailureIsReportedAndRolledBack(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	ctx := context.Background()

	id, err := m.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("keep")})
	require.NoError(t, err)

	store.saveErr = errors.New("disk full")
	_, err = m.PersistTurn(ctx, id, []domain.Message{domain.UserMessage("keep"), domain.AssistantMessage("lost")})
	expectUsecaseError(t, err, ErrorInternal, "store_write_error")

	s := mustLoad(t, m, id)
	require.Len(t, s.Messages, 1)
}

func TestLoadSession_NotFound(t *testing.T) {
	m := newTestManager(t, &memStore{})
	_, err := m.LoadSession(context.Background(), "missing")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "missing", nf.ID)
}

func TestLoadSession_ReturnsCopy(t *testing.T) {
	m := newTestManager(t, &memStore{})
	id, err := m.PersistTurn(context.Background(), "", []domain.Message{domain.UserMessage("orig")})
	require.NoError(t, err)

	s := mustLoad(t, m, id)
	s.Messages[0].Content = "mutated"
	require.Equal(t, "orig", mustLoad(t, m, id).Messages[0].Content)
}

func TestDeleteSession_IsolationAndIdempotence(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	ctx := context.Background()

	a, err := m.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("A")})
	require.NoError(t, err)
	b, err := m.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("B"), domain.AssistantMessage("b reply")})
	require.NoError(t, err)
	before := mustLoad(t, m, b)

	require.NoError(t, m.DeleteSession(ctx, a))
	require.Equal(t, []string{b}, store.ids())
	require.Equal(t, before, mustLoad(t, m, b))

	saves := store.saves
	require.NoError(t, m.DeleteSession(ctx, a))
	require.NoError(t, m.DeleteSession(ctx, "never-existed"))
	require.Equal(t, saves, store.saves)
	require.Equal(t, []string{b}, store.ids())
}

func TestDeleteSession_WriteFailure(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	ctx := context.Background()
	id, err := m.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("A")})
	require.NoError(t, err)

	store.saveErr = errors.New("read-only")
	err = m.DeleteSession(ctx, id)
	expectUsecaseError(t, err, ErrorInternal, "store_write_error")
	_, err = m.LoadSession(ctx, id)
	require.NoError(t, err)
}

func TestInitialize_LoadsFromStore(t *testing.T) {
	store := &memStore{sessions: []domain.Session{
		{ID: "x", Title: "x", Preview: "x", Messages: []domain.Message{domain.UserMessage("x")}},
	}}
	m := newTestManager(t, store)
	m.Initialize(context.Background())

	list := m.ListSessions(context.Background())
	require.Len(t, list, 1)
	require.Equal(t, "x", list[0].ID)
}

func TestPersistTurn_LoadsLazilyBeforeWriting(t *testing.T) {
	store := &memStore{sessions: []domain.Session{
		{ID: "x", Title: "x", Preview: "x", Messages: []domain.Message{domain.UserMessage("x")}},
	}}
	m := newTestManager(t, store)

	_, err := m.PersistTurn(context.Background(), "", []domain.Message{domain.UserMessage("y")})
	require.NoError(t, err)
	require.Equal(t, []string{"sess-1", "x"}, store.ids())
}

// sharedManager returns a manager that re-reads store on every call and
// names new sessions with prefix.
func sharedManager(t *testing.T, store SessionStore, prefix string) *SessionManager {
	t.Helper()
	ids := sequentialIDs()
	m, err := NewSessionManager(store,
		WithManagerLogger(quietLogger()),
		WithIDGenerator(func() string { return prefix + ids() }),
		WithReloadPerCall(),
	)
	require.NoError(t, err)
	return m
}

func TestReloadPerCall_ManagersSharingAStoreSeeEachOther(t *testing.T) {
	ctx := context.Background()
	backend := repository.NewMemoryBackend(nil)
	store, err := repository.NewStore(backend, repository.WithLogger(quietLogger()))
	require.NoError(t, err)

	a := sharedManager(t, store, "a-")
	b := sharedManager(t, store, "b-")
	a.Initialize(ctx)
	b.Initialize(ctx)

	idB, err := b.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("from B")})
	require.NoError(t, err)

	got, err := a.LoadSession(ctx, idB)
	require.NoError(t, err)
	require.Equal(t, "from B", got.Title)

	idA, err := a.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("from A")})
	require.NoError(t, err)

	stored := store.Load(ctx)
	require.Len(t, stored, 2)
	require.Equal(t, idA, stored[0].ID)
	require.Equal(t, idB, stored[1].ID)

	require.NoError(t, b.DeleteSession(ctx, idA))
	require.Len(t, a.ListSessions(ctx), 1)
}

func TestReloadPerCall_ReadFailureBlocksWrites(t *testing.T) {
	ctx := context.Background()
	store := &memStore{sessions: []domain.Session{
		{ID: "x", Title: "x", Preview: "x", Messages: []domain.Message{domain.UserMessage("x")}},
	}}
	m := sharedManager(t, store, "")
	m.Initialize(ctx)

	store.refreshErr = errors.New("throttled")

	_, err := m.PersistTurn(ctx, "", []domain.Message{domain.UserMessage("y")})
	expectUsecaseError(t, err, ErrorInternal, "store_read_error")
	expectUsecaseError(t, m.DeleteSession(ctx, "x"), ErrorInternal, "store_read_error")
	require.Zero(t, store.saves)

	_, err = m.LoadSession(ctx, "x")
	require.ErrorContains(t, err, "throttled")
	var nf *domain.NotFoundError
	require.False(t, errors.As(err, &nf))

	list := m.ListSessions(ctx)
	require.Len(t, list, 1)
	require.Equal(t, "x", list[0].ID)
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "abc", truncateRunes("  abc  ", 5))
	require.Equal(t, "ab", truncateRunes("abc", 2))
	require.Equal(t, "Xin", truncateRunes("Xin chào", 3))
	require.Equal(t, "chà", truncateRunes("chào", 3))
	require.Equal(t, "", truncateRunes("   ", 3))
}

func mustLoad(t *testing.T, m *SessionManager, id string) domain.Session {
	t.Helper()
	s, err := m.LoadSession(context.Background(), id)
	require.NoError(t, err)
	return s
}
