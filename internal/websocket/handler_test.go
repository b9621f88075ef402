package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/middleware/authtest"
	"studyhub-backend/internal/models"
	"studyhub-backend/internal/session"
)

type memStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*models.StudySession
	delay     time.Duration
	cancelled int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[uuid.UUID]*models.StudySession)}
}

func (m *memStore) CreateSession(ctx context.Context, s *models.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memStore) UpdateSession(ctx context.Context, s *models.StudySession) error {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.mu.Lock()
			m.cancelled++
			m.mu.Unlock()
			return ctx.Err()
		}
	}
	return m.CreateSession(ctx, s)
}

func (m *memStore) setDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *memStore) cancelledWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

func (m *memStore) GetSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.Clone(), nil
}

const testSecret = "test-secret"

type testServer struct {
	srv      *httptest.Server
	auth     *middleware.JWTAuth
	registry *session.Registry
	store    *memStore
	hub      *Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Nop()
	store := newMemStore()
	registry := session.NewRegistry(session.NewMachine(store), nil, log)
	auth := middleware.NewJWTAuth(testSecret, time.Minute)
	hub := NewHub(nil, log)

	srv := httptest.NewServer(http.HandlerFunc(NewHandler(auth, registry, hub, log).HandleWebSocket))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, auth: auth, registry: registry, store: store, hub: hub}
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	token, err := authtest.AccessToken(testSecret, userID, 15*time.Minute)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(ts.url(), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg interface{}) models.ServerMessage {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	return receive(t, conn)
}

func receive(t *testing.T, conn *websocket.Conn) models.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var reply models.ServerMessage
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(ts.url(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestHandler_RejectsBadToken(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(ts.url()+"?token=not-a-jwt", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestHandler_TicketInQuery(t *testing.T) {
	ts := newTestServer(t)
	ticket, _, err := ts.auth.IssueTicket(uuid.New())
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(ts.url()+"?token="+ticket, nil)
	require.NoError(t, err)
	defer conn.Close()

	reply := send(t, conn, models.ClientMessage{Type: models.MsgStart})
	assert.Equal(t, models.MsgSessionStarted, reply.Type)
}

func TestHandler_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()
	conn := ts.dial(t, userID)

	started := send(t, conn, map[string]interface{}{"type": "start", "data": map[string]string{"subject": "Calculus"}})
	require.Equal(t, models.MsgSessionStarted, started.Type)
	id := started.SessionID
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	paused := send(t, conn, models.ClientMessage{Type: models.MsgPause, SessionID: id})
	assert.Equal(t, models.MsgSessionUpdated, paused.Type)
	assert.Equal(t, models.SessionPaused, paused.Status)

	resumed := send(t, conn, models.ClientMessage{Type: models.MsgResume, SessionID: id})
	assert.Equal(t, models.SessionActive, resumed.Status)

	assert.Equal(t, models.MsgSessionUpdated, send(t, conn, models.ClientMessage{Type: models.MsgBreakStart, SessionID: id}).Type)

	again := send(t, conn, models.ClientMessage{Type: models.MsgBreakStart, SessionID: id})
	assert.Equal(t, models.MsgError, again.Type)
	assert.Equal(t, session.ErrBreakAlreadyOpen.Error(), again.Message)

	assert.Equal(t, models.MsgSessionUpdated, send(t, conn, models.ClientMessage{Type: models.MsgBreakEnd, SessionID: id}).Type)

	metrics := send(t, conn, map[string]interface{}{
		"type": "update_metrics", "sessionId": id, "data": map[string]interface{}{"metrics": map[string]interface{}{"focusScore": 90}},
	})
	assert.Equal(t, models.MsgSessionUpdated, metrics.Type)

	done := send(t, conn, models.ClientMessage{Type: models.MsgEnd, SessionID: id})
	require.Equal(t, models.MsgSessionCompleted, done.Type)
	require.NotNil(t, done.TotalDuration)

	dup := send(t, conn, models.ClientMessage{Type: models.MsgEnd, SessionID: id})
	assert.Equal(t, models.MsgSessionCompleted, dup.Type)
	assert.Equal(t, *done.TotalDuration, *dup.TotalDuration)

	stored, err := ts.store.GetSession(context.Background(), uuid.MustParse(id))
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	assert.Equal(t, "Calculus", stored.Subject)
	assert.Equal(t, float64(90), stored.Metrics["focusScore"])

	after := send(t, conn, models.ClientMessage{Type: models.MsgPause, SessionID: id})
	assert.Equal(t, models.MsgError, after.Type)
}

func TestHandler_ProtocolErrorsKeepConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, uuid.New())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, errMalformed.Error(), receive(t, conn).Message)

	assert.Equal(t, errUnknownType.Error(), send(t, conn, map[string]string{"type": "dance"}).Message)
	assert.Equal(t, errMissingType.Error(), send(t, conn, map[string]string{}).Message)
	assert.Equal(t, errMissingSessionID.Error(), send(t, conn, models.ClientMessage{Type: models.MsgPause}).Message)
	assert.Equal(t, errInvalidSessionID.Error(), send(t, conn, models.ClientMessage{Type: models.MsgEnd, SessionID: "42"}).Message)
	assert.Equal(t, session.ErrSessionNotFound.Error(),
		send(t, conn, models.ClientMessage{Type: models.MsgPause, SessionID: uuid.NewString()}).Message)

	reply := send(t, conn, models.ClientMessage{Type: models.MsgStart})
	assert.Equal(t, models.MsgSessionStarted, reply.Type)
}

func TestHandler_OtherConnectionCannotTouchSession(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()
	first := ts.dial(t, userID)
	second := ts.dial(t, userID)

	started := send(t, first, models.ClientMessage{Type: models.MsgStart})
	reply := send(t, second, models.ClientMessage{Type: models.MsgPause, SessionID: started.SessionID})
	assert.Equal(t, models.MsgError, reply.Type)
	assert.Equal(t, session.ErrSessionNotFound.Error(), reply.Message)
}

func TestHandler_DisconnectForceCompletes(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, uuid.New())

	started := send(t, conn, models.ClientMessage{Type: models.MsgStart})
	id := uuid.MustParse(started.SessionID)
	send(t, conn, models.ClientMessage{Type: models.MsgBreakStart, SessionID: started.SessionID})
	require.Equal(t, 1, ts.registry.Len())

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return ts.registry.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
	stored, err := ts.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	require.NotNil(t, stored.EndTime)
	require.Len(t, stored.Breaks, 1)
	require.NotNil(t, stored.Breaks[0].EndTime)
	assert.Equal(t, *stored.EndTime, *stored.Breaks[0].EndTime)
}

// sendToUser delivers msg to the user's connections on this process only.
func (h *Hub) sendToUser(userID uuid.UUID, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(userID, data)
}

func (h *Hub) connectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

func TestHub_SendToUserReachesOwnerOnly(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()
	conn := ts.dial(t, userID)
	other := ts.dial(t, uuid.New())

	require.Eventually(t, func() bool { return ts.hub.connectionCount(userID) == 1 }, 3*time.Second, 10*time.Millisecond)

	ts.hub.sendToUser(userID, models.ServerMessage{
		Type:  models.MsgBadgeEarned,
		Badge: &models.BadgeEarned{BadgeID: "first-session", Name: "First Steps", Rarity: models.RarityCommon},
	})

	msg := receive(t, conn)
	assert.Equal(t, models.MsgBadgeEarned, msg.Type)
	require.NotNil(t, msg.Badge)
	assert.Equal(t, "first-session", msg.Badge.BadgeID)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "badge must only reach its owner")
}

func TestHub_CloseAllCompletesSessions(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, uuid.New())

	started := send(t, conn, models.ClientMessage{Type: models.MsgStart})
	id := uuid.MustParse(started.SessionID)

	assert.Equal(t, 1, ts.hub.CloseAll())

	require.Eventually(t, func() bool { return ts.registry.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
	stored, err := ts.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestHandler_CloseDoesNotCancelWriteInFlight(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, uuid.New())

	started := send(t, conn, models.ClientMessage{Type: models.MsgStart, Data: []byte(`{"subject":"Chemistry"}`)})
	id := uuid.MustParse(started.SessionID)

	ts.store.setDelay(300 * time.Millisecond)
	require.NoError(t, conn.WriteJSON(models.ClientMessage{Type: models.MsgPause, SessionID: started.SessionID}))
	time.Sleep(50 * time.Millisecond)
	ts.hub.CloseAll()

	require.Eventually(t, func() bool { return ts.registry.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, ts.store.cancelledWrites())

	stored, err := ts.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	assert.Equal(t, "Chemistry", stored.Subject)
}
