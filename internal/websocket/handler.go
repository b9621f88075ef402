package websocket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenVerifier resolves the user a bearer token or ticket belongs to.
type TokenVerifier interface {
	ParseUserID(token string, allowTicket bool) (uuid.UUID, error)
}

// Handler serves the live study-session socket.
type Handler struct {
	auth     TokenVerifier
	registry *session.Registry
	hub      *Hub
	log      *logger.Logger
}

func NewHandler(auth TokenVerifier, registry *session.Registry, hub *Hub, log *logger.Logger) *Handler {
	return &Handler{auth: auth, registry: registry, hub: hub, log: log}
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, authErr := h.authenticate(r)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	if authErr != nil {
		h.log.Info("websocket rejected", "remote_addr", r.RemoteAddr, "error", authErr)
		closeWithPolicyViolation(ws, "unauthorized")
		return
	}

	c := newConnection(ws, userID)
	h.hub.register(c)
	go c.writePump()

	defer func() {
		if n := h.registry.CloseOwner(c.id); n > 0 {
			h.log.Info("force-completed sessions of closed connection", "connection_id", c.id, "user_id", userID, "count", n)
		}
		h.hub.unregister(c)
		c.Close()
	}()

	h.readLoop(c)
}

// authenticate accepts "Authorization: Bearer <token>" or ?token=<token>.
// Either an access token or a ws ticket is accepted.
func (h *Handler) authenticate(r *http.Request) (uuid.UUID, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		if t, ok := middleware.BearerToken(header); ok {
			token = t
		}
	}
	return h.auth.ParseUserID(token, true)
}

// readLoop handles one frame at a time; the reply and any store write for a
// frame finish before the next frame is read.
func (h *Handler) readLoop(c *Connection) {
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Warn("websocket read error", "connection_id", c.id, "user_id", c.userID, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			_ = c.Send(errorReply("", "expected a text frame"))
			continue
		}

		reply := h.dispatch(c, data)
		if err := c.Send(reply); err != nil {
			h.log.Warn("reply not sent", "connection_id", c.id, "type", reply.Type, "error", err)
		}
	}
}
