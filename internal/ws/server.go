package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openplace/pixelfield/internal/protocol"
	"github.com/openplace/pixelfield/internal/services/session"
)

// Server owns the websocket endpoint: it upgrades connections, runs the
// login handshake, admits the connection, and drives its read loop.
type Server struct {
	session  *session.Service
	registry *Registry
	router   *Router
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a websocket Server
func NewServer(sessionService *session.Service, registry *Registry, router *Router, logger *slog.Logger) *Server {
	return &Server{
		session:  sessionService,
		registry: registry,
		router:   router,
		logger:   logger.With(slog.String("component", "ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The canvas is an open surface; origin policy is enforced
			// upstream if at all.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleWS is the HTTP handler for the websocket endpoint
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	s.serve(r.Context(), conn)
}

// serve owns one connection from handshake to teardown. Messages from a
// single connection are processed strictly in arrival order.
func (s *Server) serve(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)

	// Login handshake: the first message decides everything.
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, first, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}

	identity, role, err := s.session.Authenticate(ctx, first)
	if err != nil {
		s.closeHandshake(conn, err)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	peer := newWSPeer(conn)

	// A freshly minted actor id is the one response guaranteed before the
	// session is open.
	if identity.NewActor {
		if err := peer.Send(protocol.MustMessage(protocol.TypeUserID, string(identity.ActorID))); err != nil {
			peer.Close(protocol.CloseInternalError, "send failed")
			return
		}
	}

	slot := s.registry.Admit(peer, role, identity)
	c := &client{slot: slot, peer: peer, role: role, identity: identity}

	defer func() {
		s.registry.Remove(slot)
		peer.Close(protocol.CloseGoingAway, "connection closed")
	}()

	// Initial sync so the client can render without asking.
	if message, err := s.router.fieldStateMessage(ctx); err == nil {
		_ = peer.Send(message)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read loop ended",
					slog.String("nickname", identity.Name),
					slog.String("error", err.Error()))
			}
			return
		}
		if err := s.router.Dispatch(ctx, c, raw); errors.Is(err, ErrCloseRequested) {
			return
		}
	}
}

// closeHandshake reports a handshake failure and closes with its code so
// the client can pick the right remedy
func (s *Server) closeHandshake(conn *websocket.Conn, err error) {
	code := protocol.CloseInternalError
	reason := "internal error"

	var hs *session.HandshakeError
	if errors.As(err, &hs) {
		code = hs.Code
		reason = hs.Message
	} else {
		s.logger.Error("handshake failed", slog.String("error", err.Error()))
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, protocol.Error(reason))
	frame := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(writeWait))
	_ = conn.Close()
}
