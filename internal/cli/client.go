package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openplace/pixelfield/internal/protocol"
)

// Client is a websocket client for the canvas server
type Client struct {
	serverURL string
	nickname  string
	userID    string
}

// NewClient creates a client for the given server
func NewClient(serverURL, nickname, userID string) *Client {
	return &Client{
		serverURL: serverURL,
		nickname:  nickname,
		userID:    userID,
	}
}

// Session is an open, authenticated connection
type Session struct {
	conn *websocket.Conn

	// UserID is the actor id, either supplied or freshly minted by the
	// server on first login
	UserID string
}

// Connect dials the server and performs the login handshake
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.serverURL, err)
	}

	login, err := protocol.Message(protocol.TypeLogin, protocol.LoginData{
		Nickname: c.nickname,
		UserID:   c.userID,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, login); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send login: %w", err)
	}

	return &Session{conn: conn, UserID: c.userID}, nil
}

// Close closes the session cleanly
func (s *Session) Close() {
	disconnect, _ := json.Marshal(protocol.Envelope{Type: protocol.TypeDisconnect})
	_ = s.conn.WriteMessage(websocket.TextMessage, disconnect)
	_ = s.conn.Close()
}

// Send writes one protocol message
func (s *Session) Send(msgType string, data any) error {
	message, err := protocol.Message(msgType, data)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, message)
}

// ServerMessage is the client-side decode shape of any server message:
// error replies carry a top-level message, everything else a data payload
type ServerMessage struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Next reads the next message, waiting up to the given timeout. It keeps
// track of a freshly issued user id as a side effect.
func (s *Session) Next(timeout time.Duration) (*ServerMessage, error) {
	if timeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed server message: %w", err)
	}
	if msg.Type == protocol.TypeUserID {
		var id string
		if err := json.Unmarshal(msg.Data, &id); err == nil {
			s.UserID = id
		}
	}
	return &msg, nil
}
