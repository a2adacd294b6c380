package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong before the peer is considered gone
	pongWait = 60 * time.Second

	// Time between keepalive pings; must be under pongWait
	pingPeriod = 30 * time.Second

	// Time allowed for the login handshake's first message
	handshakeWait = 15 * time.Second

	// Maximum inbound frame size
	maxMessageSize = 4096

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// ErrPeerGone is returned by Send when the peer can no longer accept
// messages (slow, closed, or disconnected)
var ErrPeerGone = errors.New("peer is gone")

// Peer is the registry's handle on a connection's transport. Send must
// never block on a slow peer; Close is idempotent.
type Peer interface {
	Send(message []byte) error
	Close(code int, reason string)
}

// wsPeer adapts a gorilla websocket connection to the Peer interface with
// a buffered single-writer pump, since gorilla connections permit only one
// concurrent writer.
type wsPeer struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	p := &wsPeer{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	go p.writePump()
	return p
}

// Send enqueues a message for delivery. A full buffer counts as a dead
// peer rather than blocking the caller.
func (p *wsPeer) Send(message []byte) error {
	select {
	case <-p.done:
		return ErrPeerGone
	default:
	}

	select {
	case p.send <- message:
		return nil
	case <-p.done:
		return ErrPeerGone
	default:
		return ErrPeerGone
	}
}

// Close sends a close frame and tears the connection down. Safe to call
// multiple times and from any goroutine.
func (p *wsPeer) Close(code int, reason string) {
	p.closeOnce.Do(func() {
		close(p.done)
		frame := websocket.FormatCloseMessage(code, reason)
		_ = p.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(writeWait))
		_ = p.conn.Close()
	})
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with periodic pings
func (p *wsPeer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				p.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}

		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}

		case <-p.done:
			return
		}
	}
}
