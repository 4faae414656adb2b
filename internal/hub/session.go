package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Viewer frames are short command strings.
	maxMessageSize = 512

	// Per-session outbound queue.
	sendBuffer = 32
)

// wsConn is the slice of *websocket.Conn the session uses; tests substitute
// a recording fake.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Session is one connected viewer. Owned exclusively by the hub; other
// components only ever see its opaque id.
type Session struct {
	id          string
	conn        wsConn
	hub         *Hub
	send        chan []byte
	connectedAt time.Time

	closeOnce sync.Once
}

func newSession(id string, conn wsConn, h *Hub) *Session {
	return &Session{
		id:          id,
		conn:        conn,
		hub:         h,
		send:        make(chan []byte, sendBuffer),
		connectedAt: time.Now().UTC(),
	}
}

// enqueue queues a frame for delivery; false means the queue is saturated or
// the session is closed, and the caller should drop the session.
func (s *Session) enqueue(frame []byte) (queued bool) {
	defer func() {
		if recover() != nil {
			queued = false
		}
	}()
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// close tears the session down exactly once. Closing the send channel makes
// the write pump flush and exit; closing the conn unblocks the read pump.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.send)
		s.conn.Close()
	})
}

// readPump consumes inbound frames, treating each as an opaque command
// string. A read error ends the session without touching the others.
func (s *Session) readPump() {
	defer s.hub.unregister(s)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.hub.handleCommand(s, raw)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.hub.unregister(s)
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
