package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Taufiq-1904/WeighBridge-IoT/internal/command"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/state"
)

// Dispatcher is the command path for inbound viewer messages.
type Dispatcher interface {
	Dispatch(req command.Request) error
}

// StateSource provides the ordered change stream primed with a snapshot.
type StateSource interface {
	Subscribe() (state.DeviceState, <-chan state.StateChange, func())
}

// Hub manages the set of connected viewer sessions. It holds a single store
// subscription and fans every change to all live sessions as a full-state
// frame, the same shape the dashboard received from the original feed. A
// failed session is removed without affecting delivery to the others.
type Hub struct {
	states     StateSource
	dispatcher Dispatcher
	upgrader   websocket.Upgrader

	mu        sync.Mutex
	sessions  map[*Session]struct{}
	nextID    int
	lastFrame []byte
}

// New creates a hub over the given state source and command dispatcher.
func New(states StateSource, dispatcher Dispatcher) *Hub {
	return &Hub{
		states:     states,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard may be served from a different origin than the
			// bridge, as in the original deployment.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[*Session]struct{}),
	}
}

// Run forwards state changes to sessions until ctx is cancelled. If the store
// drops the hub's subscription for lagging, the hub resubscribes and pushes
// the fresh snapshot so no session is left on stale state.
func (h *Hub) Run(ctx context.Context) {
	for {
		snapshot, changes, cancel := h.states.Subscribe()
		h.broadcastState(snapshot)

		if !h.forward(ctx, changes) {
			cancel()
			return
		}
		cancel()
		log.Println("hub: store subscription dropped, resubscribing")
	}
}

// forward drains the change channel; false means ctx is done.
func (h *Hub) forward(ctx context.Context, changes <-chan state.StateChange) bool {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return false
		case change, ok := <-changes:
			if !ok {
				return true
			}
			h.broadcastState(change.State)
		}
	}
}

// ServeWS upgrades an HTTP request into a viewer session. The connect frame
// is the last frame the hub broadcast, queued under the same lock that
// broadcasts take, so a viewer joining while changes are still queued in the
// hub's subscription sees its stream position first and every later change
// after it. A fresh store snapshot here could be newer than those queued
// changes and make state go backwards on the wire.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("hub: upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.nextID++
	s := newSession(fmt.Sprintf("viewer-%d", h.nextID), conn, h)
	h.sessions[s] = struct{}{}
	if h.lastFrame != nil {
		s.enqueue(h.lastFrame)
	}
	h.mu.Unlock()

	log.Printf("hub: session %s connected", s.id)

	go s.writePump()
	go s.readPump()
}

// broadcastState pushes a full-state frame to every live session. A session
// with a saturated send queue is dropped; it would otherwise stall or skip
// updates for everyone else.
func (h *Hub) broadcastState(snapshot state.DeviceState) {
	frame, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("hub: marshal state: %v", err)
		return
	}

	var stale []*Session
	h.mu.Lock()
	h.lastFrame = frame
	for s := range h.sessions {
		if !s.enqueue(frame) {
			stale = append(stale, s)
		}
	}
	for _, s := range stale {
		delete(h.sessions, s)
	}
	h.mu.Unlock()

	for _, s := range stale {
		log.Printf("hub: session %s not keeping up, dropped", s.id)
		s.close()
	}
}

// handleCommand forwards an inbound viewer payload to the dispatcher and
// returns the result to the originating session only.
func (h *Hub) handleCommand(s *Session, raw []byte) {
	req := command.Request{
		Command:     string(raw),
		RequestedAt: time.Now().UTC(),
		SessionID:   s.id,
	}
	err := h.dispatcher.Dispatch(req)

	result := commandResult{
		Type:    "command_result",
		Command: req.Command,
		Success: err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}

	frame, merr := json.Marshal(result)
	if merr != nil {
		return
	}
	if !s.enqueue(frame) {
		h.unregister(s)
	}
}

// unregister removes a session; safe to call more than once.
func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()

	if ok {
		log.Printf("hub: session %s disconnected", s.id)
	}
	s.close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*Session]struct{})
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// commandResult is the frame returned to the session that issued a command.
type commandResult struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
