package chat

import (
	"sync"

	"github.com/google/uuid"
)

// ConnState is the lifecycle of one realtime connection.
type ConnState int

const (
	StateConnected ConnState = iota
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	default:
		return "closed"
	}
}

// Conn is a connection handle: an outbound queue plus the routing state the
// Router keeps for it. It carries no network code, the websocket Client
// drains Outbound.
type Conn struct {
	ID uuid.UUID

	// principal is the authenticated caller, zero when the transport did not
	// authenticate.
	principal Participant

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	state    ConnState
	identity string
}

func NewConn(principal Participant, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	return &Conn{
		ID:        uuid.New(),
		principal: principal,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
	}
}

// Outbound yields encoded events addressed to this connection.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the identity the connection joined as.
func (c *Conn) Identity() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.state == StateJoined
}

// Close stops the connection's writer. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue never blocks: a full or closed connection reports false.
func (c *Conn) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}
