package transport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aashish-nayak/WatchTOgather/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024

	// Wildcard subscribes a listener to every inbound message type.
	Wildcard = "*"
)

// State is the lifecycle state of the channel.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

// Listener receives inbound envelopes for a subscribed message type.
type Listener func(*protocol.Envelope)

// Membership is the room/user/role triple replayed to the relay after a
// reconnect. The relay treats the replay as a fresh join.
type Membership struct {
	RoomID   string
	UserID   string
	Role     string
	Username string
}

// Options tune a Channel. Zero values fall back to defaults.
type Options struct {
	URL          string
	AutoConnect  bool
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	PingInterval time.Duration
	Dialer       *websocket.Dialer
}

// Channel is a single duplex message channel to the relay with
// automatic reconnection. Messages sent while disconnected are queued
// and replayed in FIFO order once the socket reopens; they are never
// dropped except on explicit Stop.
type Channel struct {
	mu   sync.Mutex
	opts Options

	state State
	conn  *websocket.Conn

	// gen increments every time the live connection changes, so pump
	// callbacks from a dead socket are ignored.
	gen int

	queue    []*protocol.Envelope
	attempts int

	reconnectTimer *time.Timer
	pingDone       chan struct{}

	listeners map[string][]Listener

	membership    *Membership
	rejoinPending bool
}

// New creates a channel. Call Start to begin connecting.
func New(opts Options) *Channel {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 10
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = (pongWait * 9) / 10
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Channel{
		opts:      opts,
		state:     StateClosed,
		listeners: make(map[string][]Listener),
	}
}

// State reports the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen reports how many messages are waiting for the next open.
func (c *Channel) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// On registers a listener for an exact message type, or for every type
// via Wildcard.
func (c *Channel) On(msgType string, l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[msgType] = append(c.listeners[msgType], l)
}

// Start leaves the terminal shutdown state and, when auto-connect is
// configured, begins connecting. It also re-arms a channel that gave up
// after exhausting its reconnect attempts.
func (c *Channel) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateShuttingDown {
		c.state = StateClosed
	}
	if c.state == StateClosed {
		c.attempts = 0
		c.cancelReconnectLocked()
		if c.opts.AutoConnect {
			c.connectLocked()
		}
	}
}

// Send transmits immediately when open; otherwise it enqueues and, from
// the closed state, triggers a connection attempt. It never blocks and
// never fails.
func (c *Channel) Send(env *protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateShuttingDown {
		// Explicit shutdown is the one case where messages are dropped;
		// nothing is remembered from them either.
		return
	}

	c.rememberLocked(env)

	switch c.state {
	case StateOpen:
		if err := c.writeLocked(env); err != nil {
			c.queue = append([]*protocol.Envelope{env}, c.queue...)
			c.failLocked()
		}

	case StateConnecting:
		c.queue = append(c.queue, env)

	case StateClosed:
		c.queue = append(c.queue, env)
		c.attempts = 0
		c.cancelReconnectLocked()
		c.connectLocked()
	}
}

// Stop cancels pending reconnects and the liveness probe, closes the
// live connection, clears the queue and all listeners, and enters the
// terminal shutdown state.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateShuttingDown {
		return
	}

	c.state = StateShuttingDown
	c.gen++
	c.cancelReconnectLocked()
	c.stopPingLocked()

	if c.conn != nil {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		c.conn.Close()
		c.conn = nil
	}

	c.queue = nil
	c.listeners = make(map[string][]Listener)
	c.membership = nil
	c.rejoinPending = false
}

// rememberLocked captures the membership triple from outbound room
// operations so the channel can rejoin after a reconnect.
func (c *Channel) rememberLocked(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCreateRoom:
		c.membership = &Membership{
			RoomID:   env.RoomID,
			UserID:   env.UserID,
			Role:     protocol.RoleHost,
			Username: env.Username,
		}
	case protocol.TypeJoinRoom:
		c.membership = &Membership{
			RoomID:   env.RoomID,
			UserID:   env.UserID,
			Role:     protocol.RoleViewer,
			Username: env.Username,
		}
	case protocol.TypeLeaveRoom:
		c.membership = nil
		c.rejoinPending = false
	}
}

func (c *Channel) connectLocked() {
	c.state = StateConnecting
	gen := c.gen
	go c.dial(gen)
}

func (c *Channel) dial(gen int) {
	conn, _, err := c.opts.Dialer.Dial(c.opts.URL, nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.state != StateConnecting {
		// A Stop or a competing cycle won; this dial is stale.
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		slog.Debug("dial failed", "url", c.opts.URL, "err", err)
		c.state = StateClosed
		c.scheduleReconnectLocked()
		return
	}

	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.pingDone = make(chan struct{})

	go c.readPump(gen, conn)
	go c.pingLoop(gen, conn, c.pingDone)

	if c.rejoinPending && c.membership != nil {
		rejoin := &protocol.Envelope{
			RoomID:   c.membership.RoomID,
			UserID:   c.membership.UserID,
			Username: c.membership.Username,
		}
		if c.membership.Role == protocol.RoleHost {
			rejoin.Type = protocol.TypeCreateRoom
		} else {
			rejoin.Type = protocol.TypeJoinRoom
		}
		if err := c.writeLocked(rejoin); err != nil {
			c.failLocked()
			return
		}
		c.rejoinPending = false
	}

	c.drainLocked()
}

// drainLocked replays the queue in FIFO order. A failure mid-drain
// keeps the unsent message at the front and stops draining for this
// cycle.
func (c *Channel) drainLocked() {
	for c.state == StateOpen && len(c.queue) > 0 {
		if err := c.writeLocked(c.queue[0]); err != nil {
			c.failLocked()
			return
		}
		c.queue = c.queue[1:]
	}
}

func (c *Channel) writeLocked(env *protocol.Envelope) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

// failLocked tears down the current connection and schedules a
// reconnect. Callers hold the mutex.
func (c *Channel) failLocked() {
	c.gen++
	c.stopPingLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.membership != nil {
		c.rejoinPending = true
	}
	c.state = StateClosed
	c.scheduleReconnectLocked()
}

// handleDisconnect is called from pump goroutines when their socket
// dies unexpectedly.
func (c *Channel) handleDisconnect(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.state == StateShuttingDown {
		return
	}
	c.failLocked()
}

func (c *Channel) scheduleReconnectLocked() {
	c.attempts++
	if c.attempts > c.opts.MaxAttempts {
		slog.Warn("giving up reconnecting", "attempts", c.attempts-1)
		return
	}

	delay := c.opts.BaseDelay
	for i := 1; i < c.attempts && delay < c.opts.MaxDelay; i++ {
		delay *= 2
	}
	if delay > c.opts.MaxDelay {
		delay = c.opts.MaxDelay
	}

	slog.Debug("scheduling reconnect", "attempt", c.attempts, "delay", delay)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.reconnectTimer = nil
		if c.state == StateClosed {
			c.connectLocked()
		}
	})
}

func (c *Channel) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Channel) stopPingLocked() {
	if c.pingDone != nil {
		close(c.pingDone)
		c.pingDone = nil
	}
}

func (c *Channel) readPump(gen int, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(gen)
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			slog.Debug("dropping malformed frame from relay", "err", err)
			continue
		}

		c.dispatch(env)
	}
}

// dispatch delivers an inbound message to listeners for its exact type
// and to wildcard listeners. A panicking listener does not prevent
// delivery to the others.
func (c *Channel) dispatch(env *protocol.Envelope) {
	c.mu.Lock()
	targets := make([]Listener, 0, len(c.listeners[env.Type])+len(c.listeners[Wildcard]))
	targets = append(targets, c.listeners[env.Type]...)
	targets = append(targets, c.listeners[Wildcard]...)
	c.mu.Unlock()

	for _, l := range targets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("listener panicked", "type", env.Type, "panic", r)
				}
			}()
			l(env)
		}()
	}
}

// pingLoop is the periodic liveness probe. WriteControl is safe to call
// concurrently with the data writes done under the mutex.
func (c *Channel) pingLoop(gen int, conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.handleDisconnect(gen)
				return
			}
		}
	}
}
