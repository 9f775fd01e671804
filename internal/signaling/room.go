package signaling

// Room is a single broadcast session: exactly one host and any number
// of viewers. All access happens on the hub's run loop, so no locking
// is needed here.
type Room struct {
	// ID is the caller-supplied identifier for the room.
	ID string

	// Host is the client that created the room. A room never outlives
	// its host.
	Host *Client

	// Viewers maps viewer user IDs to their connections.
	Viewers map[string]*Client
}

// NewRoom creates a room owned by the given host client.
func NewRoom(id string, host *Client) *Room {
	return &Room{
		ID:      id,
		Host:    host,
		Viewers: make(map[string]*Client),
	}
}

// AddViewer registers a viewer connection. Joining again with the same
// user ID replaces the previous socket reference (last join wins).
func (r *Room) AddViewer(c *Client) {
	r.Viewers[c.UserID] = c
}

// RemoveViewer drops a viewer only if the stored reference is still the
// given client, so a stale socket cannot evict its replacement.
func (r *Room) RemoveViewer(c *Client) bool {
	current, ok := r.Viewers[c.UserID]
	if !ok || current != c {
		return false
	}
	delete(r.Viewers, c.UserID)
	return true
}

// Viewer looks up a viewer connection by user ID.
func (r *Room) Viewer(userID string) (*Client, bool) {
	c, ok := r.Viewers[userID]
	return c, ok
}
