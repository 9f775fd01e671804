package peer

import (
	"errors"
	"fmt"
)

var (
	ErrSharingNotStarted  = errors.New("sharing must be started first")
	ErrChannelNotOpen     = errors.New("chat channel not open")
	ErrUnknownPeer        = errors.New("unknown peer")
	ErrAlreadyNegotiating = errors.New("already negotiating with peer")
	ErrWrongRole          = errors.New("operation not valid for this role")
	ErrClosed             = errors.New("manager closed")
)

// SessionError tags a failure with the negotiation step and the remote
// peer it concerned.
type SessionError struct {
	Op   string
	Peer string
	Err  error
}

func (e *SessionError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s (peer %s): %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func newError(op, peer string, err error) *SessionError {
	return &SessionError{Op: op, Peer: peer, Err: err}
}
