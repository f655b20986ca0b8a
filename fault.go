package eventhub

import (
	"context"
	"sync"
	"time"
)

// defaultConnectionOpenTimeout bounds a connection open initiated by a caller whose context
// carries no deadline.
const defaultConnectionOpenTimeout = 60 * time.Second

type (
	// connSlot holds at most one open AMQP connection for a scope, lazily (re)creating it on
	// demand. Callers arriving while an open is in flight share its outcome. A connection whose
	// transport has faulted is discarded, and the next caller triggers a fresh open. Once the
	// slot is closed no further connections are produced.
	connSlot struct {
		dial   func(ctx context.Context) (*activeConnection, error)
		parent context.Context

		mu      sync.Mutex
		current *activeConnection
		pending *pendingConn
		closed  bool
	}

	pendingConn struct {
		done chan struct{}
		conn *activeConnection
		err  error
	}
)

func newConnSlot(parent context.Context, dial func(ctx context.Context) (*activeConnection, error)) *connSlot {
	return &connSlot{
		dial:   dial,
		parent: parent,
	}
}

// Get returns the held connection, or opens one if the slot is empty or the held connection has
// faulted. An open failure is reported to every waiting caller and leaves the slot empty.
func (cs *connSlot) Get(ctx context.Context) (*activeConnection, error) {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil, ErrScopeClosed
	}

	if cs.current != nil {
		if !cs.current.faulted() {
			conn := cs.current
			cs.mu.Unlock()
			return conn, nil
		}
		cs.current = nil
	}

	p := cs.pending
	if p == nil {
		p = &pendingConn{done: make(chan struct{})}
		cs.pending = p
		go cs.open(ctx, p)
	}
	cs.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.conn, p.err
	}
}

// open runs under the slot's parent context so that a single initiating caller going away does
// not abort an open other callers are waiting on; the initiator's remaining budget still bounds
// the attempt.
func (cs *connSlot) open(initiator context.Context, p *pendingConn) {
	timeout := defaultConnectionOpenTimeout
	if deadline, ok := initiator.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			timeout = remaining
		}
	}

	ctx, cancel := context.WithTimeout(cs.parent, timeout)
	defer cancel()

	conn, err := cs.dial(ctx)

	cs.mu.Lock()
	if err == nil && cs.closed {
		_ = conn.Close()
		conn, err = nil, ErrScopeClosed
	}
	if err == nil {
		cs.current = conn
	}
	cs.pending = nil
	p.conn, p.err = conn, err
	close(p.done)
	cs.mu.Unlock()
}

// Close transitions the slot to its terminal state and closes any held connection. Subsequent
// Get calls fail with ErrScopeClosed. Closing twice is a no-op.
func (cs *connSlot) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	conn := cs.current
	cs.current = nil
	cs.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
