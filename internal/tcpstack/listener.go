package tcpstack

import "sync"

// pendingQueue is the per-bound-port FIFO of accepted-but-not-yet-
// claimed connections (spec §3 "Pending queue").
type pendingQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Connection
	closed bool
}

func newPendingQueue() *pendingQueue {
	pq := &pendingQueue{}
	pq.cond = sync.NewCond(&pq.mu)
	return pq
}

func (pq *pendingQueue) push(c *Connection) {
	pq.mu.Lock()
	if !pq.closed {
		pq.queue = append(pq.queue, c)
		pq.cond.Signal()
	}
	pq.mu.Unlock()
}

// Listener is the application-facing handle for a bound port (spec
// §4.5).
type Listener struct {
	manager *Manager
	port    uint16
	pending *pendingQueue
}

// Accept blocks until a connection has completed its handshake for
// this port, or the Listener is closed. It returns (nil, nil) on
// listener shutdown, matching spec §6's Option<Stream> with None
// meaning "listener closed", not an error.
func (l *Listener) Accept() (*Stream, error) {
	pq := l.pending
	pq.mu.Lock()
	defer pq.mu.Unlock()

	for len(pq.queue) == 0 && !pq.closed {
		pq.cond.Wait()
	}
	if len(pq.queue) == 0 {
		return nil, nil
	}

	conn := pq.queue[0]
	pq.queue = pq.queue[1:]

	conn.mu.Lock()
	conn.isHandled = true
	conn.mu.Unlock()

	return &Stream{conn: conn}, nil
}

// Close stops the Listener: wakes any blocked Accept with end-of-
// stream, removes the port from the manager's pending-port registry,
// and RSTs any connections still sitting unaccepted in the queue
// (spec §4.5 "Listener Drop").
func (l *Listener) Close() error {
	pq := l.pending
	pq.mu.Lock()
	pq.closed = true
	stranded := pq.queue
	pq.queue = nil
	pq.cond.Broadcast()
	pq.mu.Unlock()

	l.manager.removeListener(l.port)

	for _, c := range stranded {
		c.Abort()
	}
	return nil
}
