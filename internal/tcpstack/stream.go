package tcpstack

// Stream is the application-facing handle onto one established
// connection (spec §4.5). It is a thin wrapper: all state lives on the
// shared *Connection, which Stream, the Listener that produced it, and
// the manager's ingress loop all reference concurrently.
type Stream struct {
	conn *Connection
}

// Quad returns the connection's 4-tuple, useful for logging.
func (s *Stream) Quad() Quad { return s.conn.quad }

// Read copies up to len(buf) bytes from the connection's incoming
// deque into buf, blocking until at least one byte is available, the
// peer's FIN has been processed and incoming drained (returns 0, nil
// — orderly end of stream), or the connection aborts (returns 0,
// ErrConnectionAborted). It never returns 0 bytes with a nil error
// unless buf is empty or the peer has closed its write side.
func (s *Stream) Read(buf []byte) (int, error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.incoming) == 0 && c.isHandled && !c.peerClosed {
		c.readCond.Wait()
	}

	if !c.isHandled {
		return 0, ErrConnectionAborted
	}
	if len(c.incoming) == 0 {
		// peerClosed with nothing buffered: orderly EOF.
		return 0, nil
	}

	n := copy(buf, c.incoming)
	c.incoming = c.incoming[n:]
	return n, nil
}

// Write appends buf to the connection's outgoing deque, blocking while
// the deque is at capacity, and returns once all of buf has been
// accepted or the connection aborts. The accepted byte count always
// equals len(buf) unless the error is non-nil.
func (s *Stream) Write(buf []byte) (int, error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	written := 0
	for written < len(buf) {
		if !c.isHandled {
			return written, ErrConnectionAborted
		}
		if c.localFinSent() {
			return written, ErrConnectionClosed
		}
		room := BufferLimit - len(c.outgoing)
		if room <= 0 {
			c.writeCond.Wait()
			continue
		}
		n := len(buf) - written
		if n > room {
			n = room
		}
		c.outgoing = append(c.outgoing, buf[written:written+n]...)
		written += n
		c.drainOutgoingLocked()
	}
	return written, nil
}

// Flush blocks until the outgoing deque is empty, i.e. every written
// byte has been acknowledged by the peer (spec §4.5).
func (s *Stream) Flush() error {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.isHandled && len(c.outgoing) > 0 {
		c.writeCond.Wait()
	}
	if !c.isHandled {
		return ErrConnectionAborted
	}
	return nil
}

// Close half-closes the stream by sending a FIN (spec §4.5).
func (s *Stream) Close() error {
	s.conn.CloseLocal()
	return nil
}

// localFinSent reports whether this side has already sent a FIN.
// Caller must hold c.mu.
func (c *Connection) localFinSent() bool {
	switch c.state {
	case StateFinWait1, StateFinWait2, StateClosing, StateLastAck, StateTimeWait, StateClosed:
		return true
	default:
		return false
	}
}
