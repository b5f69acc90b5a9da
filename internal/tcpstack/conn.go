package tcpstack

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lirlia/tuntcp/internal/seq"
	"github.com/lirlia/tuntcp/internal/wire"
	"github.com/sirupsen/logrus"
)

// BufferLimit bounds the incoming and outgoing byte deques, per spec
// §3 ("Buffer capacity bounds: incoming and outgoing deques each
// capped at 256 KiB").
const BufferLimit = 1 << 18 // 256 KiB

// MSL is the Maximum Segment Lifetime used to size the TIME-WAIT
// timeout (2*MSL), per spec §5: "implementer picks MSL; 60s is
// typical."
const MSL = 30 * time.Second

// egressFunc hands a fully-serialized IPv4+TCP datagram to the
// outside world (ultimately a TUN device write).
type egressFunc func(datagram []byte) error

// Connection owns one TCP state machine plus its byte-oriented
// incoming/outgoing buffers (spec §3/§4.3). A Connection's exported
// methods lock its own mutex; callers never need an external lock.
type Connection struct {
	mu sync.Mutex

	// id is a diagnostic identifier attached to every log line for this
	// connection, independent of the quad (which a peer could, in
	// principle, reuse across a TIME-WAIT cycle).
	id    uuid.UUID
	quad  Quad
	state State
	send  sendSpace
	recv  recvSpace

	incoming []byte
	outgoing []byte

	// peerClosed is set when a FIN from the peer has been processed
	// (the "close incoming side" action of spec §4.3's ESTABLISHED row);
	// it lets Stream.Read distinguish "no data yet" from "peer is done
	// sending, drain what's buffered and then report EOF".
	peerClosed bool
	// isHandled is cleared on RST or local abort, and on Interface
	// teardown; Stream operations on a connection with isHandled==false
	// fail with ErrConnectionAborted.
	isHandled bool

	readCond  *sync.Cond
	writeCond *sync.Cond

	egress egressFunc

	timeWaitTimer *time.Timer

	log *logrus.Entry

	onTerminal func(*Connection) // manager callback, fired on TIME-WAIT expiry, after mu is released
}

// newConnection allocates a Connection with its condition variables
// wired to its own mutex.
func newConnection(quad Quad, egress egressFunc, log *logrus.Entry) *Connection {
	id := uuid.New()
	if log != nil {
		log = log.WithField("conn_id", id.String())
	}
	c := &Connection{
		id:        id,
		quad:      quad,
		isHandled: true,
		egress:    egress,
		log:       log,
	}
	c.readCond = sync.NewCond(&c.mu)
	c.writeCond = sync.NewCond(&c.mu)
	return c
}

// NewListenConnection creates a Connection in LISTEN state, the
// per-accept template the manager constructs when a SYN arrives for a
// bound port (spec §4.4 step 6). iss is chosen by the caller (see
// GenerateISS) so the manager controls the clock/randomness source.
func NewListenConnection(quad Quad, iss uint32, egress egressFunc, log *logrus.Entry) *Connection {
	c := newConnection(quad, egress, log)
	c.state = StateListen
	c.send = sendSpace{iss: iss, una: iss, nxt: iss, wnd: DefaultWindow}
	c.recv = recvSpace{wnd: DefaultWindow}
	return c
}

// NewActiveConnection allocates a Connection in SYN-SENT (active open,
// spec §6 Interface::bind's counterpart for outbound connections). It
// does not transmit anything: the caller must register the connection
// in the manager's registry and then call SendInitialSyn, so a fast
// reply can never arrive before the connection is discoverable.
func NewActiveConnection(quad Quad, iss uint32, egress egressFunc, log *logrus.Entry) *Connection {
	c := newConnection(quad, egress, log)
	c.send = sendSpace{iss: iss, una: iss, nxt: iss, wnd: DefaultWindow}
	c.recv = recvSpace{wnd: DefaultWindow}
	c.state = StateSynSent
	return c
}

// SendInitialSyn transmits the SYN that begins an active open. Call
// exactly once, after the connection is registered in the manager.
func (c *Connection) SendInitialSyn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transmit(segFlags{syn: true}, c.send.iss, 0, nil); err != nil {
		return err
	}
	c.send.nxt = seq.Add(c.send.iss, 1)
	return nil
}

// State returns the connection's current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type segFlags struct {
	syn, ack, fin, rst, psh bool
}

// transmit serializes and sends one segment. Caller must hold c.mu.
func (c *Connection) transmit(flags segFlags, seqNum, ackNum uint32, payload []byte) error {
	tcph := &wire.TCPHeader{
		SrcPort: c.quad.LocalPort,
		DstPort: c.quad.RemotePort,
		SeqNum:  seqNum,
		AckNum:  ackNum,
		Window:  c.recv.wnd,
		SYN:     flags.syn,
		ACK:     flags.ack,
		FIN:     flags.fin,
		RST:     flags.rst,
		PSH:     flags.psh,
	}
	iph := &wire.IPv4Header{
		TTL:      64,
		Protocol: wire.ProtocolTCP,
		DontFrag: true,
		SrcIP:    c.quad.localNetIP(),
		DstIP:    c.quad.remoteNetIP(),
	}
	buf := make([]byte, wire.IPv4HeaderLen+wire.TCPHeaderLen+len(payload))
	n, err := wire.WriteSegment(iph, tcph, payload, buf)
	if err != nil {
		return err
	}
	return c.egress(buf[:n])
}

func (c *Connection) sendBareAck() {
	_ = c.transmit(segFlags{ack: true}, c.send.nxt, c.recv.nxt, nil)
}

func (c *Connection) sendReset(seqNum uint32) {
	_ = c.transmit(segFlags{rst: true}, seqNum, 0, nil)
}

// Segment bundles the parsed header and payload OnSegment consumes.
type Segment struct {
	TCP     *wire.TCPHeader
	Payload []byte
}

// OnSegment feeds one inbound, already checksum-verified TCP segment
// into the state machine (spec §4.3, §4.4 step 6/7). It returns
// whether waiters should be woken on the read condition, the write
// condition, and whether the connection has reached a terminal
// condition (CLOSED, or aborted by RST) that the manager should evict
// from its registry.
func (c *Connection) OnSegment(s Segment) (readable, writable, terminal bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tcph := s.TCP
	payload := s.Payload

	switch c.state {
	case StateListen:
		if tcph.RST {
			return false, false, false
		}
		if tcph.SYN && !tcph.ACK {
			c.recv.irs = tcph.SeqNum
			c.recv.nxt = seq.Add(tcph.SeqNum, 1)
			c.send.wnd = tcph.Window
			c.state = StateSynReceived
			_ = c.transmit(segFlags{syn: true, ack: true}, c.send.iss, c.recv.nxt, nil)
			c.send.nxt = seq.Add(c.send.iss, 1)
		}
		return false, false, false

	case StateSynSent:
		if tcph.RST {
			return c.abortLocked()
		}
		if tcph.SYN && tcph.ACK && tcph.AckNum == seq.Add(c.send.iss, 1) {
			c.recv.irs = tcph.SeqNum
			c.recv.nxt = seq.Add(tcph.SeqNum, 1)
			c.send.una = tcph.AckNum
			c.send.wnd = tcph.Window
			c.state = StateEstablished
			_ = c.transmit(segFlags{ack: true}, c.send.nxt, c.recv.nxt, nil)
			return true, true, false
		}
		if tcph.SYN && !tcph.ACK {
			c.recv.irs = tcph.SeqNum
			c.recv.nxt = seq.Add(tcph.SeqNum, 1)
			c.state = StateSynReceived
			_ = c.transmit(segFlags{syn: true, ack: true}, c.send.iss, c.recv.nxt, nil)
		}
		return false, false, false
	}

	segLen := uint32(len(payload))
	if tcph.SYN {
		segLen++
	}
	if tcph.FIN {
		segLen++
	}

	acceptable, ackFailed := c.checkAcceptable(tcph, segLen)
	if !acceptable {
		if ackFailed {
			c.sendReset(tcph.AckNum)
		} else if !tcph.RST {
			c.sendBareAck()
		}
		return false, false, false
	}

	if tcph.RST {
		return c.abortLocked()
	}

	// Advance send.una / window on a valid ACK (applies to every
	// post-handshake state).
	if tcph.ACK {
		c.processAck(tcph)
	}

	switch c.state {
	case StateSynReceived:
		if tcph.ACK && tcph.AckNum == seq.Add(c.send.iss, 1) {
			c.state = StateEstablished
			writable = true
		}

	case StateEstablished:
		readable, writable = c.handleDataAndFin(tcph, payload)

	case StateFinWait1:
		if tcph.FIN {
			c.recv.nxt = seq.Add(c.recv.nxt, 1)
			c.peerClosed = true
			c.sendBareAck()
			if c.ourFinAcked(tcph) {
				c.state = StateTimeWait
				c.startTimeWait()
			} else {
				c.state = StateClosing
			}
			readable = true
		} else if c.ourFinAcked(tcph) {
			c.state = StateFinWait2
		}

	case StateFinWait2:
		if tcph.FIN {
			c.recv.nxt = seq.Add(c.recv.nxt, 1)
			c.peerClosed = true
			c.sendBareAck()
			c.state = StateTimeWait
			c.startTimeWait()
			readable = true
		}

	case StateCloseWait:
		writable = c.drainOutgoingLocked()

	case StateClosing:
		if c.ourFinAcked(tcph) {
			c.state = StateTimeWait
			c.startTimeWait()
		}

	case StateLastAck:
		if c.ourFinAcked(tcph) {
			c.state = StateClosed
			terminal = true
		}

	case StateTimeWait:
		// Retransmitted FIN from a peer that didn't see our ACK; ack
		// again and stay in TIME-WAIT (timer already running).
		if tcph.FIN {
			c.sendBareAck()
		}
	}

	return readable, writable, terminal
}

// ourFinAcked reports whether tcph's ACK number covers the FIN we
// transmitted (send.nxt, since FIN consumes the final sequence slot
// send.nxt was advanced past when we sent it).
func (c *Connection) ourFinAcked(tcph *wire.TCPHeader) bool {
	return tcph.ACK && tcph.AckNum == c.send.nxt && c.send.una == c.send.nxt
}

// checkAcceptable implements spec §4.3's segment acceptability test.
// It returns (acceptable, ackCheckFailed); when ackCheckFailed is true
// the caller must respond with RST(seq=ack.seq) instead of a bare ACK.
func (c *Connection) checkAcceptable(tcph *wire.TCPHeader, segLen uint32) (bool, bool) {
	if tcph.ACK {
		if !(seq.Leq(c.send.una, tcph.AckNum) && seq.Leq(tcph.AckNum, c.send.nxt)) {
			return false, true
		}
	}

	w := seq.Window{Start: c.recv.nxt, Size: uint32(c.recv.wnd)}
	if segLen == 0 {
		return w.AcceptableEmpty(tcph.SeqNum), false
	}
	return w.AcceptableNonEmpty(tcph.SeqNum, segLen), false
}

// processAck advances send.una (freeing acknowledged outgoing bytes)
// and updates the send window, per spec §4.3's "On-acknowledgement
// bookkeeping" and the wl1/wl2 window-update guard from the send
// sequence space definition in spec §3.
func (c *Connection) processAck(tcph *wire.TCPHeader) {
	if seq.Lt(c.send.una, tcph.AckNum) && seq.Leq(tcph.AckNum, c.send.nxt) {
		acked := tcph.AckNum - c.send.una
		if int(acked) <= len(c.outgoing) {
			c.outgoing = c.outgoing[acked:]
		} else {
			c.outgoing = c.outgoing[:0]
		}
		c.send.una = tcph.AckNum
		c.writeCond.Broadcast()
	}
	if seq.Lt(c.send.wl1, tcph.SeqNum) || (c.send.wl1 == tcph.SeqNum && seq.Leq(c.send.wl2, tcph.AckNum)) {
		c.send.wnd = tcph.Window
		c.send.wl1 = tcph.SeqNum
		c.send.wl2 = tcph.AckNum
	}
}

// handleDataAndFin implements the ESTABLISHED row of spec §4.3's
// transition table: enqueue payload, advance recv.nxt, ACK, and on FIN
// close the incoming side and move to CLOSE-WAIT.
func (c *Connection) handleDataAndFin(tcph *wire.TCPHeader, payload []byte) (readable, writable bool) {
	if len(payload) > 0 {
		room := BufferLimit - len(c.incoming)
		n := len(payload)
		if n > room {
			n = room
		}
		c.incoming = append(c.incoming, payload[:n]...)
		c.recv.nxt = seq.Add(c.recv.nxt, uint32(n))
		readable = true
	}

	if tcph.FIN {
		c.recv.nxt = seq.Add(c.recv.nxt, 1)
		c.peerClosed = true
		c.state = StateCloseWait
		readable = true
	}

	c.sendBareAck()
	writable = c.drainOutgoingLocked()
	return readable, writable
}

// drainOutgoingLocked implements spec §4.3's "Data-bearing transmit
// rules": send up to min(window, unsent) bytes as a new PSH|ACK
// segment. Caller must hold c.mu. Bytes already in flight (counted by
// send.nxt-send.una) remain in outgoing until acknowledged, so the
// drainable pool is outgoing[inFlight:], not the whole deque — the
// invariant that "bytes remain in outgoing until acked" only holds if
// sent-but-unacked bytes are excluded from what gets (re)transmitted
// here.
func (c *Connection) drainOutgoingLocked() bool {
	if c.state != StateEstablished && c.state != StateCloseWait {
		return false
	}
	inFlight := c.send.nxt - c.send.una
	windowFree := uint32(0)
	if uint32(c.send.wnd) > inFlight {
		windowFree = uint32(c.send.wnd) - inFlight
	}
	if int(inFlight) >= len(c.outgoing) {
		return true
	}
	unsent := c.outgoing[inFlight:]
	n := uint32(len(unsent))
	if n > windowFree {
		n = windowFree
	}
	if n == 0 {
		return true
	}
	payload := unsent[:n]
	_ = c.transmit(segFlags{psh: true, ack: true}, c.send.nxt, c.recv.nxt, payload)
	c.send.nxt = seq.Add(c.send.nxt, n)
	return true
}

func (c *Connection) startTimeWait() {
	if c.log != nil {
		c.log.Debug("entering TIME-WAIT")
	}
	if c.timeWaitTimer != nil {
		c.timeWaitTimer.Stop()
	}
	c.timeWaitTimer = time.AfterFunc(2*MSL, func() {
		c.mu.Lock()
		if c.state == StateTimeWait {
			c.state = StateClosed
		}
		cb := c.onTerminal
		log := c.log
		c.mu.Unlock()
		if log != nil {
			log.Debug("TIME-WAIT expired, closing")
		}
		if cb != nil {
			cb(c)
		}
	})
}

// abortLocked implements spec §4.3's "any: valid RST" row: immediate
// transition to CLOSED, is_handled cleared so blocked readers/writers
// wake with ConnectionAborted. Caller must hold c.mu.
func (c *Connection) abortLocked() (readable, writable, terminal bool) {
	if c.log != nil {
		c.log.WithField("from_state", c.state).Warn("connection aborted")
	}
	c.state = StateClosed
	c.isHandled = false
	c.readCond.Broadcast()
	c.writeCond.Broadcast()
	return true, true, true
}

// Abort is the externally-triggered form of abortLocked, used by
// Listener teardown to RST not-yet-accepted connections (spec §4.5
// "Listener Drop").
func (c *Connection) Abort() {
	c.mu.Lock()
	if c.state != StateClosed {
		c.sendReset(c.send.nxt)
	}
	c.abortLocked()
	c.mu.Unlock()
}

// AbortLocal is used by Interface teardown: every connection is marked
// aborted without sending an on-wire RST (the TUN device is already
// going away).
func (c *Connection) AbortLocal() {
	c.mu.Lock()
	c.state = StateClosed
	c.isHandled = false
	c.readCond.Broadcast()
	c.writeCond.Broadcast()
	c.mu.Unlock()
}

// CloseLocal enqueues a FIN (spec §4.3's "app close" actions) and
// transitions ESTABLISHED->FIN-WAIT-1 or CLOSE-WAIT->LAST-ACK.
func (c *Connection) CloseLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateEstablished:
		_ = c.transmit(segFlags{fin: true, ack: true}, c.send.nxt, c.recv.nxt, nil)
		c.send.nxt = seq.Add(c.send.nxt, 1)
		c.state = StateFinWait1
	case StateCloseWait:
		_ = c.transmit(segFlags{fin: true, ack: true}, c.send.nxt, c.recv.nxt, nil)
		c.send.nxt = seq.Add(c.send.nxt, 1)
		c.state = StateLastAck
	}
}
