package tcpstack

import (
	"sync"
	"time"

	"github.com/lirlia/tuntcp/internal/metrics"
	"github.com/lirlia/tuntcp/internal/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Manager is the connection manager of spec §4.4: it owns the
// quad->connection registry and the listening-port->pending-queue
// registry, and runs the single ingress goroutine that demultiplexes
// datagrams read off a Device to the right Connection.
//
// Lock ordering (mandatory, per spec §4.4): terminateMu ≺ pendingMu ≺
// connMu ≺ per-connection mutex. Every lookup that crosses into a
// per-connection mutex releases the map-level lock first.
type Manager struct {
	dev Device
	log *logrus.Entry
	met *metrics.Collector

	terminateMu sync.Mutex
	terminated  bool

	pendingMu sync.RWMutex
	pendingMap map[uint16]*pendingQueue

	connMu  sync.RWMutex
	connMap map[Quad]*Connection

	eg *errgroup.Group
}

// NewManager constructs a Manager over dev. It does not start the
// ingress loop; call Start.
func NewManager(dev Device, met *metrics.Collector, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		dev:        dev,
		log:        log,
		met:        met,
		pendingMap: make(map[uint16]*pendingQueue),
		connMap:    make(map[Quad]*Connection),
	}
}

// Start launches the ingress goroutine.
func (m *Manager) Start() {
	m.eg = &errgroup.Group{}
	m.eg.Go(m.ingressLoop)
}

// Close sets the global terminate flag and joins the ingress goroutine
// (spec §4.4/§5 "Interface Drop"). Every tracked connection is marked
// aborted so blocked Stream calls wake with ErrConnectionAborted.
func (m *Manager) Close() error {
	m.terminateMu.Lock()
	m.terminated = true
	m.terminateMu.Unlock()

	err := m.dev.Close()

	if m.eg != nil {
		_ = m.eg.Wait()
	}

	m.connMu.Lock()
	conns := make([]*Connection, 0, len(m.connMap))
	for _, c := range m.connMap {
		conns = append(conns, c)
	}
	m.connMap = make(map[Quad]*Connection)
	m.connMu.Unlock()

	for _, c := range conns {
		c.AbortLocal()
	}

	m.pendingMu.Lock()
	pqs := make([]*pendingQueue, 0, len(m.pendingMap))
	for _, pq := range m.pendingMap {
		pqs = append(pqs, pq)
	}
	m.pendingMap = make(map[uint16]*pendingQueue)
	m.pendingMu.Unlock()

	for _, pq := range pqs {
		pq.mu.Lock()
		pq.closed = true
		pq.cond.Broadcast()
		pq.mu.Unlock()
	}

	return err
}

func (m *Manager) isTerminated() bool {
	m.terminateMu.Lock()
	defer m.terminateMu.Unlock()
	return m.terminated
}

// Bind creates a Listener for port, or ErrAddrInUse if one already
// exists (spec §4.4/§6).
func (m *Manager) Bind(port uint16) (*Listener, error) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	if _, exists := m.pendingMap[port]; exists {
		m.met.IncBindCollisions()
		return nil, ErrAddrInUse
	}
	pq := newPendingQueue()
	m.pendingMap[port] = pq
	return &Listener{manager: m, port: port, pending: pq}, nil
}

func (m *Manager) removeListener(port uint16) {
	m.pendingMu.Lock()
	delete(m.pendingMap, port)
	m.pendingMu.Unlock()
}

// Dial performs an active open to (remoteIP, remotePort) from
// localIP:localPort, returning a Stream once constructed (the
// handshake itself completes asynchronously via the ingress loop; the
// caller typically waits on the first Read/Write or polls
// Stream.conn.State(), mirroring how a real active-open socket returns
// before the handshake is guaranteed complete).
func (m *Manager) Dial(localIP, remoteIP [4]byte, localPort, remotePort uint16) (*Stream, error) {
	quad := Quad{LocalIP: localIP, LocalPort: localPort, RemoteIP: remoteIP, RemotePort: remotePort}

	m.connMu.Lock()
	if _, exists := m.connMap[quad]; exists {
		m.connMu.Unlock()
		return nil, ErrAddrInUse
	}
	iss := GenerateISS(quad, time.Now())
	conn := NewActiveConnection(quad, iss, m.egressFor(quad), m.connLogger(quad))
	m.wireTerminal(conn)
	m.connMap[quad] = conn
	m.connMu.Unlock()

	if err := conn.SendInitialSyn(); err != nil {
		m.evict(conn)
		return nil, err
	}

	return &Stream{conn: conn}, nil
}

// wireTerminal hooks a connection's TIME-WAIT timer expiry to evict it
// from the registry; see Connection.startTimeWait.
func (m *Manager) wireTerminal(conn *Connection) {
	conn.onTerminal = func(c *Connection) {
		m.evict(c)
		m.met.SetActiveConnections(m.connCount())
	}
}

func (m *Manager) connLogger(quad Quad) *logrus.Entry {
	return m.log.WithField("quad", quad.String())
}

// egressFor returns the egress callback a Connection uses to transmit:
// write the datagram to the Device and bump the segments-out counter.
func (m *Manager) egressFor(quad Quad) egressFunc {
	return func(datagram []byte) error {
		_, err := m.dev.WritePacket(datagram)
		m.met.IncSegmentsOut()
		return err
	}
}

// ingressLoop is the manager's single goroutine reading the Device and
// dispatching to connections (spec §4.4 "Ingress loop"). Run via the
// errgroup started in Start.
func (m *Manager) ingressLoop() error {
	for {
		if m.isTerminated() {
			return nil
		}

		datagram, ok := m.dev.ReadPacket()
		if !ok {
			return nil
		}
		if m.isTerminated() {
			return nil
		}

		m.handleDatagram(datagram)
	}
}

func (m *Manager) handleDatagram(datagram []byte) {
	ipHdr, err := wire.ParseIPv4(datagram)
	if err != nil {
		m.met.IncChecksumDrops()
		return
	}
	if ipHdr.Protocol != wire.ProtocolTCP {
		return
	}

	ipHeaderLen := ipHdr.HeaderLen()
	totalLen := int(ipHdr.TotalLength)
	if totalLen == 0 || totalLen > len(datagram) {
		totalLen = len(datagram)
	}
	if ipHeaderLen >= totalLen || ipHeaderLen+wire.TCPHeaderLen > len(datagram) {
		m.met.IncChecksumDrops()
		return
	}

	tcpBuf := datagram[ipHeaderLen:totalLen]
	tcpHdr, err := wire.ParseTCP(tcpBuf)
	if err != nil {
		m.met.IncChecksumDrops()
		return
	}
	dataStart := tcpHdr.DataOffsetBytes()
	if dataStart > len(tcpBuf) {
		m.met.IncChecksumDrops()
		return
	}
	payload := tcpBuf[dataStart:]

	if !wire.VerifyTCPChecksum(ipHdr.SrcIP, ipHdr.DstIP, tcpBuf[:wire.TCPHeaderLen], payload) {
		m.met.IncChecksumDrops()
		return
	}

	m.met.IncSegmentsIn()

	quad := Quad{
		LocalIP:    ipToArray(ipHdr.DstIP),
		LocalPort:  tcpHdr.DstPort,
		RemoteIP:   ipToArray(ipHdr.SrcIP),
		RemotePort: tcpHdr.SrcPort,
	}

	m.connMu.RLock()
	conn, exists := m.connMap[quad]
	m.connMu.RUnlock()

	if exists {
		m.dispatch(conn, tcpHdr, payload)
		return
	}

	if !tcpHdr.SYN || tcpHdr.ACK {
		return
	}

	m.pendingMu.RLock()
	pq, boundHere := m.pendingMap[tcpHdr.DstPort]
	m.pendingMu.RUnlock()
	if !boundHere {
		return
	}

	iss := GenerateISS(quad, time.Now())
	conn = NewListenConnection(quad, iss, m.egressFor(quad), m.connLogger(quad))
	m.wireTerminal(conn)

	m.connMu.Lock()
	m.connMap[quad] = conn
	m.connMu.Unlock()

	// The initial SYN only moves LISTEN->SYN-RECEIVED; the connection
	// is queued for Accept once the handshake's final ACK lands (see
	// dispatch's established-transition check below), not here.
	m.dispatch(conn, tcpHdr, payload)
}

// dispatch drives one connection's state machine and performs the
// post-processing spec §4.4 step 7 describes: wake waiters, queue a
// freshly-established passive-open connection for Accept, and evict
// terminal connections from the registry.
func (m *Manager) dispatch(conn *Connection, tcpHdr *wire.TCPHeader, payload []byte) {
	before := conn.State()
	readable, writable, terminal := conn.OnSegment(Segment{TCP: tcpHdr, Payload: payload})
	after := conn.State()

	conn.mu.Lock()
	if readable {
		conn.readCond.Broadcast()
	}
	if writable {
		conn.writeCond.Broadcast()
	}
	conn.mu.Unlock()

	if before == StateSynReceived && after == StateEstablished {
		m.pendingMu.RLock()
		pq, boundHere := m.pendingMap[conn.quad.LocalPort]
		m.pendingMu.RUnlock()
		if boundHere {
			pq.push(conn)
		}
	}

	if terminal {
		m.evict(conn)
	}
	m.met.SetActiveConnections(m.connCount())
}

func (m *Manager) evict(conn *Connection) {
	m.connMu.Lock()
	delete(m.connMap, conn.quad)
	m.connMu.Unlock()
}

func (m *Manager) connCount() int {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return len(m.connMap)
}
