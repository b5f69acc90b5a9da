package tcpstack

import (
	"testing"

	"github.com/lirlia/tuntcp/internal/seq"
	"github.com/lirlia/tuntcp/internal/wire"
	"github.com/stretchr/testify/require"
)

func testQuad() Quad {
	return Quad{
		LocalIP:    [4]byte{10, 0, 0, 1},
		LocalPort:  7000,
		RemoteIP:   [4]byte{10, 0, 0, 2},
		RemotePort: 40000,
	}
}

type capturingEgress struct {
	sent []*wire.TCPHeader
}

func (c *capturingEgress) egress(datagram []byte) error {
	ipHdr, err := wire.ParseIPv4(datagram)
	if err != nil {
		return err
	}
	tcpHdr, err := wire.ParseTCP(datagram[ipHdr.HeaderLen():])
	if err != nil {
		return err
	}
	c.sent = append(c.sent, tcpHdr)
	return nil
}

func (c *capturingEgress) last() *wire.TCPHeader {
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

const fixedISS = 5000

func newListenConnForTest() (*Connection, *capturingEgress) {
	eg := &capturingEgress{}
	c := NewListenConnection(testQuad(), fixedISS, eg.egress, nil)
	return c, eg
}

// Seed scenario 1: passive open handshake.
func TestHandshake(t *testing.T) {
	c, eg := newListenConnForTest()

	syn := &wire.TCPHeader{SeqNum: 1000, SYN: true, Window: 4096}
	readable, writable, terminal := c.OnSegment(Segment{TCP: syn})
	require.False(t, readable)
	require.False(t, writable)
	require.False(t, terminal)
	require.Equal(t, StateSynReceived, c.State())

	synAck := eg.last()
	require.NotNil(t, synAck)
	require.True(t, synAck.SYN)
	require.True(t, synAck.ACK)
	require.Equal(t, uint32(fixedISS), synAck.SeqNum)
	require.Equal(t, uint32(1001), synAck.AckNum)

	finalAck := &wire.TCPHeader{SeqNum: 1001, AckNum: fixedISS + 1, ACK: true, Window: 4096}
	readable, writable, terminal = c.OnSegment(Segment{TCP: finalAck})
	require.False(t, readable)
	require.True(t, writable)
	require.False(t, terminal)
	require.Equal(t, StateEstablished, c.State())
}

// Seed scenario 2: data transfer.
func TestDataTransfer(t *testing.T) {
	c, eg := newListenConnForTest()
	establish(t, c, eg)

	data := &wire.TCPHeader{SeqNum: 1001, AckNum: fixedISS + 1, ACK: true, Window: 4096}
	readable, _, _ := c.OnSegment(Segment{TCP: data, Payload: []byte("hello")})
	require.True(t, readable)

	s := &Stream{conn: c}
	buf := make([]byte, 5)
	n, err := s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))

	ack := eg.last()
	require.True(t, ack.ACK)
	require.Equal(t, uint32(1006), ack.AckNum)
}

// Seed scenario 3: peer-initiated close.
func TestPeerInitiatedClose(t *testing.T) {
	c, eg := newListenConnForTest()
	establish(t, c, eg)

	data := &wire.TCPHeader{SeqNum: 1001, AckNum: fixedISS + 1, ACK: true, Window: 4096}
	c.OnSegment(Segment{TCP: data, Payload: []byte("hi")})

	s := &Stream{conn: c}
	buf := make([]byte, 2)
	_, err := s.Read(buf)
	require.NoError(t, err)

	fin := &wire.TCPHeader{SeqNum: 1003, AckNum: fixedISS + 1, ACK: true, FIN: true, Window: 4096}
	readable, _, _ := c.OnSegment(Segment{TCP: fin})
	require.True(t, readable)
	require.Equal(t, StateCloseWait, c.State())

	finAck := eg.last()
	require.True(t, finAck.ACK)
	require.Equal(t, uint32(1004), finAck.AckNum)

	n, err := s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, s.Close())
	require.Equal(t, StateLastAck, c.State())
	ourFin := eg.last()
	require.True(t, ourFin.FIN)

	peerAck := &wire.TCPHeader{SeqNum: c.recv.nxt, AckNum: ourFin.SeqNum + 1, ACK: true, Window: 4096}
	_, _, terminal := c.OnSegment(Segment{TCP: peerAck})
	require.True(t, terminal)
	require.Equal(t, StateClosed, c.State())
}

// Seed scenario 4: reset.
func TestReset(t *testing.T) {
	c, eg := newListenConnForTest()
	establish(t, c, eg)

	rst := &wire.TCPHeader{SeqNum: 1001, RST: true}
	readable, writable, terminal := c.OnSegment(Segment{TCP: rst})
	require.True(t, readable)
	require.True(t, writable)
	require.True(t, terminal)
	require.Equal(t, StateClosed, c.State())

	s := &Stream{conn: c}
	_, err := s.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrConnectionAborted)

	_, err = s.Write([]byte("x"))
	require.ErrorIs(t, err, ErrConnectionAborted)
}

// Seed scenario 5: out-of-window drop.
func TestOutOfWindowDrop(t *testing.T) {
	c, eg := newListenConnForTest()
	establish(t, c, eg)

	c.mu.Lock()
	c.recv.nxt = 1006
	c.recv.wnd = 10
	c.mu.Unlock()

	stray := &wire.TCPHeader{SeqNum: 2000, AckNum: fixedISS + 1, ACK: true, Window: 4096}
	readable, _, _ := c.OnSegment(Segment{TCP: stray, Payload: []byte("nope")})
	require.False(t, readable)

	ack := eg.last()
	require.True(t, ack.ACK)
	require.False(t, ack.RST)
	require.Equal(t, uint32(1006), ack.AckNum)

	c.mu.Lock()
	incomingLen := len(c.incoming)
	c.mu.Unlock()
	require.Equal(t, 0, incomingLen)
}

func TestWindowNeverExceedsInvariant(t *testing.T) {
	c, eg := newListenConnForTest()
	establish(t, c, eg)

	s := &Stream{conn: c}
	_, err := s.Write(make([]byte, 100))
	require.NoError(t, err)

	c.mu.Lock()
	inFlight := c.send.nxt - c.send.una
	wnd := uint32(c.send.wnd)
	c.mu.Unlock()
	require.LessOrEqual(t, inFlight, wnd)
	_ = eg
}

// establish drives a connection from LISTEN through the three-way
// handshake into ESTABLISHED.
func establish(t *testing.T, c *Connection, eg *capturingEgress) {
	t.Helper()
	syn := &wire.TCPHeader{SeqNum: 1000, SYN: true, Window: 4096}
	c.OnSegment(Segment{TCP: syn})
	require.Equal(t, StateSynReceived, c.State())

	ack := &wire.TCPHeader{SeqNum: 1001, AckNum: seq.Add(fixedISS, 1), ACK: true, Window: 4096}
	c.OnSegment(Segment{TCP: ack})
	require.Equal(t, StateEstablished, c.State())
}
