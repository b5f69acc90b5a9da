package tcpstack

import (
	"testing"
	"time"

	"github.com/lirlia/tuntcp/internal/tun"
	"github.com/stretchr/testify/require"
)

// Seed scenario 6: bind collision.
func TestBindCollision(t *testing.T) {
	a, _ := tun.NewLoopbackPair()
	m := NewManager(a, nil, nil)

	l1, err := m.Bind(8080)
	require.NoError(t, err)
	require.NotNil(t, l1)

	_, err = m.Bind(8080)
	require.ErrorIs(t, err, ErrAddrInUse)

	require.NoError(t, l1.Close())
	l2, err := m.Bind(8080)
	require.NoError(t, err)
	require.NotNil(t, l2)
}

// TestIngressHandshakeAndEcho drives two Managers over an in-memory
// loopback pair through a full handshake, a data exchange, and an
// orderly close, exercising the ingress loop end to end rather than
// calling Connection.OnSegment directly.
func TestIngressHandshakeAndEcho(t *testing.T) {
	devA, devB := tun.NewLoopbackPair()

	server := NewManager(devA, nil, nil)
	client := NewManager(devB, nil, nil)
	server.Start()
	client.Start()
	defer server.Close()
	defer client.Close()

	listener, err := server.Bind(7000)
	require.NoError(t, err)

	accepted := make(chan *Stream, 1)
	go func() {
		s, aerr := listener.Accept()
		require.NoError(t, aerr)
		accepted <- s
	}()

	clientIP := [4]byte{10, 0, 0, 2}
	serverIP := [4]byte{10, 0, 0, 1}
	clientStream, err := client.Dial(clientIP, serverIP, 40000, 7000)
	require.NoError(t, err)

	var serverStream *Stream
	select {
	case serverStream = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	require.NotNil(t, serverStream)

	_, err = clientStream.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := readFull(serverStream, buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "ping", string(buf))

	_, err = serverStream.Write([]byte("pong"))
	require.NoError(t, err)

	n, err = readFull(clientStream, buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf[:n]))

	require.NoError(t, clientStream.Close())

	done := make(chan struct{})
	go func() {
		eofBuf := make([]byte, 1)
		for {
			n, err := serverStream.Read(eofBuf)
			if err != nil || n == 0 {
				close(done)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer close")
	}
}

func readFull(s *Stream, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := s.Read(buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
	return total, nil
}
