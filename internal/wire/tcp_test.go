package wire

import (
	"math/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTCPChecksumRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	srcIP := net.IPv4(10, 0, 0, 1)
	dstIP := net.IPv4(10, 0, 0, 2)

	for i := 0; i < 200; i++ {
		payload := make([]byte, r.Intn(128))
		r.Read(payload)

		h := &TCPHeader{
			SrcPort: uint16(1 + r.Intn(65534)),
			DstPort: uint16(1 + r.Intn(65534)),
			SeqNum:  r.Uint32(),
			AckNum:  r.Uint32(),
			ACK:     r.Intn(2) == 1,
			PSH:     r.Intn(2) == 1,
			Window:  uint16(r.Intn(1 << 16)),
		}

		headerBuf := make([]byte, TCPHeaderLen)
		_, err := SerializeTCP(h, headerBuf)
		require.NoError(t, err)

		h.Checksum = TCPChecksum(srcIP, dstIP, headerBuf, payload)
		_, err = SerializeTCP(h, headerBuf)
		require.NoError(t, err)

		require.True(t, VerifyTCPChecksum(srcIP, dstIP, headerBuf, payload))
	}
}

func TestTCPChecksumDetectsCorruption(t *testing.T) {
	srcIP := net.IPv4(10, 0, 0, 1)
	dstIP := net.IPv4(10, 0, 0, 2)
	h := &TCPHeader{SrcPort: 1000, DstPort: 2000, SeqNum: 1, AckNum: 1, ACK: true}

	headerBuf := make([]byte, TCPHeaderLen)
	_, _ = SerializeTCP(h, headerBuf)
	h.Checksum = TCPChecksum(srcIP, dstIP, headerBuf, nil)
	_, _ = SerializeTCP(h, headerBuf)

	require.True(t, VerifyTCPChecksum(srcIP, dstIP, headerBuf, nil))
	headerBuf[4] ^= 0xFF // corrupt sequence number byte
	require.False(t, VerifyTCPChecksum(srcIP, dstIP, headerBuf, nil))
}

func TestParseTCPFlags(t *testing.T) {
	h := &TCPHeader{SYN: true, ACK: true, Window: 4096}
	buf := make([]byte, TCPHeaderLen)
	_, err := SerializeTCP(h, buf)
	require.NoError(t, err)

	got, err := ParseTCP(buf)
	require.NoError(t, err)
	require.True(t, got.SYN)
	require.True(t, got.ACK)
	require.False(t, got.FIN)
	require.False(t, got.RST)
	require.Equal(t, uint16(4096), got.Window)
	require.Equal(t, 20, got.DataOffsetBytes())
}
