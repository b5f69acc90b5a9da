package wire

import (
	"math/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomIPv4Header(r *rand.Rand) *IPv4Header {
	return &IPv4Header{
		DSCP:     byte(r.Intn(64)),
		ID:       uint16(r.Intn(1 << 16)),
		DontFrag: r.Intn(2) == 1,
		MoreFrag: false,
		TTL:      byte(1 + r.Intn(254)),
		Protocol: ProtocolTCP,
		SrcIP:    net.IPv4(byte(r.Intn(256)), byte(r.Intn(256)), byte(r.Intn(256)), byte(r.Intn(256))),
		DstIP:    net.IPv4(byte(r.Intn(256)), byte(r.Intn(256)), byte(r.Intn(256)), byte(r.Intn(256))),
	}
}

func TestIPv4RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		h := randomIPv4Header(r)
		payloadLen := r.Intn(64)

		buf := make([]byte, IPv4HeaderLen)
		n, err := SerializeIPv4(h, payloadLen, buf)
		require.NoError(t, err)
		require.Equal(t, IPv4HeaderLen, n)

		require.True(t, verifyIPv4Checksum(buf))

		got, err := ParseIPv4(buf)
		require.NoError(t, err)
		require.Equal(t, h.DSCP, got.DSCP)
		require.Equal(t, h.ID, got.ID)
		require.Equal(t, h.DontFrag, got.DontFrag)
		require.Equal(t, h.TTL, got.TTL)
		require.Equal(t, h.Protocol, got.Protocol)
		require.True(t, h.SrcIP.Equal(got.SrcIP))
		require.True(t, h.DstIP.Equal(got.DstIP))
		require.Equal(t, uint16(IPv4HeaderLen+payloadLen), got.TotalLength)
	}
}

func TestParseIPv4RejectsBadVersion(t *testing.T) {
	buf := make([]byte, IPv4HeaderLen)
	buf[0] = (6 << 4) | 5
	_, err := ParseIPv4(buf)
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestParseIPv4RejectsTruncated(t *testing.T) {
	_, err := ParseIPv4(make([]byte, 10))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestParseIPv4RejectsBadChecksum(t *testing.T) {
	h := &IPv4Header{TTL: 64, Protocol: ProtocolTCP, SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	buf := make([]byte, IPv4HeaderLen)
	_, err := SerializeIPv4(h, 0, buf)
	require.NoError(t, err)
	buf[10] ^= 0xFF // corrupt checksum

	_, err = ParseIPv4(buf)
	require.ErrorIs(t, err, ErrBadChecksum)
}
