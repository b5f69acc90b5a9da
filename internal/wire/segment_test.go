package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteSegmentProducesVerifiableDatagram(t *testing.T) {
	ipHdr := &IPv4Header{
		TTL:      64,
		Protocol: ProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcpHdr := &TCPHeader{
		SrcPort: 40000,
		DstPort: 7000,
		SeqNum:  1000,
		AckNum:  2000,
		ACK:     true,
		PSH:     true,
		Window:  4096,
	}
	payload := []byte("hello")

	buf := make([]byte, IPv4HeaderLen+TCPHeaderLen+len(payload))
	n, err := WriteSegment(ipHdr, tcpHdr, payload, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	parsedIP, err := ParseIPv4(buf)
	require.NoError(t, err)
	require.Equal(t, byte(ProtocolTCP), parsedIP.Protocol)

	tcpStart := parsedIP.HeaderLen()
	parsedTCP, err := ParseTCP(buf[tcpStart:])
	require.NoError(t, err)
	require.Equal(t, tcpHdr.SeqNum, parsedTCP.SeqNum)
	require.Equal(t, tcpHdr.AckNum, parsedTCP.AckNum)

	gotPayload := buf[tcpStart+parsedTCP.DataOffsetBytes():]
	require.Equal(t, payload, gotPayload)
	require.True(t, VerifyTCPChecksum(parsedIP.SrcIP, parsedIP.DstIP, buf[tcpStart:tcpStart+TCPHeaderLen], gotPayload))
}
