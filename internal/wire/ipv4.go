package wire

import (
	"encoding/binary"
	"errors"
	"net"
)

// ProtocolTCP is the IPv4 protocol number for TCP.
const ProtocolTCP = 6

// IPv4HeaderLen is the size of the fixed, no-options IPv4 header this
// package normatively reads and writes.
const IPv4HeaderLen = 20

var (
	// ErrBadVersion is returned when the IP version nibble is not 4.
	ErrBadVersion = errors.New("wire: bad ip version")
	// ErrBadChecksum is returned when a header checksum fails to verify.
	ErrBadChecksum = errors.New("wire: bad checksum")
	// ErrTruncated is returned when a buffer is shorter than its header
	// claims.
	ErrTruncated = errors.New("wire: truncated packet")
)

// IPv4Header is the fixed 20-byte IPv4 header; options are not
// represented (IHL is honored on parse but option bytes are skipped).
type IPv4Header struct {
	IHL         byte // header length in 32-bit words, >= 5
	DSCP        byte
	TotalLength uint16
	ID          uint16
	DontFrag    bool
	MoreFrag    bool
	FragOffset  uint16 // 13 bits
	TTL         byte
	Protocol    byte
	Checksum    uint16
	SrcIP       net.IP // 4 bytes
	DstIP       net.IP // 4 bytes
}

// HeaderLen returns the header length in bytes implied by IHL.
func (h *IPv4Header) HeaderLen() int {
	ihl := int(h.IHL)
	if ihl == 0 {
		ihl = 5
	}
	return ihl * 4
}

// ParseIPv4 decodes the IPv4 header at the front of buf. It returns
// ErrTruncated if buf is too short to hold a 20-byte header or the
// header's own IHL-implied length, ErrBadVersion if the version nibble
// isn't 4, and ErrBadChecksum if the header checksum doesn't fold to
// 0xFFFF.
func ParseIPv4(buf []byte) (*IPv4Header, error) {
	if len(buf) < IPv4HeaderLen {
		return nil, ErrTruncated
	}
	version := buf[0] >> 4
	if version != 4 {
		return nil, ErrBadVersion
	}
	ihl := buf[0] & 0x0F
	headerLen := int(ihl) * 4
	if headerLen < IPv4HeaderLen || headerLen > len(buf) {
		return nil, ErrTruncated
	}
	if !verifyIPv4Checksum(buf[:headerLen]) {
		return nil, ErrBadChecksum
	}

	flagsFrag := binary.BigEndian.Uint16(buf[6:8])

	h := &IPv4Header{
		IHL:         ihl,
		DSCP:        buf[1],
		TotalLength: binary.BigEndian.Uint16(buf[2:4]),
		ID:          binary.BigEndian.Uint16(buf[4:6]),
		DontFrag:    flagsFrag&0x4000 != 0,
		MoreFrag:    flagsFrag&0x2000 != 0,
		FragOffset:  flagsFrag & 0x1FFF,
		TTL:         buf[8],
		Protocol:    buf[9],
		Checksum:    binary.BigEndian.Uint16(buf[10:12]),
		SrcIP:       net.IPv4(buf[12], buf[13], buf[14], buf[15]).To4(),
		DstIP:       net.IPv4(buf[16], buf[17], buf[18], buf[19]).To4(),
	}
	return h, nil
}

// SerializeIPv4 writes a 20-byte, no-options IPv4 header into buf
// (which must be at least 20 bytes), setting version=4, IHL=5, and
// recomputing TotalLength and Checksum. It returns the number of
// header bytes written.
func SerializeIPv4(h *IPv4Header, payloadLen int, buf []byte) (int, error) {
	if len(buf) < IPv4HeaderLen {
		return 0, ErrTruncated
	}
	buf[0] = (4 << 4) | 5
	buf[1] = h.DSCP
	binary.BigEndian.PutUint16(buf[2:4], uint16(IPv4HeaderLen+payloadLen))
	binary.BigEndian.PutUint16(buf[4:6], h.ID)

	var flags uint16
	if h.DontFrag {
		flags |= 0x4000
	}
	if h.MoreFrag {
		flags |= 0x2000
	}
	binary.BigEndian.PutUint16(buf[6:8], flags|h.FragOffset)

	buf[8] = h.TTL
	buf[9] = h.Protocol
	buf[10], buf[11] = 0, 0 // zeroed before checksum

	srcIP := h.SrcIP.To4()
	dstIP := h.DstIP.To4()
	copy(buf[12:16], srcIP)
	copy(buf[16:20], dstIP)

	sum := sumBytes(buf[:IPv4HeaderLen])
	binary.BigEndian.PutUint16(buf[10:12], foldCarries(sum))

	return IPv4HeaderLen, nil
}

func verifyIPv4Checksum(headerBytes []byte) bool {
	sum := sumBytes(headerBytes)
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return sum == 0xFFFF
}
