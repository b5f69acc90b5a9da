package wire

import (
	"encoding/binary"
	"net"
)

// TCPHeaderLen is the size of the fixed, no-options TCP header this
// package normatively reads and writes.
const TCPHeaderLen = 20

// TCPHeader is the fixed 20-byte TCP header. Options are treated as
// opaque padding: parsing skips them, serialization never writes them.
type TCPHeader struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNum     uint32
	AckNum     uint32
	DataOffset byte // in 32-bit words, >= 5
	Reserved   byte

	FIN, SYN, RST, PSH, ACK, URG, ECE, CWR bool

	Window   uint16
	Checksum uint16
	UrgPtr   uint16
}

// DataOffsetBytes returns the header length in bytes implied by
// DataOffset, defaulting to the minimum 20 if unset.
func (h *TCPHeader) DataOffsetBytes() int {
	off := int(h.DataOffset)
	if off == 0 {
		off = 5
	}
	return off * 4
}

// ParseTCP decodes the 20-byte TCP header fields at the front of buf.
// It returns ErrTruncated only when buf is shorter than 20 bytes: a
// buffer shorter than the header's own DataOffset-implied length is the
// caller's responsibility to treat as malformed (spec: "if buf <
// data-offset*4 the caller treats the segment as malformed").
func ParseTCP(buf []byte) (*TCPHeader, error) {
	if len(buf) < TCPHeaderLen {
		return nil, ErrTruncated
	}
	offsetReservedFlags := binary.BigEndian.Uint16(buf[12:14])
	dataOffset := byte(offsetReservedFlags >> 12)
	reserved := byte((offsetReservedFlags >> 8) & 0x0F)
	controlBits := byte(offsetReservedFlags & 0xFF)

	h := &TCPHeader{
		SrcPort:    binary.BigEndian.Uint16(buf[0:2]),
		DstPort:    binary.BigEndian.Uint16(buf[2:4]),
		SeqNum:     binary.BigEndian.Uint32(buf[4:8]),
		AckNum:     binary.BigEndian.Uint32(buf[8:12]),
		DataOffset: dataOffset,
		Reserved:   reserved,
		FIN:        controlBits&0b000001 != 0,
		SYN:        controlBits&0b000010 != 0,
		RST:        controlBits&0b000100 != 0,
		PSH:        controlBits&0b001000 != 0,
		ACK:        controlBits&0b010000 != 0,
		URG:        controlBits&0b100000 != 0,
		ECE:        controlBits&0b01000000 != 0,
		CWR:        controlBits&0b10000000 != 0,
		Window:     binary.BigEndian.Uint16(buf[14:16]),
		Checksum:   binary.BigEndian.Uint16(buf[16:18]),
		UrgPtr:     binary.BigEndian.Uint16(buf[18:20]),
	}
	return h, nil
}

// controlBits packs the flag booleans into the low 8 bits of the
// offset/reserved/flags word (ECE and CWR are tracked but unused by the
// normative state machine, per spec's ECN being out of scope; they are
// still serialized for protocol completeness).
func (h *TCPHeader) controlBits() uint16 {
	var bits uint16
	if h.FIN {
		bits |= 0b00000001
	}
	if h.SYN {
		bits |= 0b00000010
	}
	if h.RST {
		bits |= 0b00000100
	}
	if h.PSH {
		bits |= 0b00001000
	}
	if h.ACK {
		bits |= 0b00010000
	}
	if h.URG {
		bits |= 0b00100000
	}
	if h.ECE {
		bits |= 0b01000000
	}
	if h.CWR {
		bits |= 0b10000000
	}
	return bits
}

// SerializeTCP writes a 20-byte TCP header (data-offset=5, options
// zeroed) into buf, which must be at least 20 bytes. It does not
// compute the checksum; call TCPChecksum and set h.Checksum first, or
// use WriteSegment.
func SerializeTCP(h *TCPHeader, buf []byte) (int, error) {
	if len(buf) < TCPHeaderLen {
		return 0, ErrTruncated
	}
	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], h.SeqNum)
	binary.BigEndian.PutUint32(buf[8:12], h.AckNum)

	word := (uint16(5) << 12) | h.controlBits()
	binary.BigEndian.PutUint16(buf[12:14], word)
	binary.BigEndian.PutUint16(buf[14:16], h.Window)
	binary.BigEndian.PutUint16(buf[16:18], h.Checksum)
	binary.BigEndian.PutUint16(buf[18:20], h.UrgPtr)
	return TCPHeaderLen, nil
}

// TCPChecksum computes the RFC 793/1071 TCP checksum over the 12-byte
// IPv4 pseudo-header (srcIP, dstIP, zero, protocol=TCP, tcpLength),
// the 20-byte TCP header (with the checksum field itself treated as
// zero), and the payload (zero-padded to an even length). The header
// bytes passed in must already reflect the header to be transmitted,
// except for the checksum field.
func TCPChecksum(srcIP, dstIP net.IP, headerBytes []byte, payload []byte) uint16 {
	src4 := srcIP.To4()
	dst4 := dstIP.To4()
	tcpLength := len(headerBytes) + len(payload)

	var sum uint32
	sum += uint32(binary.BigEndian.Uint16(src4[0:2]))
	sum += uint32(binary.BigEndian.Uint16(src4[2:4]))
	sum += uint32(binary.BigEndian.Uint16(dst4[0:2]))
	sum += uint32(binary.BigEndian.Uint16(dst4[2:4]))
	sum += uint32(ProtocolTCP)
	sum += uint32(tcpLength)

	// Header bytes with the checksum field (offset 16:18) zeroed.
	sum += sumHeaderWithZeroChecksum(headerBytes)
	sum += sumBytes(payload)

	return foldCarries(sum)
}

func sumHeaderWithZeroChecksum(headerBytes []byte) uint32 {
	var sum uint32
	n := len(headerBytes)
	for i := 0; i+1 < n; i += 2 {
		if i == 16 { // checksum field
			continue
		}
		sum += uint32(binary.BigEndian.Uint16(headerBytes[i : i+2]))
	}
	return sum
}

// VerifyTCPChecksum sums the pseudo-header, the TCP header exactly as
// received (checksum field included, unmodified), and the payload; the
// segment is valid iff the folded sum is 0xFFFF.
func VerifyTCPChecksum(srcIP, dstIP net.IP, headerBytes []byte, payload []byte) bool {
	src4 := srcIP.To4()
	dst4 := dstIP.To4()
	tcpLength := len(headerBytes) + len(payload)

	var sum uint32
	sum += uint32(binary.BigEndian.Uint16(src4[0:2]))
	sum += uint32(binary.BigEndian.Uint16(src4[2:4]))
	sum += uint32(binary.BigEndian.Uint16(dst4[0:2]))
	sum += uint32(binary.BigEndian.Uint16(dst4[2:4]))
	sum += uint32(ProtocolTCP)
	sum += uint32(tcpLength)
	sum += sumBytes(headerBytes)
	sum += sumBytes(payload)

	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return sum == 0xFFFF
}
