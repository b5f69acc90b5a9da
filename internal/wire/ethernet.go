package wire

import "encoding/binary"

// EthernetHeaderLen is the size of an Ethernet II frame header.
const EthernetHeaderLen = 14

// EtherTypeIPv4 is the EtherType value for an IPv4 payload.
const EtherTypeIPv4 = 0x0800

// EthernetHeader is a 14-byte Ethernet II frame header. It is retained
// for tap-mode use; nothing in this module calls its codec, and the
// TUN ingress path in
// internal/tun never constructs or parses one, because a TUN device
// (without packet-info framing) delivers raw IPv4 datagrams directly.
type EthernetHeader struct {
	DstMAC    [6]byte
	SrcMAC    [6]byte
	EtherType uint16
}

// ParseEthernet decodes the 14-byte Ethernet header at the front of
// buf.
func ParseEthernet(buf []byte) (*EthernetHeader, error) {
	if len(buf) < EthernetHeaderLen {
		return nil, ErrTruncated
	}
	h := &EthernetHeader{
		EtherType: binary.BigEndian.Uint16(buf[12:14]),
	}
	copy(h.DstMAC[:], buf[0:6])
	copy(h.SrcMAC[:], buf[6:12])
	return h, nil
}

// SerializeEthernet writes a 14-byte Ethernet header into buf.
func SerializeEthernet(h *EthernetHeader, buf []byte) (int, error) {
	if len(buf) < EthernetHeaderLen {
		return 0, ErrTruncated
	}
	copy(buf[0:6], h.DstMAC[:])
	copy(buf[6:12], h.SrcMAC[:])
	binary.BigEndian.PutUint16(buf[12:14], h.EtherType)
	return EthernetHeaderLen, nil
}
