package tcpstack

// Device is the minimal surface the connection manager needs from a
// TUN adapter (spec §6). internal/tun provides a real
// github.com/songgao/water-backed implementation and an in-memory
// loopback pair for tests; both satisfy this interface structurally.
type Device interface {
	// ReadPacket blocks until one IPv4 datagram is available, or
	// returns ok=false once the device has been closed.
	ReadPacket() ([]byte, bool)
	// WritePacket submits one IPv4 datagram.
	WritePacket(packet []byte) (int, error)
	Close() error
	Name() string
}
