package tcpstack

// State is one of the ten RFC 793 connection states plus CLOSED.
type State int

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN-SENT"
	case StateSynReceived:
		return "SYN-RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN-WAIT-1"
	case StateFinWait2:
		return "FIN-WAIT-2"
	case StateCloseWait:
		return "CLOSE-WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST-ACK"
	case StateTimeWait:
		return "TIME-WAIT"
	default:
		return "UNKNOWN"
	}
}

// sendSpace is the per-connection send sequence space (spec §3).
type sendSpace struct {
	iss uint32
	una uint32
	nxt uint32
	wnd uint16
	up  bool
	wl1 uint32
	wl2 uint32
}

// recvSpace is the per-connection receive sequence space (spec §3).
type recvSpace struct {
	irs uint32
	nxt uint32
	wnd uint16
	up  bool
}

// DefaultWindow is the fixed receive window this teaching-grade stack
// advertises; a production implementation would grow it with free
// incoming buffer space up to BufferLimit.
const DefaultWindow = 4096
