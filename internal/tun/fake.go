package tun

import "fmt"

// loopback is an in-memory tcpstack.Device: writes on one end arrive as
// reads on the other. It exists for tests that want two interacting
// stacks without root privileges or a real kernel interface (spec §4.6
// "Testing without a kernel").
type loopback struct {
	name string
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
}

// NewLoopbackPair returns two Devices wired back-to-back: packets
// written to a arrive as reads from b, and vice versa.
func NewLoopbackPair() (a, b *loopback) {
	abuf := make(chan []byte, 256)
	bbuf := make(chan []byte, 256)
	done := make(chan struct{})
	a = &loopback{name: "loop0", in: bbuf, out: abuf, done: done}
	b = &loopback{name: "loop1", in: abuf, out: bbuf, done: done}
	return a, b
}

func (l *loopback) ReadPacket() ([]byte, bool) {
	select {
	case pkt, ok := <-l.in:
		return pkt, ok
	case <-l.done:
		return nil, false
	}
}

func (l *loopback) WritePacket(packet []byte) (int, error) {
	select {
	case <-l.done:
		return 0, fmt.Errorf("tun: loopback %s closed", l.name)
	default:
	}
	cp := make([]byte, len(packet))
	copy(cp, packet)
	select {
	case l.out <- cp:
		return len(packet), nil
	case <-l.done:
		return 0, fmt.Errorf("tun: loopback %s closed", l.name)
	}
}

func (l *loopback) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}

func (l *loopback) Name() string { return l.name }
