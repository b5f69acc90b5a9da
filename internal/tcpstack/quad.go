package tcpstack

import (
	"net"
	"strconv"
)

// Quad is the 4-tuple that uniquely identifies a TCP connection:
// local and remote (address, port) pairs, relative to this endpoint.
type Quad struct {
	LocalIP    [4]byte
	LocalPort  uint16
	RemoteIP   [4]byte
	RemotePort uint16
}

func ipToArray(ip net.IP) [4]byte {
	v4 := ip.To4()
	var a [4]byte
	copy(a[:], v4)
	return a
}

func (q Quad) localNetIP() net.IP  { return net.IPv4(q.LocalIP[0], q.LocalIP[1], q.LocalIP[2], q.LocalIP[3]) }
func (q Quad) remoteNetIP() net.IP {
	return net.IPv4(q.RemoteIP[0], q.RemoteIP[1], q.RemoteIP[2], q.RemoteIP[3])
}

// String renders the quad as "local:port<->remote:port" for logging.
func (q Quad) String() string {
	return q.localNetIP().String() + ":" + strconv.Itoa(int(q.LocalPort)) +
		"<->" + q.remoteNetIP().String() + ":" + strconv.Itoa(int(q.RemotePort))
}
