// Package tuntcp is a user-space TCP/IPv4 stack that runs over a
// point-to-point TUN device instead of the kernel's own TCP
// implementation. Interface, Listener, and Stream are the only types
// an application needs; the state machine, wire codecs, and connection
// registry that back them live in internal/tcpstack.
package tuntcp

import (
	"net"

	"github.com/lirlia/tuntcp/internal/metrics"
	"github.com/lirlia/tuntcp/internal/tcpstack"
	"github.com/lirlia/tuntcp/internal/tun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Re-exported so callers never need to import internal/tcpstack
// directly (spec §6's Listener/Stream/error-taxonomy surface).
type (
	Listener = tcpstack.Listener
	Stream   = tcpstack.Stream
	Quad     = tcpstack.Quad
)

var (
	ErrAddrInUse         = tcpstack.ErrAddrInUse
	ErrWouldBlock        = tcpstack.ErrWouldBlock
	ErrConnectionAborted = tcpstack.ErrConnectionAborted
	ErrConnectionClosed  = tcpstack.ErrConnectionClosed
)

// Options configures Interface construction beyond the three
// positional arguments spec §6 names.
type Options struct {
	MTU      int
	Registry *prometheus.Registry
	Log      *logrus.Entry
}

// Interface owns one TUN device and the TCP connection manager running
// over it (spec §6 "Interface::new"). Close tears both down.
type Interface struct {
	dev *tun.Device
	mgr *tcpstack.Manager
	met *metrics.Collector
}

// New opens ifaceName as a point-to-point TUN device between localIP
// and remoteIP and starts the connection manager's ingress loop.
func New(ifaceName string, localIP, remoteIP net.IP, opts Options) (*Interface, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	dev, err := tun.New(tun.Config{
		Name:     ifaceName,
		LocalIP:  localIP,
		RemoteIP: remoteIP,
		MTU:      opts.MTU,
	}, log)
	if err != nil {
		return nil, err
	}

	var met *metrics.Collector
	if opts.Registry != nil {
		met = metrics.New(opts.Registry)
	}

	mgr := tcpstack.NewManager(dev, met, log)
	mgr.Start()

	return &Interface{dev: dev, mgr: mgr, met: met}, nil
}

// Bind creates a Listener for port, or ErrAddrInUse if one exists.
func (i *Interface) Bind(port uint16) (*Listener, error) {
	return i.mgr.Bind(port)
}

// Dial actively opens a connection to remoteIP:remotePort from
// localIP:localPort; the addresses are taken as given and are not
// checked against this interface's own addresses.
func (i *Interface) Dial(localIP, remoteIP net.IP, localPort, remotePort uint16) (*Stream, error) {
	var lip, rip [4]byte
	copy(lip[:], localIP.To4())
	copy(rip[:], remoteIP.To4())
	return i.mgr.Dial(lip, rip, localPort, remotePort)
}

// Name returns the underlying TUN interface's OS-assigned name.
func (i *Interface) Name() string { return i.dev.Name() }

// Close tears down the connection manager and the TUN device.
func (i *Interface) Close() error {
	return i.mgr.Close()
}
