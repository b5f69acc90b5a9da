// Package tun wraps a host TUN interface (via github.com/songgao/water)
// behind the tcpstack.Device interface: a blocking ReadPacket/WritePacket
// pair over whole IPv4 datagrams. The point-to-point addressing model
// (local/remote IP, no netmask) matches spec §2/§6 rather than the
// CIDR-subnet model a router interface would use.
package tun

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/songgao/water"
)

// DefaultMTU is used when Config.MTU is zero.
const DefaultMTU = 1500

// Config describes how to create and address a TUN interface.
type Config struct {
	// Name requests a specific interface name (e.g. "tun0"); empty lets
	// the OS/driver pick one.
	Name string
	// LocalIP and RemoteIP are the point-to-point endpoint addresses
	// assigned to the interface (spec §2/§6 Interface::new).
	LocalIP  net.IP
	RemoteIP net.IP
	MTU      int
}

// Device is a real, OS-backed TUN interface.
type Device struct {
	name     string
	localIP  net.IP
	remoteIP net.IP
	mtu      int

	ifce     *water.Interface
	stopCh   chan struct{}
	packetCh chan []byte

	log *logrus.Entry
}

// New creates and configures a TUN interface per cfg, bringing it up as
// a point-to-point link between LocalIP and RemoteIP. It starts a
// background goroutine copying device reads into an internal channel,
// the same pattern the teacher's router interface used, so
// ReadPacket can be a simple blocking channel receive.
func New(cfg Config, log *logrus.Entry) (*Device, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	mtu := cfg.MTU
	if mtu <= 0 {
		mtu = DefaultMTU
	}

	waterCfg := water.Config{DeviceType: water.TUN}
	if cfg.Name != "" {
		waterCfg.Name = cfg.Name
	}

	ifce, err := water.New(waterCfg)
	if err != nil {
		return nil, fmt.Errorf("tun: create interface %q: %w", cfg.Name, err)
	}
	name := ifce.Name()
	log = log.WithField("iface", name)
	log.Info("tun interface created")

	if err := configureLink(name, cfg.LocalIP, cfg.RemoteIP, mtu); err != nil {
		_ = ifce.Close()
		return nil, err
	}
	log.WithFields(logrus.Fields{"local": cfg.LocalIP, "remote": cfg.RemoteIP, "mtu": mtu}).Info("tun interface configured")

	dev := &Device{
		name:     name,
		localIP:  cfg.LocalIP,
		remoteIP: cfg.RemoteIP,
		mtu:      mtu,
		ifce:     ifce,
		stopCh:   make(chan struct{}),
		packetCh: make(chan []byte, 256),
		log:      log,
	}
	go dev.readLoop()
	return dev, nil
}

func configureLink(name string, local, remote net.IP, mtu int) error {
	switch runtime.GOOS {
	case "linux":
		return runAll(
			exec.Command("ip", "addr", "add", fmt.Sprintf("%s/32", local.String()), "peer", remote.String(), "dev", name),
			exec.Command("ip", "link", "set", "dev", name, "mtu", fmt.Sprintf("%d", mtu)),
			exec.Command("ip", "link", "set", "dev", name, "up"),
		)
	case "darwin":
		return runAll(
			exec.Command("ifconfig", name, "inet", local.String(), remote.String(), "mtu", fmt.Sprintf("%d", mtu), "up"),
		)
	default:
		return fmt.Errorf("tun: unsupported OS %s", runtime.GOOS)
	}
}

func runAll(cmds ...*exec.Cmd) error {
	for _, cmd := range cmds {
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("tun: %s: %w: %s", cmd.String(), err, out)
		}
	}
	return nil
}

func (d *Device) readLoop() {
	buf := make([]byte, d.mtu+64)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		n, err := d.ifce.Read(buf)
		if err != nil {
			if d.isClosed() {
				return
			}
			d.log.WithError(err).Warn("tun read error")
			continue
		}
		if n == 0 {
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		select {
		case d.packetCh <- pkt:
		case <-d.stopCh:
			return
		default:
			d.log.Warn("tun ingress buffer full, dropping datagram")
		}
	}
}

// ReadPacket blocks for the next IPv4 datagram, or returns ok=false once
// Close has been called.
func (d *Device) ReadPacket() ([]byte, bool) {
	select {
	case pkt, ok := <-d.packetCh:
		return pkt, ok
	case <-d.stopCh:
		return nil, false
	}
}

// WritePacket submits one IPv4 datagram to the interface.
func (d *Device) WritePacket(packet []byte) (int, error) {
	if d.isClosed() {
		return 0, fmt.Errorf("tun: device %s closed", d.name)
	}
	n, err := d.ifce.Write(packet)
	if err != nil {
		return 0, fmt.Errorf("tun: write %s: %w", d.name, err)
	}
	return n, nil
}

// Close tears the interface down and stops the read goroutine.
func (d *Device) Close() error {
	if d.isClosed() {
		return nil
	}
	close(d.stopCh)
	err := d.ifce.Close()
	d.log.Info("tun interface closed")
	return err
}

func (d *Device) isClosed() bool {
	select {
	case <-d.stopCh:
		return true
	default:
		return false
	}
}

// Name returns the OS-assigned interface name.
func (d *Device) Name() string { return d.name }
