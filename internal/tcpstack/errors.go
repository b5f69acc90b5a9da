package tcpstack

import "errors"

var (
	// ErrAddrInUse is returned by Interface.Bind when the requested port
	// already has a listener.
	ErrAddrInUse = errors.New("tcpstack: address already in use")
	// ErrWouldBlock names the "no data or buffer space available" result
	// of a non-blocking operation. No operation in this package returns
	// it: Accept, Read, Write and Flush all block.
	ErrWouldBlock = errors.New("tcpstack: operation would block")
	// ErrConnectionAborted is returned to a blocked reader/writer when
	// the connection is reset or the Interface is torn down.
	ErrConnectionAborted = errors.New("tcpstack: connection aborted")
	// ErrConnectionClosed is returned by Write once the local side has
	// already sent its FIN. Close does not return it; a repeated Close
	// is a no-op.
	ErrConnectionClosed = errors.New("tcpstack: connection closed")
)
