package transport

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/nczempin/httpc-conn/errors"
)

// Transport defines the interface for network transports
type Transport interface {
	// Connect establishes a connection to the specified host and port.
	// Unix socket transports take the socket path as host.
	Connect(host string, port int) error

	// Write sends data over the connection
	// Returns the number of bytes written
	Write(buf []byte) (int, error)

	// Read receives data from the connection
	// Returns the number of bytes read
	Read(buf []byte) (int, error)

	// Close closes the connection. The transport may be connected again.
	Close() error

	// Destroy closes the connection and releases everything else the
	// transport holds.
	Destroy()
}

// Kind names a transport implementation
type Kind string

const (
	KindUring   Kind = "uring"
	KindUringV2 Kind = "uring-v2"
	KindUnix    Kind = "unix"
	KindNet     Kind = "net"
)

// Options configures transports built by New
type Options struct {
	// Timeout bounds connect and each read or write on the net transport.
	Timeout time.Duration
	// TLS enables TLS on the net transport when non-nil.
	TLS *tls.Config
}

// New builds a transport of the given kind. The empty kind selects KindUring.
func New(kind Kind, opts Options) (Transport, error) {
	switch kind {
	case KindUring, "":
		return NewUringTransport("tcp")
	case KindUringV2:
		return NewRingTransport()
	case KindUnix:
		return NewUringTransport("unix")
	case KindNet:
		return NewNetTransport(opts), nil
	default:
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unknown transport %q", kind))
	}
}
