package transport

import (
	"os"
	"syscall"

	"github.com/godzie44/go-uring/uring"
	"github.com/nczempin/httpc-conn/errors"
)

// RingTransport implements Transport over TCP with godzie44/go-uring. The
// connect is blocking; reads and writes go through the ring.
type RingTransport struct {
	ring *uring.Ring
	file *os.File
}

// NewRingTransport creates a transport with its own ring
func NewRingTransport() (*RingTransport, error) {
	// Create io_uring instance with queue depth of 32
	ring, err := uring.New(32)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}
	return &RingTransport{ring: ring}, nil
}

// Connect establishes a TCP connection
func (t *RingTransport) Connect(host string, port int) error {
	if t.file != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	fd, sa, err := socketFor("tcp", host, port)
	if err != nil {
		return err
	}

	if err := syscall.Connect(fd, sa); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"failed to connect",
			err,
		)
	}

	t.file = os.NewFile(uintptr(fd), "socket")
	return nil
}

// complete submits the queued entry and waits for its completion
func (t *RingTransport) complete(failure errors.TransportError) (int, error) {
	if _, err := t.ring.Submit(); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit request",
			err,
		)
	}

	cqe, err := t.ring.WaitCQEvents(1)
	if err != nil {
		return 0, errors.NewTransportError(failure, "failed to wait for completion", err)
	}
	defer t.ring.SeenCQE(cqe)

	if err := cqe.Error(); err != nil {
		return 0, errors.NewTransportError(failure, "io_uring operation failed", err)
	}
	return int(cqe.Res), nil
}

func (t *RingTransport) queued(err error) error {
	return errors.NewTransportError(
		errors.TransportErrorIoUringSubmit,
		"failed to queue request",
		err,
	)
}

// Write sends all of buf
func (t *RingTransport) Write(buf []byte) (int, error) {
	if t.file == nil {
		return 0, notConnected(errors.TransportErrorSocketWriteFailure)
	}

	total := 0
	for total < len(buf) {
		if err := t.ring.QueueSQE(uring.Write(t.file.Fd(), buf[total:], 0), 0, 0); err != nil {
			return total, t.queued(err)
		}
		n, err := t.complete(errors.TransportErrorSocketWriteFailure)
		if err != nil {
			return total, err
		}
		if n <= 0 {
			return total, closedByPeer()
		}
		total += n
	}
	return total, nil
}

// Read receives at most len(buf) bytes
func (t *RingTransport) Read(buf []byte) (int, error) {
	if t.file == nil {
		return 0, notConnected(errors.TransportErrorSocketReadFailure)
	}

	if err := t.ring.QueueSQE(uring.Read(t.file.Fd(), buf, 0), 0, 0); err != nil {
		return 0, t.queued(err)
	}
	n, err := t.complete(errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}
	if n == 0 && len(buf) > 0 {
		return 0, closedByPeer()
	}
	return n, nil
}

// Close closes the socket
func (t *RingTransport) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"failed to close socket",
			err,
		)
	}
	return nil
}

// Destroy closes the socket and the ring
func (t *RingTransport) Destroy() {
	t.Close()
	if t.ring != nil {
		t.ring.Close()
		t.ring = nil
	}
}
