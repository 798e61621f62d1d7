package transport

import (
	"syscall"

	"github.com/iceber/iouring-go"
	"github.com/nczempin/httpc-conn/errors"
)

// UringTransport implements Transport over TCP or Unix domain sockets with
// io_uring submissions from iceber/iouring-go
type UringTransport struct {
	network string
	iour    *iouring.IOURing
	fd      int
}

// NewUringTransport creates a transport for network "tcp" or "unix"
func NewUringTransport(network string) (*UringTransport, error) {
	// Create io_uring instance with queue depth of 32
	iour, err := iouring.New(32)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &UringTransport{
		network: network,
		iour:    iour,
		fd:      -1,
	}, nil
}

// Connect establishes the connection. TCP connects are submitted to the
// ring; Unix sockets connect with a blocking call.
func (t *UringTransport) Connect(host string, port int) error {
	if t.fd >= 0 {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	fd, sa, err := socketFor(t.network, host, port)
	if err != nil {
		return err
	}

	if t.network == "unix" {
		if err := syscall.Connect(fd, sa); err != nil {
			syscall.Close(fd)
			return errors.NewTransportError(
				errors.TransportErrorSocketConnectFailure,
				"failed to connect to unix socket",
				err,
			)
		}
		t.fd = fd
		return nil
	}

	prep, err := iouring.Connect(fd, sa)
	if err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"failed to prepare connect",
			err,
		)
	}
	result, err := t.submit(prep)
	if err == nil {
		err = result.Err()
	}
	if err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"io_uring connect failed",
			err,
		)
	}

	t.fd = fd
	return nil
}

// submit queues one request and blocks on its completion channel
func (t *UringTransport) submit(req iouring.PrepRequest) (iouring.Result, error) {
	ch := make(chan iouring.Result, 1)
	if _, err := t.iour.SubmitRequest(req, ch); err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit request",
			err,
		)
	}
	return <-ch, nil
}

// transfer submits a read or write. Both resolve the completion into a byte
// count.
func (t *UringTransport) transfer(req iouring.PrepRequest, failure errors.TransportError) (int, error) {
	result, err := t.submit(req)
	if err != nil {
		return 0, err
	}
	n, err := result.ReturnInt()
	if err != nil {
		return 0, errors.NewTransportError(failure, "io_uring operation failed", err)
	}
	return n, nil
}

// Write sends all of buf
func (t *UringTransport) Write(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, notConnected(errors.TransportErrorSocketWriteFailure)
	}

	total := 0
	for total < len(buf) {
		n, err := t.transfer(iouring.Write(t.fd, buf[total:]), errors.TransportErrorSocketWriteFailure)
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
func (t *UringTransport) Read(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, notConnected(errors.TransportErrorSocketReadFailure)
	}

	n, err := t.transfer(iouring.Read(t.fd, buf), errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}
	if n == 0 && len(buf) > 0 {
		return 0, closedByPeer()
	}
	return n, nil
}

// Close closes the socket
func (t *UringTransport) Close() error {
	if t.fd < 0 {
		return nil
	}

	fd := t.fd
	t.fd = -1
	if err := syscall.Close(fd); err != nil {
		return errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"failed to close socket",
			err,
		)
	}
	return nil
}

// Destroy closes the socket and the io_uring instance
func (t *UringTransport) Destroy() {
	t.Close()
	if t.iour != nil {
		t.iour.Close()
		t.iour = nil
	}
}
