package transport

import (
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/nczempin/httpc-conn/errors"
)

// NetTransport implements Transport on net.Conn, optionally wrapped in TLS.
// It is the only transport that honors Options.Timeout and Options.TLS.
type NetTransport struct {
	opts Options
	conn net.Conn
}

// NewNetTransport creates an unconnected NetTransport
func NewNetTransport(opts Options) *NetTransport {
	return &NetTransport{opts: opts}
}

// Connect dials host:port, performing the TLS handshake when configured
func (t *NetTransport) Connect(host string, port int) error {
	if t.conn != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	addr := net.JoinHostPort(host, fmt.Sprint(port))
	dialer := &net.Dialer{Timeout: t.opts.Timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return classifyDialError(addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	if t.opts.TLS != nil {
		cfg := t.opts.TLS.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		tlsConn := tls.Client(conn, cfg)
		t.deadline(tlsConn)
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return errors.NewTransportError(
				errors.TransportErrorTLSHandshake,
				fmt.Sprintf("TLS handshake with %s failed", addr),
				err,
			)
		}
		conn = tlsConn
	}

	t.conn = conn
	return nil
}

func classifyDialError(addr string, err error) error {
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return errors.NewTransportError(
			errors.TransportErrorDnsFailure,
			fmt.Sprintf("failed to resolve %s", addr),
			err,
		)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewTransportError(
			errors.TransportErrorTimeout,
			fmt.Sprintf("timed out connecting to %s", addr),
			err,
		)
	}
	return errors.NewTransportError(
		errors.TransportErrorSocketConnectFailure,
		fmt.Sprintf("failed to connect to %s", addr),
		err,
	)
}

func (t *NetTransport) deadline(conn net.Conn) {
	if t.opts.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(t.opts.Timeout))
	}
}

// Write sends buf
func (t *NetTransport) Write(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, notConnected(errors.TransportErrorSocketWriteFailure)
	}

	t.deadline(t.conn)
	n, err := t.conn.Write(buf)
	if err != nil {
		if stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET) {
			return n, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed during write", err)
		}
		return n, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "write failed", err)
	}
	return n, nil
}

// Read receives at most len(buf) bytes
func (t *NetTransport) Read(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, notConnected(errors.TransportErrorSocketReadFailure)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	t.deadline(t.conn)
	n, err := t.conn.Read(buf)
	if n > 0 {
		return n, nil
	}
	if err == nil || stderrors.Is(err, io.EOF) {
		return 0, closedByPeer()
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return 0, errors.NewTransportError(errors.TransportErrorTimeout, "read timed out", err)
	}
	return 0, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "read failed", err)
}

// Close closes the connection
func (t *NetTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "failed to close connection", err)
	}
	return nil
}

// Destroy closes the connection
func (t *NetTransport) Destroy() {
	t.Close()
}
