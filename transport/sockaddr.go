package transport

import (
	"fmt"
	"net"
	"syscall"

	"github.com/nczempin/httpc-conn/errors"
)

// socketFor creates a blocking stream socket and the address to connect it
// to. network is "tcp" or "unix".
func socketFor(network, host string, port int) (int, syscall.Sockaddr, error) {
	if network == "unix" {
		fd, err := syscall.Socket(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
		if err != nil {
			return -1, nil, errors.NewTransportError(
				errors.TransportErrorSocketCreateFailure,
				"failed to create socket",
				err,
			)
		}
		return fd, &syscall.SockaddrUnix{Name: host}, nil
	}

	addr := net.JoinHostPort(host, fmt.Sprint(port))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, errors.NewTransportError(
			errors.TransportErrorDnsFailure,
			fmt.Sprintf("failed to resolve %s", addr),
			err,
		)
	}

	family := syscall.AF_INET
	var sa syscall.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa4 := &syscall.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		family = syscall.AF_INET6
		sa6 := &syscall.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], tcpAddr.IP.To16())
		sa = sa6
	}

	fd, err := syscall.Socket(family, syscall.SOCK_STREAM, 0)
	if err != nil {
		return -1, nil, errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to create socket",
			err,
		)
	}

	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
		syscall.Close(fd)
		return -1, nil, errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set TCP_NODELAY",
			err,
		)
	}

	return fd, sa, nil
}

func notConnected(op errors.TransportError) error {
	return errors.NewTransportError(op, "not connected", nil)
}

func closedByPeer() error {
	return errors.NewTransportError(
		errors.TransportErrorConnectionClosed,
		"connection closed by peer",
		nil,
	)
}
