package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// ConnectionError reports that the host could not be reached or dropped the
// connection: name resolution failed, the connection could not be established
// or was reset, or a read timed out.
// The request is kept so the caller can log it or try again.
type ConnectionError struct {
	Request *Request
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Request.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DecodeError reports that a response arrived but could not be framed into
// status, headers and body.
type DecodeError struct {
	Request *Request
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s%s: %v", e.Request.Host, e.Request.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// isConnectionFailure reports whether err comes from the network layer rather
// than from a malformed response.
func isConnectionFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial", "read", "write":
			return true
		}
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case isConnectionFailure(err):
		return "connect"
	default:
		return "decode"
	}
}
