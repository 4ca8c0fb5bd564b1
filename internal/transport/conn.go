package transport

import (
	"context"
	"io"
	"net"
	"time"
)

// maxEmptyReads is how many consecutive reads returning no data end a body.
const maxEmptyReads = 3

// idleTimeoutConn pushes the read deadline forward before every read, so a
// stalled body fails after the idle timeout while a slow but steady one does not.
type idleTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleTimeoutConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

// dialer returns a DialContext that applies the connect timeout to connection
// setup and the read timeout to every read afterwards.
func dialer(connectTimeout, readTimeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &idleTimeoutConn{Conn: conn, timeout: readTimeout}, nil
	}
}

// emptyReadLimiter treats more than maxEmptyReads consecutive empty reads as end of stream.
type emptyReadLimiter struct {
	r     io.Reader
	empty int
}

func (l *emptyReadLimiter) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if n > 0 {
		l.empty = 0
		return n, err
	}
	if err != nil {
		return 0, err
	}

	l.empty++
	if l.empty > maxEmptyReads {
		return 0, io.EOF
	}
	return 0, nil
}
