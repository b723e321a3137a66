package hyperftp

import (
	"net"
	"time"
)

// withTimeout wraps a data-channel conn so every Read and Write arms a fresh
// deadline first, bounding how long a stalled transfer can block. A zero
// timeout returns the conn unchanged.
func withTimeout(c net.Conn, timeout time.Duration) net.Conn {
	if timeout <= 0 {
		return c
	}
	return &timedConn{Conn: c, timeout: timeout}
}

type timedConn struct {
	net.Conn
	timeout time.Duration
}

func (c *timedConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *timedConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
