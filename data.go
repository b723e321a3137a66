package hyperftp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

var (
	// pasvRegex matches the PASV reply: 227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)
	pasvRegex = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

	// epsvRegex matches the EPSV reply: 229 Entering Extended Passive Mode (|||port|)
	epsvRegex = regexp.MustCompile(`\(\|\|\|(\d+)\|\)`)
)

// parsePASV parses a PASV reply and returns the data-channel address.
// Example: "227 Entering Passive Mode (192,168,1,1,195,149)"
// Returns: "192.168.1.1:50069" (195*256 + 149 = 50069)
func parsePASV(reply string) (string, error) {
	matches := pasvRegex.FindStringSubmatch(reply)
	if len(matches) != 7 {
		return "", fmt.Errorf("invalid PASV reply: %s", reply)
	}

	var h [4]int
	for i := 0; i < 4; i++ {
		val, err := strconv.Atoi(matches[i+1])
		if err != nil || val < 0 || val > 255 {
			return "", fmt.Errorf("invalid PASV IP part: %s", matches[i+1])
		}
		h[i] = val
	}
	host := fmt.Sprintf("%d.%d.%d.%d", h[0], h[1], h[2], h[3])
	if ip := net.ParseIP(host); ip == nil || ip.To4() == nil {
		return "", fmt.Errorf("invalid IPv4 address from PASV: %s", host)
	}

	p1, err1 := strconv.Atoi(matches[5])
	p2, err2 := strconv.Atoi(matches[6])
	if err1 != nil || err2 != nil || p1 < 0 || p1 > 255 || p2 < 0 || p2 > 255 {
		return "", fmt.Errorf("invalid PASV port parts: %s, %s", matches[5], matches[6])
	}
	port := p1*256 + p2

	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// parseEPSV parses an EPSV reply and returns the port.
// Example: "229 Entering Extended Passive Mode (|||6446|)"
func parseEPSV(reply string) (string, error) {
	matches := epsvRegex.FindStringSubmatch(reply)
	if len(matches) != 2 {
		return "", fmt.Errorf("invalid EPSV reply: %s", reply)
	}

	port, err := strconv.Atoi(matches[1])
	if err != nil || port < 0 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port: %s", matches[1])
	}

	return matches[1], nil
}

// formatPORT formats an address for the PORT command.
// Converts "192.168.1.100:50000" to "192,168,1,100,195,80"
func formatPORT(addr string) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("invalid IP address: %s", host)
	}
	ip = ip.To4()
	if ip == nil {
		return "", fmt.Errorf("PORT requires IPv4 address")
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid port: %s", portStr)
	}

	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3], port/256, port%256), nil
}

// formatEPRT formats an address for the EPRT command: |prt|addr|port|
// where prt is 1 for IPv4 and 2 for IPv6.
func formatEPRT(addr string) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("invalid IP address: %s", host)
	}

	var netPrt int
	switch {
	case ip.To4() != nil:
		netPrt = 1
	case ip.To16() != nil:
		netPrt = 2
	default:
		return "", fmt.Errorf("unknown IP address family: %s", host)
	}

	return fmt.Sprintf("|%d|%s|%s|", netPrt, host, portStr), nil
}

// resolveDataAddr substitutes the control-channel host when the server
// advertises 0.0.0.0 in its PASV reply.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}

	if host == "0.0.0.0" {
		return net.JoinHostPort(controlHost, port)
	}

	return pasvAddr
}

// openDataChannel opens a per-transfer data channel in the session's
// configured mode. Transient dial failures are retried once before the
// error surfaces as a *DataChannelError.
func (s *Session) openDataChannel() (net.Conn, error) {
	if !s.passiveMode() {
		conn, err := s.openActiveDataChannel()
		if err != nil {
			return nil, &DataChannelError{Mode: "active", Err: err}
		}
		return conn, nil
	}

	var conn net.Conn
	err := withRetry(s.logger, "passive data channel", func() error {
		var err error
		conn, err = s.openPassiveDataChannel()
		return err
	})
	if err != nil {
		return nil, &DataChannelError{Mode: "passive", Err: err}
	}
	return conn, nil
}

func (s *Session) passiveMode() bool {
	if s.forceActive {
		return false
	}
	return s.profile.PassiveMode
}

// openPassiveDataChannel negotiates a server-side port (EPSV first, PASV as
// fallback) and dials out to it.
func (s *Session) openPassiveDataChannel() (net.Conn, error) {
	var addr string

	if !s.disableEPSV {
		if reply, err := s.sendCommand("EPSV"); err == nil {
			if reply.Code == 502 { // Not implemented; stop asking
				s.disableEPSV = true
			} else if reply.Is2xx() {
				if port, parseErr := parseEPSV(reply.String()); parseErr == nil {
					addr = net.JoinHostPort(s.profile.Host, port)
				}
			}
		}
	}

	if addr == "" {
		reply, err := s.sendCommand("PASV")
		if err != nil {
			return nil, fmt.Errorf("PASV failed: %w", err)
		}

		if !reply.Is2xx() {
			return nil, &ProtocolError{
				Command:  "PASV",
				Response: reply.Message,
				Code:     reply.Code,
			}
		}

		addr, err = parsePASV(reply.String())
		if err != nil {
			return nil, err
		}

		addr = resolveDataAddr(addr, s.profile.Host)
	}

	dataConn, err := s.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data port: %w", err)
	}

	if s.secured() {
		tlsConn := tls.Client(dataConn, s.tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			dataConn.Close()
			return nil, &TLSError{Err: err}
		}
		dataConn = tlsConn
	}

	return withTimeout(dataConn, s.timeout), nil
}

// openActiveDataChannel opens a local listener and tells the server to
// connect back to it. The returned conn accepts the inbound connection
// lazily on first use, with a bounded wait.
func (s *Session) openActiveDataChannel() (net.Conn, error) {
	// Disconnect may tear the control channel down under a transfer worker,
	// so the conn is snapshotted under the lock like sendCommand does.
	s.mu.Lock()
	controlConn := s.conn
	s.mu.Unlock()
	if controlConn == nil {
		return nil, &ConnectError{Addr: s.profile.addr(), Err: errors.New("control channel closed")}
	}

	host, _, err := net.SplitHostPort(controlConn.LocalAddr().String())
	if err != nil {
		host = "127.0.0.1"
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		listener, err = net.Listen("tcp", ":0")
		if err != nil {
			return nil, fmt.Errorf("failed to create listener: %w", err)
		}
	}

	addr := listener.Addr().String()
	listenHost, _, err := net.SplitHostPort(addr)
	if err != nil {
		listener.Close()
		return nil, err
	}
	ip := net.ParseIP(listenHost)
	if ip == nil {
		listener.Close()
		return nil, fmt.Errorf("failed to parse local IP: %s", listenHost)
	}

	var reply *Reply
	var cmd string

	// PORT for IPv4 keeps legacy servers happy; IPv6 requires EPRT.
	if ip.To4() == nil {
		cmd = "EPRT"
		eprtArg, err2 := formatEPRT(addr)
		if err2 != nil {
			listener.Close()
			return nil, err2
		}
		reply, err = s.sendCommand("EPRT", eprtArg)
	} else {
		cmd = "PORT"
		portArg, err2 := formatPORT(addr)
		if err2 != nil {
			listener.Close()
			return nil, err2
		}
		reply, err = s.sendCommand("PORT", portArg)
	}

	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("%s failed: %w", cmd, err)
	}

	if !reply.Is2xx() {
		listener.Close()
		return nil, &ProtocolError{
			Command:  cmd,
			Response: reply.Message,
			Code:     reply.Code,
		}
	}

	// The server connects back only after the transfer command is sent,
	// so the accept is deferred to the first Read/Write.
	var dataTLS *tls.Config
	if s.secured() {
		dataTLS = s.tlsConfig
	}
	return &activeDataConn{
		listener:  listener,
		tlsConfig: dataTLS,
		timeout:   s.timeout,
	}, nil
}

// activeDataConn wraps a listener for active-mode channels. Disconnect may
// Close it while the transfer worker is blocked in Read or Write, so the
// mutex guards conn and listener; the blocking accept itself runs unlocked
// and is unblocked by closing the listener.
type activeDataConn struct {
	mu        sync.Mutex
	listener  net.Listener
	conn      net.Conn
	closed    bool
	tlsConfig *tls.Config
	timeout   time.Duration
}

// accept returns the inbound connection, accepting it on first use. Only the
// transfer worker calls it, through Read and Write.
func (a *activeDataConn) accept() (net.Conn, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, &DataChannelError{Mode: "active", Err: net.ErrClosed}
	}
	if a.conn != nil {
		c := a.conn
		a.mu.Unlock()
		return c, nil
	}
	l := a.listener
	a.mu.Unlock()

	if a.timeout > 0 {
		if tl, ok := l.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(a.timeout))
		}
	}
	c, err := l.Accept()
	if err != nil {
		return nil, &DataChannelError{Mode: "active", Err: err}
	}

	if a.tlsConfig != nil {
		tlsConn := tls.Client(c, a.tlsConfig)
		if a.timeout > 0 {
			_ = c.SetDeadline(time.Now().Add(a.timeout))
		}
		if err := tlsConn.Handshake(); err != nil {
			c.Close()
			return nil, &TLSError{Err: err}
		}
		c = tlsConn
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		c.Close()
		return nil, &DataChannelError{Mode: "active", Err: net.ErrClosed}
	}
	a.conn = c
	a.mu.Unlock()

	return c, nil
}

func (a *activeDataConn) Read(p []byte) (n int, err error) {
	c, err := a.accept()
	if err != nil {
		return 0, err
	}
	if a.timeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(a.timeout))
	}
	return c.Read(p)
}

func (a *activeDataConn) Write(p []byte) (n int, err error) {
	c, err := a.accept()
	if err != nil {
		return 0, err
	}
	if a.timeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(a.timeout))
	}
	return c.Write(p)
}

// Close is idempotent, safe to call from any goroutine, and reports every
// close failure. Closing the listener unblocks a pending accept.
func (a *activeDataConn) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var errs *multierror.Error
	if a.conn != nil {
		errs = multierror.Append(errs, a.conn.Close())
		a.conn = nil
	}
	errs = multierror.Append(errs, a.listener.Close())
	return errs.ErrorOrNil()
}

func (a *activeDataConn) LocalAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn.LocalAddr()
	}
	if a.closed {
		return nil
	}
	return a.listener.Addr()
}

func (a *activeDataConn) RemoteAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn.RemoteAddr()
	}
	return nil
}

func (a *activeDataConn) SetDeadline(t time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn.SetDeadline(t)
	}
	return nil
}

func (a *activeDataConn) SetReadDeadline(t time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn.SetReadDeadline(t)
	}
	return nil
}

func (a *activeDataConn) SetWriteDeadline(t time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn.SetWriteDeadline(t)
	}
	return nil
}

// cmdDataChannel opens a data channel and sends the transfer command that
// uses it. The caller owns the returned conn and must hand it back through
// finishDataChannel to read the completion reply.
func (s *Session) cmdDataChannel(cmd string, args ...string) (net.Conn, error) {
	dataConn, err := s.openDataChannel()
	if err != nil {
		return nil, err
	}

	s.registerDataConn(dataConn)

	reply, err := s.sendCommand(cmd, args...)
	if err != nil {
		dataConn.Close()
		s.registerDataConn(nil)
		return nil, err
	}

	// 1xx means the transfer is starting; 2xx means it already completed.
	if reply.Code >= 400 {
		dataConn.Close()
		s.registerDataConn(nil)
		return nil, &ProtocolError{
			Command:  cmd,
			Response: reply.Message,
			Code:     reply.Code,
		}
	}

	return dataConn, nil
}

// finishDataChannel closes the data channel and reads the completion reply
// (usually 226) from the control channel.
func (s *Session) finishDataChannel(dataConn net.Conn) error {
	closeErr := dataConn.Close()
	s.registerDataConn(nil)

	s.mu.Lock()
	conn, reader := s.conn, s.reader
	s.mu.Unlock()
	if conn == nil {
		if closeErr != nil {
			return closeErr
		}
		return &ConnectError{Addr: s.profile.addr(), Err: fmt.Errorf("control channel closed")}
	}

	if s.timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	reply, err := readReply(reader)
	if err != nil {
		return fmt.Errorf("failed to read completion reply: %w", err)
	}

	s.logger.Debug("ftp transfer complete", "code", reply.Code, "message", reply.Message)

	if closeErr != nil {
		return closeErr
	}

	if !reply.Is2xx() {
		return &ProtocolError{
			Command:  "transfer",
			Response: reply.Message,
			Code:     reply.Code,
		}
	}

	return nil
}

func (s *Session) registerDataConn(conn net.Conn) {
	s.mu.Lock()
	s.activeData = conn
	s.mu.Unlock()
}
