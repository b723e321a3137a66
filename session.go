package hyperftp

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Phase is the lifecycle state of a Session.
type Phase int

const (
	// Disconnected is the initial phase and the phase after Disconnect.
	Disconnected Phase = iota

	// Connecting covers dialing, the TLS upgrade, and login.
	Connecting

	// Ready means the session is logged in and idle.
	Ready

	// Busy means an operation currently owns the control channel.
	Busy

	// Closing covers the QUIT exchange and teardown.
	Closing

	// Failed means an unrecoverable error ended the session. Only Reset
	// leaves this phase.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Busy:
		return "busy"
	case Closing:
		return "closing"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Dialer abstracts the TCP dial so tests and callers can substitute one.
// *net.Dialer satisfies it.
type Dialer interface {
	Dial(network, addr string) (net.Conn, error)
}

// Session is a client connection to one FTP server. A Session runs one
// operation at a time; concurrent operations against the same server need
// separate Sessions.
type Session struct {
	profile ConnectionProfile

	// mu serializes the control channel.
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	// activeData is the data channel of the in-flight transfer, if any,
	// closed on Disconnect to unblock the transfer worker.
	activeData net.Conn

	// stateMu guards the lifecycle fields below.
	stateMu   sync.Mutex
	phase     Phase
	currentOp string
	remoteDir string
	welcome   string
	features  map[string]string
	lastErr   error

	// Sequencing instrumentation: inFlight counts commands currently on
	// the wire, maxInFlight the highest value ever observed.
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	lastCommand time.Time

	logger           *slog.Logger
	dialer           Dialer
	tlsConfig        *tls.Config
	timeout          time.Duration
	idleTimeout      time.Duration
	forceActive      bool
	disableEPSV      bool
	chunkSize        int
	progressInterval time.Duration
	rateLimit        int64
	listingStyle     ListingStyle
	listingParser    ListingParser

	keepaliveStop chan struct{}
}

const (
	defaultTimeout   = 30 * time.Second
	defaultChunkSize = 32 * 1024
)

// NewSession creates a session for the given profile. The session does not
// touch the network until Connect.
func NewSession(profile ConnectionProfile, opts ...Option) (*Session, error) {
	s := &Session{
		profile:          profile,
		phase:            Disconnected,
		logger:           slog.New(discardHandler{}),
		timeout:          defaultTimeout,
		chunkSize:        defaultChunkSize,
		progressInterval: 100 * time.Millisecond,
		listingStyle:     StyleAuto,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.dialer == nil {
		s.dialer = &net.Dialer{Timeout: s.timeout}
	}
	if s.listingParser == nil {
		s.listingParser = parserForStyle(s.listingStyle)
	}

	return s, nil
}

// Profile returns a copy of the session's connection profile.
func (s *Session) Profile() ConnectionProfile { return s.profile }

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.phase
}

// RemoteDir returns the working directory tracked from CWD/PWD exchanges.
func (s *Session) RemoteDir() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.remoteDir
}

// Welcome returns the server greeting captured during Connect.
func (s *Session) Welcome() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.welcome
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastErr
}

// supports reports whether FEAT advertised the given feature.
func (s *Session) supports(name string) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	_, ok := s.features[name]
	return ok
}

func (s *Session) secured() bool { return s.profile.Secure }

// Connect dials the server, performs the optional TLS upgrade, logs in, and
// switches to binary mode. It is valid only in the Disconnected phase.
func (s *Session) Connect() error {
	s.stateMu.Lock()
	if s.phase != Disconnected {
		phase := s.phase
		s.stateMu.Unlock()
		return &StateError{Op: "connect", Phase: phase}
	}
	s.phase = Connecting
	s.stateMu.Unlock()

	if err := s.connect(); err != nil {
		s.fail(err)
		return err
	}

	s.stateMu.Lock()
	s.phase = Ready
	s.stateMu.Unlock()

	s.startKeepalive()

	return nil
}

func (s *Session) connect() error {
	addr := s.profile.addr()

	var conn net.Conn
	err := withRetry(s.logger, "connect", func() error {
		var err error
		conn, err = s.dialer.Dial("tcp", addr)
		return err
	})
	if err != nil {
		return &ConnectError{Addr: addr, Err: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.mu.Unlock()

	s.logger.Info("connected", "addr", addr, "secure", s.profile.Secure)

	greeting, err := s.readGreeting()
	if err != nil {
		return err
	}

	if s.profile.Secure {
		if err := s.upgradeTLS(); err != nil {
			return err
		}
	}

	if err := s.login(); err != nil {
		return err
	}

	if s.profile.Secure {
		if err := s.protectDataChannels(); err != nil {
			return err
		}
	}

	if _, err := s.expect2xx("TYPE", "I"); err != nil {
		return fmt.Errorf("failed to set binary mode: %w", err)
	}

	s.readFeatures()

	dir, err := s.pwd()
	if err != nil {
		// Some minimal servers reject PWD; the session is still usable.
		s.logger.Debug("initial PWD failed", "error", err)
		dir = "/"
	}

	s.stateMu.Lock()
	s.welcome = greeting
	s.remoteDir = dir
	s.stateMu.Unlock()

	return nil
}

// readGreeting consumes the 220 banner the server sends on accept.
func (s *Session) readGreeting() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return "", fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	reply, err := readReply(s.reader)
	if err != nil {
		return "", fmt.Errorf("failed to read greeting: %w", err)
	}

	if reply.Code != 220 {
		return "", &ProtocolError{
			Command:  "greeting",
			Response: reply.Message,
			Code:     reply.Code,
		}
	}

	s.logger.Debug("server greeting", "message", reply.Message)

	return reply.Message, nil
}

// upgradeTLS performs the explicit FTPS upgrade: AUTH TLS, then a TLS
// handshake over the existing control connection.
func (s *Session) upgradeTLS() error {
	reply, err := s.sendCommand("AUTH", "TLS")
	if err != nil {
		return &TLSError{Err: err}
	}
	if reply.Code != 234 {
		return &TLSError{Err: &ProtocolError{
			Command:  "AUTH TLS",
			Response: reply.Message,
			Code:     reply.Code,
		}}
	}

	if s.tlsConfig == nil {
		s.tlsConfig = &tls.Config{ServerName: s.profile.Host}
	} else if s.tlsConfig.ServerName == "" && !s.tlsConfig.InsecureSkipVerify {
		cfg := s.tlsConfig.Clone()
		cfg.ServerName = s.profile.Host
		s.tlsConfig = cfg
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tlsConn := tls.Client(s.conn, s.tlsConfig)
	if s.timeout > 0 {
		_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	}
	if err := tlsConn.Handshake(); err != nil {
		return &TLSError{Err: err}
	}
	_ = tlsConn.SetDeadline(time.Time{})

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)

	s.logger.Info("control channel upgraded to TLS")

	return nil
}

// protectDataChannels negotiates PBSZ 0 and PROT P so data channels inherit
// the TLS protection.
func (s *Session) protectDataChannels() error {
	if _, err := s.expect2xx("PBSZ", "0"); err != nil {
		return &TLSError{Err: err}
	}
	if _, err := s.expect2xx("PROT", "P"); err != nil {
		return &TLSError{Err: err}
	}
	return nil
}

func (s *Session) login() error {
	user, pass := s.profile.credentials()

	reply, err := s.sendCommand("USER", user)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	switch {
	case reply.Is2xx():
		// Logged in without a password.
		return nil
	case reply.Code == 331:
		// Password required.
	default:
		return &ProtocolError{
			Command:  "USER",
			Response: reply.Message,
			Code:     reply.Code,
		}
	}

	if _, err := s.expectCode(230, "PASS", pass); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	s.logger.Info("logged in", "user", user)

	return nil
}

// readFeatures issues FEAT and records the advertised extensions. Servers
// without FEAT are fine; the map stays empty.
func (s *Session) readFeatures() {
	reply, err := s.sendCommand("FEAT")
	if err != nil || !reply.Is2xx() {
		return
	}

	features := make(map[string]string)
	for _, line := range reply.Lines {
		if len(line) == 0 || line[0] != ' ' {
			continue
		}
		entry := strings.TrimSpace(line)
		name, params, _ := strings.Cut(entry, " ")
		features[strings.ToUpper(name)] = params
	}

	s.stateMu.Lock()
	s.features = features
	s.stateMu.Unlock()
}

// pwd asks the server for the working directory and strips the quoting.
// Reply form: 257 "/some/dir" is the current directory
func (s *Session) pwd() (string, error) {
	reply, err := s.expectCode(257, "PWD")
	if err != nil {
		return "", err
	}

	msg := reply.Message
	start := strings.Index(msg, `"`)
	end := strings.LastIndex(msg, `"`)
	if start == -1 || end <= start {
		return "", fmt.Errorf("cannot parse PWD reply: %q", msg)
	}

	// Embedded quotes are doubled per RFC 959.
	return strings.ReplaceAll(msg[start+1:end], `""`, `"`), nil
}

// beginOp transitions Ready to Busy on behalf of a named operation. Any
// other phase is rejected with a StateError.
func (s *Session) beginOp(op string) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.phase != Ready {
		return &StateError{Op: op, Phase: s.phase}
	}

	s.phase = Busy
	s.currentOp = op
	return nil
}

// endOp returns the session to Ready unless a failure or teardown moved it
// elsewhere in the meantime.
func (s *Session) endOp() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.phase == Busy {
		s.phase = Ready
		s.currentOp = ""
	}
}

// fail moves the session to Failed and tears down the connection. The
// session stays in Failed until Reset. Failures reported during or after
// teardown do not change the phase.
func (s *Session) fail(err error) {
	s.stateMu.Lock()
	switch s.phase {
	case Disconnected, Closing, Failed:
		s.stateMu.Unlock()
		s.logger.Debug("late failure ignored", "phase", "terminal", "error", err)
		return
	}
	s.phase = Failed
	s.currentOp = ""
	s.lastErr = err
	s.stateMu.Unlock()

	s.stopKeepalive()
	s.teardown()

	s.logger.Error("session failed", "error", err)
}

// failIfFatal moves the session to Failed only for errors that invalidate
// the control channel. Protocol negatives leave the session usable.
func (s *Session) failIfFatal(err error) {
	if err == nil {
		return
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return
	}
	if errors.Is(err, ErrCancelled) {
		return
	}
	var de *DataChannelError
	if errors.As(err, &de) {
		return
	}
	var ie *IOError
	if errors.As(err, &ie) {
		return
	}
	s.fail(err)
}

// teardown closes the control and any data connection without a QUIT
// exchange.
func (s *Session) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeData != nil {
		s.activeData.Close()
		s.activeData = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.reader = nil
	}
}

// Disconnect sends QUIT and closes the connection. It is idempotent: extra
// calls after the session is down return nil. An in-flight transfer is
// aborted by closing its data channel.
func (s *Session) Disconnect() error {
	s.stateMu.Lock()
	switch s.phase {
	case Disconnected, Closing:
		s.stateMu.Unlock()
		return nil
	case Failed:
		// Already torn down; only Reset leaves Failed.
		s.stateMu.Unlock()
		return nil
	}
	busy := s.phase == Busy
	s.phase = Closing
	s.currentOp = ""
	s.stateMu.Unlock()

	s.stopKeepalive()

	var errs *multierror.Error

	// Closing the data channel unblocks a transfer worker mid-copy.
	s.mu.Lock()
	if s.activeData != nil {
		errs = multierror.Append(errs, s.activeData.Close())
		s.activeData = nil
	}
	conn := s.conn
	reader := s.reader
	s.conn = nil
	s.reader = nil
	s.mu.Unlock()

	if conn != nil {
		// The QUIT exchange is skipped while an operation is in flight:
		// its worker may still own the control reader, and two readers on
		// one reply stream interleave bytes. Closing the connection is
		// what unblocks the worker.
		if !busy {
			// Best-effort QUIT with a short deadline so a wedged server
			// cannot stall teardown.
			_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
			if _, err := fmt.Fprintf(conn, "QUIT\r\n"); err == nil {
				if reply, err := readReply(reader); err == nil {
					s.logger.Debug("ftp reply", "code", reply.Code, "message", reply.Message)
				}
			}
		}
		errs = multierror.Append(errs, conn.Close())
	}

	s.stateMu.Lock()
	s.phase = Disconnected
	s.remoteDir = ""
	s.welcome = ""
	s.features = nil
	s.stateMu.Unlock()

	s.logger.Info("disconnected", "addr", s.profile.addr())

	return errs.ErrorOrNil()
}

// Reset clears the Failed phase so the session can Connect again. It is a
// no-op in any other phase.
func (s *Session) Reset() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.phase != Failed {
		return
	}

	s.phase = Disconnected
	s.currentOp = ""
	s.remoteDir = ""
	s.welcome = ""
	s.features = nil
	s.lastErr = nil
}

// discardHandler is the default slog handler: it drops everything.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
