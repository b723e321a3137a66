package hyperftp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Reply represents a server reply on the control channel.
type Reply struct {
	// Code is the three-digit reply code (e.g., 220, 550)
	Code int

	// Message is the human-readable text of the reply
	Message string

	// Lines contains all raw lines of the reply (for multi-line replies)
	Lines []string
}

// ReplyClass is the first-digit taxonomy of reply codes.
type ReplyClass int

const (
	ClassUnknown ReplyClass = iota
	ClassPositivePreliminary
	ClassPositiveCompletion
	ClassPositiveIntermediate
	ClassTransientNegative
	ClassPermanentNegative
)

func (c ReplyClass) String() string {
	switch c {
	case ClassPositivePreliminary:
		return "positive-preliminary"
	case ClassPositiveCompletion:
		return "positive-completion"
	case ClassPositiveIntermediate:
		return "positive-intermediate"
	case ClassTransientNegative:
		return "transient-negative"
	case ClassPermanentNegative:
		return "permanent-negative"
	}
	return "unknown"
}

// Class classifies the reply by its leading digit.
func (r *Reply) Class() ReplyClass {
	switch r.Code / 100 {
	case 1:
		return ClassPositivePreliminary
	case 2:
		return ClassPositiveCompletion
	case 3:
		return ClassPositiveIntermediate
	case 4:
		return ClassTransientNegative
	case 5:
		return ClassPermanentNegative
	}
	return ClassUnknown
}

// Is2xx reports whether the reply code is in the 2xx range (success).
func (r *Reply) Is2xx() bool { return r.Code >= 200 && r.Code < 300 }

// Is3xx reports whether the reply code is in the 3xx range (intermediate).
func (r *Reply) Is3xx() bool { return r.Code >= 300 && r.Code < 400 }

// Is4xx reports whether the reply code is in the 4xx range (temporary failure).
func (r *Reply) Is4xx() bool { return r.Code >= 400 && r.Code < 500 }

// Is5xx reports whether the reply code is in the 5xx range (permanent failure).
func (r *Reply) Is5xx() bool { return r.Code >= 500 && r.Code < 600 }

// String returns the full reply as a string.
func (r *Reply) String() string {
	return strings.Join(r.Lines, "\n")
}

// readReply reads a complete reply from the control channel.
// It handles both single-line and multi-line forms.
//
// Single-line: "220 Welcome\r\n"
// Multi-line:
//
//	"220-Welcome to FTP\r\n"
//	"220-This is line 2\r\n"
//	"220 Ready\r\n"
//
// A multi-line reply ends at the line starting with the same code followed
// by a space.
func readReply(r *bufio.Reader) (*Reply, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}

	line = strings.TrimRight(line, "\r\n")
	if len(line) < 4 {
		return nil, fmt.Errorf("invalid reply line: %q", line)
	}

	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return nil, fmt.Errorf("invalid reply code: %q", line[0:3])
		}
	}
	code, err := strconv.Atoi(line[0:3])
	if err != nil {
		return nil, fmt.Errorf("invalid reply code: %q", line[0:3])
	}

	lines := []string{line}

	// Common single-line case
	if line[3] == ' ' {
		return &Reply{
			Code:    code,
			Message: line[4:],
			Lines:   lines,
		}, nil
	}

	if line[3] != '-' {
		return nil, fmt.Errorf("invalid reply format: %q", line)
	}

	if err := readMultiLine(r, code, &lines); err != nil {
		return nil, err
	}

	var messageLines []string
	for _, l := range lines {
		if len(l) > 4 {
			messageLines = append(messageLines, l[4:])
		}
	}

	return &Reply{
		Code:    code,
		Message: strings.Join(messageLines, "\n"),
		Lines:   lines,
	}, nil
}

func readMultiLine(r *bufio.Reader, code int, lines *[]string) error {
	codeStr := fmt.Sprintf("%03d", code)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && len(*lines) > 0 {
				return errors.New("unexpected EOF reading reply")
			}
			return err
		}

		line = strings.TrimRight(line, "\r\n")

		// RFC 2389 continuation lines start with a space
		if len(line) > 0 && line[0] == ' ' {
			*lines = append(*lines, line)
			continue
		}

		if len(line) < 4 || line[0:3] != codeStr {
			return fmt.Errorf("reply code mismatch or invalid line: %q", line)
		}

		*lines = append(*lines, line)

		if line[3] == ' ' {
			return nil
		}

		if line[3] != '-' {
			return fmt.Errorf("invalid reply format: %q", line)
		}
	}
}

// sendCommand writes one command line and reads the matching reply. The
// session mutex serializes exchanges so a second command is never on the
// wire while a reply is outstanding; maxInFlight records the observed
// maximum for the sequencing assertion in tests.
func (s *Session) sendCommand(command string, args ...string) (*Reply, error) {
	cmd := command
	if len(args) > 0 {
		cmd = fmt.Sprintf("%s %s", command, strings.Join(args, " "))
	}

	s.logger.Debug("ftp command", "cmd", redactCommand(command, cmd))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, &ConnectError{Addr: s.profile.addr(), Err: errors.New("control channel closed")}
	}

	depth := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxInFlight.Load()
		if depth <= seen || s.maxInFlight.CompareAndSwap(seen, depth) {
			break
		}
	}

	s.lastCommand = time.Now()

	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if _, err := fmt.Fprintf(s.conn, "%s\r\n", cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	if s.timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	reply, err := readReply(s.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}

	s.logger.Debug("ftp reply", "code", reply.Code, "message", reply.Message)

	return reply, nil
}

// redactCommand keeps passwords out of debug logs.
func redactCommand(verb, full string) string {
	if verb == "PASS" {
		return "PASS ****"
	}
	return full
}

// expectCode sends a command and verifies the reply code matches exactly.
func (s *Session) expectCode(expected int, command string, args ...string) (*Reply, error) {
	reply, err := s.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}

	if reply.Code != expected {
		return reply, &ProtocolError{
			Command:  command,
			Response: reply.Message,
			Code:     reply.Code,
		}
	}

	return reply, nil
}

// expect2xx sends a command and verifies the reply is a positive completion.
func (s *Session) expect2xx(command string, args ...string) (*Reply, error) {
	reply, err := s.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}

	if !reply.Is2xx() {
		return reply, &ProtocolError{
			Command:  command,
			Response: reply.Message,
			Code:     reply.Code,
		}
	}

	return reply, nil
}
