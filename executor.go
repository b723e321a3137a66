package hyperftp

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"time"
)

// List retrieves and parses the directory listing for path. An empty path
// lists the current directory. Servers advertising MLSD get the structured
// listing; everyone else gets LIST through the configured parser.
func (s *Session) List(path string) ([]DirectoryEntry, error) {
	if err := s.beginOp("list"); err != nil {
		return nil, err
	}
	defer s.endOp()

	var (
		cmd    string
		parser ListingParser
	)
	if s.supports("MLSD") {
		cmd, parser = "MLSD", mlsdParser{}
	} else {
		cmd, parser = "LIST", s.listingParser
	}

	lines, err := s.retrieveLines(cmd, path)
	if err != nil {
		s.failIfFatal(err)
		return nil, &OpError{Op: "list", Path: path, Err: err}
	}

	return parseListing(lines, parser), nil
}

// NameList retrieves the bare name listing (NLST) for path.
func (s *Session) NameList(path string) ([]string, error) {
	if err := s.beginOp("namelist"); err != nil {
		return nil, err
	}
	defer s.endOp()

	lines, err := s.retrieveLines("NLST", path)
	if err != nil {
		s.failIfFatal(err)
		return nil, &OpError{Op: "namelist", Path: path, Err: err}
	}

	names := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// retrieveLines runs a listing command over a data channel and returns the
// received lines.
func (s *Session) retrieveLines(cmd, path string) ([]string, error) {
	var (
		dataConn net.Conn
		err      error
	)
	if path == "" {
		dataConn, err = s.cmdDataChannel(cmd)
	} else {
		dataConn, err = s.cmdDataChannel(cmd, path)
	}
	if err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(dataConn)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	scanErr := scanner.Err()

	if err := s.finishDataChannel(dataConn); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to read listing: %w", scanErr)
	}

	return lines, nil
}

// Delete removes a remote file.
func (s *Session) Delete(path string) error {
	return s.simpleOp("delete", path, func() error {
		_, err := s.expect2xx("DELE", path)
		return err
	})
}

// MakeDir creates a remote directory.
func (s *Session) MakeDir(path string) error {
	return s.simpleOp("mkdir", path, func() error {
		_, err := s.expect2xx("MKD", path)
		return err
	})
}

// RemoveDir removes a remote directory. Most servers require it to be empty.
func (s *Session) RemoveDir(path string) error {
	return s.simpleOp("rmdir", path, func() error {
		_, err := s.expect2xx("RMD", path)
		return err
	})
}

// Rename renames or moves a remote file or directory.
func (s *Session) Rename(from, to string) error {
	return s.simpleOp("rename", from, func() error {
		if _, err := s.expectCode(350, "RNFR", from); err != nil {
			return err
		}
		_, err := s.expect2xx("RNTO", to)
		return err
	})
}

// ChangeDir changes the remote working directory and refreshes the tracked
// directory from a PWD round trip.
func (s *Session) ChangeDir(path string) error {
	return s.simpleOp("cd", path, func() error {
		if _, err := s.expect2xx("CWD", path); err != nil {
			return err
		}

		dir, err := s.pwd()
		if err != nil {
			return err
		}

		s.stateMu.Lock()
		s.remoteDir = dir
		s.stateMu.Unlock()

		return nil
	})
}

// CurrentDir asks the server for the working directory.
func (s *Session) CurrentDir() (string, error) {
	if err := s.beginOp("pwd"); err != nil {
		return "", err
	}
	defer s.endOp()

	dir, err := s.pwd()
	if err != nil {
		s.failIfFatal(err)
		return "", &OpError{Op: "pwd", Err: err}
	}

	s.stateMu.Lock()
	s.remoteDir = dir
	s.stateMu.Unlock()

	return dir, nil
}

// Size returns the size in bytes of a remote file via SIZE.
func (s *Session) Size(path string) (int64, error) {
	if err := s.beginOp("size"); err != nil {
		return 0, err
	}
	defer s.endOp()

	size, err := s.size(path)
	if err != nil {
		s.failIfFatal(err)
		return 0, &OpError{Op: "size", Path: path, Err: err}
	}
	return size, nil
}

func (s *Session) size(path string) (int64, error) {
	reply, err := s.expectCode(213, "SIZE", path)
	if err != nil {
		return 0, err
	}

	size, err := strconv.ParseInt(reply.Message, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse SIZE reply %q: %w", reply.Message, err)
	}
	return size, nil
}

// ModTime returns the modification time of a remote file via MDTM.
func (s *Session) ModTime(path string) (time.Time, error) {
	if err := s.beginOp("modtime"); err != nil {
		return time.Time{}, err
	}
	defer s.endOp()

	reply, err := s.expectCode(213, "MDTM", path)
	if err != nil {
		s.failIfFatal(err)
		return time.Time{}, &OpError{Op: "modtime", Path: path, Err: err}
	}

	t, err := time.Parse("20060102150405", reply.Message)
	if err != nil {
		return time.Time{}, &OpError{Op: "modtime", Path: path,
			Err: fmt.Errorf("cannot parse MDTM reply %q: %w", reply.Message, err)}
	}
	return t, nil
}

// Noop sends a NOOP to keep the control channel alive.
func (s *Session) Noop() error {
	return s.simpleOp("noop", "", func() error {
		_, err := s.expect2xx("NOOP")
		return err
	})
}

// simpleOp wraps a control-channel-only operation with the Busy guard and
// error context. A negative reply leaves the session Ready.
func (s *Session) simpleOp(op, path string, fn func() error) error {
	if err := s.beginOp(op); err != nil {
		return err
	}
	defer s.endOp()

	if err := fn(); err != nil {
		s.failIfFatal(err)
		return &OpError{Op: op, Path: path, Err: err}
	}
	return nil
}
