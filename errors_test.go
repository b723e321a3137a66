package hyperftp

import (
	"errors"
	"fmt"
	"testing"
)

func TestProtocolError_Sentinels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code   int
		target error
		match  bool
	}{
		{550, ErrNotFound, true},
		{550, ErrPermissionDenied, false},
		{530, ErrPermissionDenied, true},
		{532, ErrPermissionDenied, true},
		{533, ErrPermissionDenied, true},
		{553, ErrPermissionDenied, true},
		{530, ErrNotFound, false},
		{226, ErrNotFound, false},
	}

	for _, tt := range tests {
		err := &ProtocolError{Command: "DELE", Code: tt.code}
		if got := errors.Is(err, tt.target); got != tt.match {
			t.Errorf("code %d vs %v: expected %v, got %v", tt.code, tt.target, tt.match, got)
		}
	}
}

func TestProtocolError_WrappedSentinels(t *testing.T) {
	t.Parallel()
	// The mapping must survive wrapping in OpError.
	inner := &ProtocolError{Command: "RETR", Response: "No such file", Code: 550}
	err := &OpError{Op: "download", Path: "/missing.txt", Err: inner}

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("wrapped 550 did not match ErrNotFound")
	}

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatal("ProtocolError not extractable from OpError")
	}
	if pe.Code != 550 {
		t.Errorf("expected code 550, got %d", pe.Code)
	}
}

func TestProtocolError_Classes(t *testing.T) {
	t.Parallel()
	transient := &ProtocolError{Code: 450}
	if !transient.IsTemporary() || transient.IsPermanent() {
		t.Errorf("450 misclassified")
	}

	permanent := &ProtocolError{Code: 550}
	if permanent.IsTemporary() || !permanent.IsPermanent() {
		t.Errorf("550 misclassified")
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("connection refused")

	tests := []struct {
		err  error
		want string
	}{
		{
			&ProtocolError{Command: "STOR big.bin", Response: "Quota exceeded", Code: 552},
			"ftp: STOR big.bin failed: Quota exceeded (code 552)",
		},
		{
			&ConnectError{Addr: "example.com:21", Err: cause},
			"ftp: connect example.com:21: connection refused",
		},
		{
			&DataChannelError{Mode: "passive", Err: cause},
			"ftp: passive data channel: connection refused",
		},
		{
			&StateError{Op: "list", Phase: Busy},
			"ftp: list not allowed in phase busy",
		},
		{
			&OpError{Op: "delete", Path: "/a.txt", Err: cause},
			"ftp: delete /a.txt: connection refused",
		},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")

	for _, err := range []error{
		&ConnectError{Addr: "x:21", Err: cause},
		&TLSError{Err: cause},
		&DataChannelError{Mode: "active", Err: cause},
		&IOError{Path: "/tmp/f", Err: cause},
		&OpError{Op: "upload", Err: cause},
	} {
		if !errors.Is(err, cause) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}
}
