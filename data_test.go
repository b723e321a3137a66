package hyperftp

import (
	"errors"
	"testing"
)

func TestParsePASV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{
			name:  "standard",
			reply: "227 Entering Passive Mode (192,168,1,1,195,149)",
			want:  "192.168.1.1:50069",
		},
		{
			name:  "wildcard address",
			reply: "227 Entering Passive Mode (0,0,0,0,10,0)",
			want:  "0.0.0.0:2560",
		},
		{
			name:    "missing parens",
			reply:   "227 Entering Passive Mode 192,168,1,1,195,149",
			wantErr: true,
		},
		{
			name:    "octet out of range",
			reply:   "227 Entering Passive Mode (192,168,1,999,195,149)",
			wantErr: true,
		},
		{
			name:    "too few parts",
			reply:   "227 Entering Passive Mode (192,168,1,1,195)",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parsePASV(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseEPSV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{"standard", "229 Entering Extended Passive Mode (|||6446|)", "6446", false},
		{"port zero", "229 Entering Extended Passive Mode (|||0|)", "0", false},
		{"missing delimiters", "229 Entering Extended Passive Mode (6446)", "", true},
		{"port too large", "229 Entering Extended Passive Mode (|||70000|)", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseEPSV(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFormatPORT(t *testing.T) {
	t.Parallel()
	got, err := formatPORT("192.168.1.100:50000")
	if err != nil {
		t.Fatal(err)
	}
	if want := "192,168,1,100,195,80"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if _, err := formatPORT("[::1]:50000"); err == nil {
		t.Errorf("expected error for IPv6 address")
	}
	if _, err := formatPORT("not-an-addr"); err == nil {
		t.Errorf("expected error for malformed address")
	}
}

func TestFormatEPRT(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want string
	}{
		{"192.168.1.100:50000", "|1|192.168.1.100|50000|"},
		{"[2001:db8::1]:50000", "|2|2001:db8::1|50000|"},
	}

	for _, tt := range tests {
		tt := tt
		got, err := formatEPRT(tt.addr)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestResolveDataAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pasv    string
		control string
		want    string
	}{
		{"0.0.0.0:2560", "ftp.example.com", "ftp.example.com:2560"},
		{"10.0.0.5:2560", "ftp.example.com", "10.0.0.5:2560"},
		{"garbage", "ftp.example.com", "garbage"},
	}

	for _, tt := range tests {
		tt := tt
		if got := resolveDataAddr(tt.pasv, tt.control); got != tt.want {
			t.Errorf("resolveDataAddr(%q, %q): expected %q, got %q", tt.pasv, tt.control, tt.want, got)
		}
	}
}

func TestOpenActiveDataChannel_ClosedControl(t *testing.T) {
	t.Parallel()
	s, err := NewSession(ConnectionProfile{Host: "example.com"}, WithActiveMode())
	if err != nil {
		t.Fatal(err)
	}

	// Without a control connection the setup must fail cleanly, the same
	// way a command send does.
	_, err = s.openActiveDataChannel()
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
}
