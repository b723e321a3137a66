package hyperftp

import (
	"net"
	"strconv"
)

// ConnectionProfile describes how to reach and authenticate against an FTP
// server. It is created by the caller (typically from a saved-connection
// store) and is immutable once a Session has been constructed from it.
type ConnectionProfile struct {
	// Host is the server hostname or IP address.
	Host string

	// Port is the control-channel port, usually 21.
	Port int

	// Username and Password authenticate the session. Ignored when
	// Anonymous is set.
	Username string
	Password string

	// Anonymous logs in as "anonymous" with the conventional password.
	Anonymous bool

	// Secure upgrades the control channel to TLS (explicit FTPS via
	// AUTH TLS) and protects data channels.
	Secure bool

	// PassiveMode selects passive (PASV/EPSV) data channels. When false
	// the client listens locally and sends PORT/EPRT.
	PassiveMode bool
}

func (p ConnectionProfile) addr() string {
	port := p.Port
	if port == 0 {
		port = 21
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// credentials returns the login pair, substituting the anonymous convention
// when the profile requests it.
func (p ConnectionProfile) credentials() (user, pass string) {
	if p.Anonymous {
		return "anonymous", "anonymous@"
	}
	return p.Username, p.Password
}
