// Package address parses conveyor service addresses of the form
// "pipe:PATH" (Unix domain socket) or "tcp:HOST:PORT" and turns them into
// listeners and connections.
package address

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownScheme indicates an address with an unsupported scheme prefix.
var ErrUnknownScheme = errors.New("unknown address scheme")

// DialTimeout bounds client connection attempts.
const DialTimeout = 2 * time.Second

// Address describes a parsed service endpoint.
type Address interface {
	// Listen opens a listener for the daemon side of the endpoint.
	Listen() (net.Listener, error)
	// Dial connects a client to the endpoint.
	Dial() (net.Conn, error)
	// String returns the canonical scheme-prefixed form.
	String() string
}

// Parse converts "pipe:PATH" or "tcp:HOST:PORT" into an Address.
func Parse(value string) (Address, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return nil, fmt.Errorf("address %q: missing scheme separator", value)
	}
	switch scheme {
	case "pipe":
		if rest == "" {
			return nil, fmt.Errorf("address %q: missing socket path", value)
		}
		return PipeAddress{Path: rest}, nil
	case "tcp":
		host, portStr, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("address %q: missing port", value)
		}
		if host == "" {
			return nil, fmt.Errorf("address %q: missing host", value)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 0 || port > 65535 {
			return nil, fmt.Errorf("address %q: invalid port %q", value, portStr)
		}
		return TCPAddress{Host: host, Port: port}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

// PipeAddress is a Unix domain socket endpoint.
type PipeAddress struct {
	Path string
}

func (a PipeAddress) Listen() (net.Listener, error) {
	if err := os.RemoveAll(a.Path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	return net.Listen("unix", a.Path)
}

func (a PipeAddress) Dial() (net.Conn, error) {
	return net.DialTimeout("unix", a.Path, DialTimeout)
}

func (a PipeAddress) String() string {
	return "pipe:" + a.Path
}

// TCPAddress is a TCP endpoint.
type TCPAddress struct {
	Host string
	Port int
}

func (a TCPAddress) Listen() (net.Listener, error) {
	return net.Listen("tcp", a.hostPort())
}

func (a TCPAddress) Dial() (net.Conn, error) {
	return net.DialTimeout("tcp", a.hostPort(), DialTimeout)
}

func (a TCPAddress) String() string {
	return "tcp:" + a.hostPort()
}

func (a TCPAddress) hostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}
