package address_test

import (
	"errors"
	"testing"

	"conveyor/internal/address"
)

func TestParsePipe(t *testing.T) {
	addr, err := address.Parse("pipe:/var/run/conveyord.socket")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	pipe, ok := addr.(address.PipeAddress)
	if !ok {
		t.Fatalf("expected PipeAddress, got %T", addr)
	}
	if pipe.Path != "/var/run/conveyord.socket" {
		t.Fatalf("unexpected path %q", pipe.Path)
	}
	if addr.String() != "pipe:/var/run/conveyord.socket" {
		t.Fatalf("unexpected string form %q", addr.String())
	}
}

func TestParseTCP(t *testing.T) {
	addr, err := address.Parse("tcp:localhost:9999")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	tcp, ok := addr.(address.TCPAddress)
	if !ok {
		t.Fatalf("expected TCPAddress, got %T", addr)
	}
	if tcp.Host != "localhost" || tcp.Port != 9999 {
		t.Fatalf("unexpected host/port %q/%d", tcp.Host, tcp.Port)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"no scheme", "localhost"},
		{"missing pipe path", "pipe:"},
		{"missing tcp port", "tcp:localhost"},
		{"missing tcp host", "tcp::9999"},
		{"bad tcp port", "tcp:localhost:nope"},
		{"port out of range", "tcp:localhost:70000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := address.Parse(tc.value); err == nil {
				t.Fatalf("expected error for %q", tc.value)
			}
		})
	}
}

func TestParseUnknownScheme(t *testing.T) {
	_, err := address.Parse("udp:localhost:9999")
	if !errors.Is(err, address.ErrUnknownScheme) {
		t.Fatalf("expected ErrUnknownScheme, got %v", err)
	}
}

func TestPipeListenAndDial(t *testing.T) {
	socket := t.TempDir() + "/conveyord.socket"
	addr, err := address.Parse("pipe:" + socket)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	listener, err := addr.Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer listener.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			conn.Close()
		}
		done <- err
	}()

	conn, err := addr.Dial()
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	conn.Close()
	if err := <-done; err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
}
