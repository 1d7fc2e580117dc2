package netio

import (
	"net"
	"testing"
	"time"
)

func TestBindServerThenResolveClientRoundTrip(t *testing.T) {
	server, err := BindServer("", 0)
	if err != nil {
		t.Fatalf("BindServer: %v", err)
	}
	defer server.Close()

	host, port, err := net.SplitHostPort(server.LocalAddr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	if host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	client, raddr, err := ResolveClient(host, port)
	if err != nil {
		t.Fatalf("ResolveClient: %v", err)
	}
	defer client.Close()

	if raddr.Port == 0 {
		t.Fatalf("resolved address has no port")
	}

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	server.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, _, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestSetRcvTimeoutThenBlockingClearsDeadline(t *testing.T) {
	server, err := BindServer("", 0)
	if err != nil {
		t.Fatalf("BindServer: %v", err)
	}
	defer server.Close()

	if err := SetRcvTimeout(server, 10); err != nil {
		t.Fatalf("SetRcvTimeout: %v", err)
	}
	buf := make([]byte, 8)
	_, _, err = server.ReadFromUDP(buf)
	if err == nil {
		t.Fatalf("expected a timeout error with no data pending")
	}

	if err := SetBlocking(server); err != nil {
		t.Fatalf("SetBlocking: %v", err)
	}
}
