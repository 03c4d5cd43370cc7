package server

import (
	"bufio"
	"context"
	"net"
	"testing"

	"github.com/emberkv/emberkv/engine"
	"github.com/rs/zerolog"
)

func startTestServer(t *testing.T) (addr string, eng *engine.Engine) {
	t.Helper()

	eng, err := engine.Open(t.TempDir(), engine.WithMemtableLimitBytes(1<<20), engine.WithSstableLevelLimit(4))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	srv, err := New("127.0.0.1:0", eng, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	return srv.Addr().String(), eng
}

func TestServerRoundTrip(t *testing.T) {
	addr, _ := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	send := func(line string) string {
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			t.Fatal(err)
		}
		resp, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		return resp[:len(resp)-1]
	}

	if got := send("insert foo bar"); got != "ok" {
		t.Fatalf("insert response = %q, want ok", got)
	}
	if got := send("get foo"); got != "bar" {
		t.Fatalf("get response = %q, want bar", got)
	}
	if got := send("delete foo"); got != "ok" {
		t.Fatalf("delete response = %q, want ok", got)
	}
	if got := send("get foo"); got != "foo not found" {
		t.Fatalf("get after delete = %q, want 'foo not found'", got)
	}
	if got := send("nonsense"); got == "" {
		t.Fatal("expected a help line for an unrecognized command")
	}
}
