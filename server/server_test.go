package server

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"txnkv/engine"
	"txnkv/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Debug, logging.NewJSONOutput(&bytes.Buffer{}))
}

func startTestServer(t *testing.T) (net.Addr, *Server) {
	t.Helper()
	eng := engine.New(engine.DefaultConfig(), nil)
	s := New(eng, testLogger())
	if err := s.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return s.listener.Addr(), s
}

func dial(t *testing.T, addr net.Addr) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial(addr.Network(), addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn, bufio.NewReader(conn)
}

func sendLine(t *testing.T, conn net.Conn, reader *bufio.Reader, line string) string {
	t.Helper()
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
	reply, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply to %q: %v", line, err)
	}
	return reply[:len(reply)-1]
}

func TestAutocommitSetAndGet(t *testing.T) {
	addr, s := startTestServer(t)
	defer s.Shutdown(context.Background())

	conn, reader := dial(t, addr)
	defer conn.Close()

	if reply := sendLine(t, conn, reader, "SET alpha 1"); reply != "OK" {
		t.Fatalf("SET reply = %q", reply)
	}
	if reply := sendLine(t, conn, reader, "GET alpha"); reply != "1" {
		t.Fatalf("GET reply = %q", reply)
	}
}

func TestGetMissingKeyReportsNotFound(t *testing.T) {
	addr, s := startTestServer(t)
	defer s.Shutdown(context.Background())

	conn, reader := dial(t, addr)
	defer conn.Close()

	reply := sendLine(t, conn, reader, "GET nope")
	if !strings.HasPrefix(reply, "ERROR NOT_FOUND ") {
		t.Fatalf("expected ERROR NOT_FOUND reply, got %q", reply)
	}
}

func TestExplicitTransactionCommit(t *testing.T) {
	addr, s := startTestServer(t)
	defer s.Shutdown(context.Background())

	conn, reader := dial(t, addr)
	defer conn.Close()

	if reply := sendLine(t, conn, reader, "BEGIN"); reply != "OK" {
		t.Fatalf("BEGIN reply = %q", reply)
	}
	if reply := sendLine(t, conn, reader, "SET k v"); reply != "OK" {
		t.Fatalf("SET reply = %q", reply)
	}
	if reply := sendLine(t, conn, reader, "GET k"); reply != "v" {
		t.Fatalf("read-your-writes GET reply = %q", reply)
	}
	if reply := sendLine(t, conn, reader, "COMMIT"); reply != "OK" {
		t.Fatalf("COMMIT reply = %q", reply)
	}

	conn2, reader2 := dial(t, addr)
	defer conn2.Close()
	if reply := sendLine(t, conn2, reader2, "GET k"); reply != "v" {
		t.Fatalf("expected committed value visible on a new connection, got %q", reply)
	}
}

func TestExplicitTransactionAbortDiscardsWrites(t *testing.T) {
	addr, s := startTestServer(t)
	defer s.Shutdown(context.Background())

	conn, reader := dial(t, addr)
	defer conn.Close()

	sendLine(t, conn, reader, "BEGIN")
	sendLine(t, conn, reader, "SET k v")
	if reply := sendLine(t, conn, reader, "ABORT"); reply != "OK" {
		t.Fatalf("ABORT reply = %q", reply)
	}

	reply := sendLine(t, conn, reader, "GET k")
	if reply[:6] != "ERROR " {
		t.Fatalf("expected aborted write to be invisible, got %q", reply)
	}
}

func TestDoubleBeginIsRejected(t *testing.T) {
	addr, s := startTestServer(t)
	defer s.Shutdown(context.Background())

	conn, reader := dial(t, addr)
	defer conn.Close()

	sendLine(t, conn, reader, "BEGIN")
	reply := sendLine(t, conn, reader, "BEGIN")
	if reply[:6] != "ERROR " {
		t.Fatalf("expected nested BEGIN to error, got %q", reply)
	}
}

func TestUnknownCommand(t *testing.T) {
	addr, s := startTestServer(t)
	defer s.Shutdown(context.Background())

	conn, reader := dial(t, addr)
	defer conn.Close()

	reply := sendLine(t, conn, reader, "FROBNICATE x")
	if reply[:6] != "ERROR " {
		t.Fatalf("expected ERROR for unknown command, got %q", reply)
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	addr, s := startTestServer(t)

	conn, _ := dial(t, addr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed after Shutdown")
	}
}
