// Package server exposes the transactional engine over a line-oriented
// command protocol, one goroutine per connection, the way the original
// multi-client key-value daemon this module descends from handled clients
// with one pthread per accepted socket.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"txnkv/engine"
	"txnkv/logging"
)

// Server accepts connections on a net.Listener and dispatches each line a
// client sends as one command against a shared Engine.
type Server struct {
	engine   *engine.Engine
	log      *logging.Logger
	listener net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing atomic.Bool
	wg      sync.WaitGroup
}

// New builds a Server bound to eng. It does not start listening yet.
func New(eng *engine.Engine, log *logging.Logger) *Server {
	return &Server{
		engine: eng,
		log:    log.With("server"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Listen opens the configured network/address and starts accepting
// connections in the background. network is "unix" or "tcp".
func (s *Server) Listen(network, address string) error {
	if network == "unix" {
		_ = removeStaleSocket(address)
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("server: listen %s %s: %w", network, address, err)
	}
	s.listener = ln
	s.log.Info("listening", map[string]any{"network": network, "address": address})

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return
			}
			s.log.Error("accept failed", map[string]any{"error": err.Error()})
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Shutdown stops accepting new connections, closes the listener and every
// live connection, and waits for in-flight handlers to return or ctx to
// expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
		s.wg.Done()
	}()

	sess := newSession(s.engine)
	defer sess.closeAutocommitTxn()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := sess.dispatch(line)
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			return
		}
	}
}

// removeStaleSocket clears a leftover unix socket file from a previous,
// uncleanly terminated run. If something is actually listening on it, it
// refuses to touch the file.
func removeStaleSocket(path string) error {
	if conn, err := net.Dial("unix", path); err == nil {
		_ = conn.Close()
		return errors.New("server: socket already in use")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
