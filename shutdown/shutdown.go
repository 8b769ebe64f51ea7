// Package shutdown coordinates graceful termination of txnkvd: it listens
// for SIGINT/SIGTERM and runs registered teardown steps in priority order,
// bounded by a timeout.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"txnkv/logging"
)

// Func is one step run during shutdown.
type Func struct {
	Name     string
	Priority int // lower runs first
	Run      func(ctx context.Context) error
}

// Manager runs registered Funcs, in priority order, when a shutdown signal
// arrives or Shutdown is called directly.
type Manager struct {
	mu      sync.Mutex
	funcs   []Func
	timeout time.Duration
	signals []os.Signal
	done    chan struct{}
	once    sync.Once
	log     *logging.Logger
}

// NewManager builds a Manager with the given overall shutdown timeout.
func NewManager(timeout time.Duration, log *logging.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		done:    make(chan struct{}),
		log:     log.With("shutdown"),
	}
}

// Register adds a teardown step, keeping the list sorted by Priority.
func (m *Manager) Register(name string, priority int, run func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := Func{Name: name, Priority: priority, Run: run}
	i := 0
	for ; i < len(m.funcs); i++ {
		if priority < m.funcs[i].Priority {
			break
		}
	}
	m.funcs = append(m.funcs, Func{})
	copy(m.funcs[i+1:], m.funcs[i:])
	m.funcs[i] = fn
}

// Listen starts a goroutine that triggers Shutdown on SIGINT/SIGTERM.
func (m *Manager) Listen() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, m.signals...)

	go func() {
		sig := <-sigCh
		m.log.Info("received signal", map[string]any{"signal": sig.String()})
		m.Shutdown()
	}()
}

// Shutdown runs every registered step exactly once, even if called from
// multiple goroutines or in response to multiple signals.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		defer close(m.done)
		m.run()
	})
}

// Wait blocks until Shutdown has completed.
func (m *Manager) Wait() {
	<-m.done
}

func (m *Manager) run() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	funcs := make([]Func, len(m.funcs))
	copy(funcs, m.funcs)
	m.mu.Unlock()

	for _, fn := range funcs {
		start := time.Now()
		if err := fn.Run(ctx); err != nil {
			m.log.Error("shutdown step failed", map[string]any{"step": fn.Name, "error": err.Error()})
			continue
		}
		m.log.Info("shutdown step completed", map[string]any{"step": fn.Name, "duration_ms": time.Since(start).Milliseconds()})
	}

	select {
	case <-ctx.Done():
		m.log.Warn("shutdown timeout reached", map[string]any{"timeout": m.timeout.String()})
	default:
	}
}
