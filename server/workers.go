package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/aeronet-go/aeronet/tlsconfig"
)

// Workers runs cfg.NumWorkers independent Server instances bound to the
// same port via SO_REUSEPORT (spec §4.10: "N independent single-threaded
// event loops sharing one listening port"). They share one TLS Context
// (so session tickets issued by one worker resume on any other) and one
// telemetry.Metrics registry (set on cfg before calling StartWorkers, the
// same way a single Server's Metrics would be), but otherwise run fully
// independently - each has its own reactor.Loop, its own connection set,
// and its own goroutine.
type Workers struct {
	mu      sync.Mutex
	servers []*Server
	errs    chan error
}

// StartWorkers builds and starts cfg.NumWorkers Servers bound to cfg.Port,
// forcing ReusePort on whenever there is more than one (a single worker
// doesn't need it). It blocks until every worker's listening socket is
// bound, then returns.
func StartWorkers(cfg Config, router Router) (*Workers, error) {
	cfg = cfg.withDefaults()
	n := cfg.NumWorkers
	if n <= 0 {
		n = 1
	}
	if n > 1 {
		cfg.ReusePort = true
	}

	var sharedTLS *tlsconfig.Context
	if cfg.TLS != nil {
		ctx, err := cfg.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("server: building shared tls context: %w", err)
		}
		sharedTLS = ctx
	}

	w := &Workers{errs: make(chan error, n)}
	for i := 0; i < n; i++ {
		s, err := newServer(cfg, router, sharedTLS)
		if err != nil {
			return nil, fmt.Errorf("server: worker %d: %w", i, err)
		}
		w.servers = append(w.servers, s)
	}

	for _, s := range w.servers {
		s := s
		go func() { w.errs <- s.Start() }()
	}

	for _, s := range w.servers {
		if _, err := s.Port(); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// Port returns the port the first worker's listening socket was bound to
// - with ReusePort on, every worker binds the same port.
func (w *Workers) Port() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.servers) == 0 {
		return 0, fmt.Errorf("server: no workers")
	}
	return w.servers[0].Port()
}

// BeginDrain moves every worker to Draining (spec §4.10's shard-wide
// drain: all N loops stop accepting, each finishes its own in-flight
// connections against the same deadline).
func (w *Workers) BeginDrain(deadline time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.servers {
		s.BeginDrain(deadline)
	}
}

// Stop requests every worker's loop to return from Run.
func (w *Workers) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.servers {
		s.Stop()
	}
}

// Wait blocks until every worker's Start call has returned, returning the
// first non-nil error encountered (if any).
func (w *Workers) Wait() error {
	w.mu.Lock()
	n := len(w.servers)
	w.mu.Unlock()
	var first error
	for i := 0; i < n; i++ {
		if err := <-w.errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ApplyRouterUpdate hot-swaps the router on every worker (spec §4.10
// "router updates broadcast to all workers").
func (w *Workers) ApplyRouterUpdate(next Router) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.servers {
		s.ApplyRouterUpdate(next)
	}
}

// ApplyConfigUpdate posts a config replacement to every worker.
func (w *Workers) ApplyConfigUpdate(next Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.servers {
		s.ApplyConfigUpdate(next)
	}
}
