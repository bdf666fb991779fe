package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Worker is a single long-running actor task. It must return promptly
// once ctx is cancelled, draining whatever input it owns within the
// drain budget the Supervisor allows it.
type Worker func(ctx context.Context) error

const (
	initialBackoff = time.Second
	maxBackoff      = 60 * time.Second
	drainBudget     = 10 * time.Second
)

// Supervisor owns a set of named workers and restarts any that return
// an error with exponential backoff (1s, 2s, 4s, ... capped at 60s).
// On cancellation of the supervisor's context, every worker is given
// drainBudget to return before the supervisor stops waiting on it.
type Supervisor struct {
	log log.Logger

	mu      sync.Mutex
	workers map[string]Worker
	wg      sync.WaitGroup
}

// NewSupervisor creates an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		log:     log.New("component", "supervisor"),
		workers: make(map[string]Worker),
	}
}

// Add registers a named worker. Add must be called before Run.
func (s *Supervisor) Add(name string, w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[name] = w
}

// Run starts every registered worker and blocks until ctx is
// cancelled, then waits (up to drainBudget per worker, overlapped) for
// all of them to exit.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.workers))
	for name := range s.workers {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.wg.Add(1)
		go s.runOne(ctx, name, s.workers[name])
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainBudget):
		s.log.Warn("supervisor drain budget exceeded, abandoning stragglers")
	}
}

func (s *Supervisor) runOne(ctx context.Context, name string, w Worker) {
	defer s.wg.Done()

	backoff := initialBackoff
	for {
		err := s.runGuarded(ctx, name, w)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			s.log.Info("worker exited cleanly, not restarting", "worker", name)
			return
		}
		s.log.Error("worker failed, restarting", "worker", name, "err", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runGuarded converts a panic inside w into an error so a single
// misbehaving actor cannot take down the process.
func (s *Supervisor) runGuarded(ctx context.Context, name string, w Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %q panicked: %v", name, r)
		}
	}()
	return w(ctx)
}
