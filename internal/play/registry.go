package play

import (
	"sync"

	"github.com/khojney/quiz/internal/errors"
)

// registry indexes live runs by attempt ID.
type registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*Run)}
}

func (r *registry) add(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[run.attemptID] = run
}

func (r *registry) get(attemptID string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[attemptID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("play: run not found: %s", attemptID))
	}
	return run, nil
}

func (r *registry) remove(attemptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.runs, attemptID)
}
