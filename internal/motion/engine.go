// Package motion is the voting and lifecycle engine: it records per-party
// votes under seat caps, keeps round totals consistent and drives motions
// through their statuses while appending the history ledger.
package motion

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"council-motions/internal/tally"

	"github.com/prometheus/client_golang/prometheus"
)

const moduleName = "motion"

const (
	SeatPolicyStrict  = "strict"
	SeatPolicyLenient = "lenient"
)

type Config struct {
	Store     Store
	Directory Directory
	Seats     SeatAllocations
	Documents DocumentStore // optional; answered transitions fail without it
	Clock     Clock
	// SeatPolicy decides what happens when no seat cap can be resolved:
	// strict fails with ErrUnknownTermOrAllocation, lenient skips the check.
	SeatPolicy   string
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

type Engine struct {
	store     Store
	directory Directory
	seats     SeatAllocations
	documents DocumentStore
	clock     Clock
	lenient   bool
	logger    *slog.Logger
	metrics   *engineMetrics
	locks     *keyedLocks
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("motion: store is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("motion: directory is required")
	}
	if cfg.Seats == nil {
		return nil, errors.New("motion: seat allocation provider is required")
	}
	lenient := false
	switch cfg.SeatPolicy {
	case "", SeatPolicyStrict:
	case SeatPolicyLenient:
		lenient = true
	default:
		return nil, fmt.Errorf("motion: unknown seat policy %q", cfg.SeatPolicy)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		directory: cfg.Directory,
		seats:     cfg.Seats,
		documents: cfg.Documents,
		clock:     clock,
		lenient:   lenient,
		logger:    logger.With("module", moduleName, "layer", "engine"),
		metrics:   newEngineMetrics(cfg.PromRegistry),
		locks:     newKeyedLocks(),
	}, nil
}

func motionLockKey(motionID uint) string {
	return fmt.Sprintf("motion/%d", motionID)
}

func roundLockKey(motionID uint, key tally.Key) string {
	return fmt.Sprintf("round/%d/%s", motionID, key)
}

// keyedLocks hands out one mutex per key and forgets it once unused.
// Callers acquire motion keys before round keys.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its release func.
func (k *keyedLocks) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
