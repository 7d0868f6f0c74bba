package signaling

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reaper periodically sweeps placeholder sessions that never saw an
// instructor. Sessions with an instructor live until that connection drops,
// so the sweep only ever touches instructorless, student-free leftovers.
type Reaper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewReaper creates a reaper over the session store. A ttl or interval of
// zero disables it; Start becomes a no-op.
func NewReaper(store *Store, ttl, interval time.Duration, log zerolog.Logger) *Reaper {
	return &Reaper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		log:      log.With().Str("component", "session-reaper").Logger(),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (r *Reaper) Start() {
	if r.ttl <= 0 || r.interval <= 0 {
		r.log.Info().Msg("session reaper disabled")
		return
	}
	go r.run()
}

// Stop terminates the sweep loop. Safe to call more than once.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Reaper) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("ttl", r.ttl).Dur("interval", r.interval).Msg("session reaper started")
	for {
		select {
		case now := <-ticker.C:
			r.store.Sweep(r.ttl, now)
		case <-r.done:
			r.log.Info().Msg("session reaper stopped")
			return
		}
	}
}
