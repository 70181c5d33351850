package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"go-guardian/internal/logging"
)

// Watchdog reports overall health from components that mark themselves up
// and down. A component counts as unhealthy only after it has been down
// longer than its grace period, so routine reconnects do not flap health.
type Watchdog struct {
	mu         sync.Mutex
	components map[string]*ComponentHealth
	interval   time.Duration
	clock      clock.Clock
	healthy    bool
	onChange   func(healthy bool)
}

type ComponentHealth struct {
	Name  string
	Grace time.Duration
	Up    bool
	// Since is when Up last changed.
	Since time.Time
	seen  bool
}

func NewWatchdog(interval time.Duration, clk clock.Clock, onChange func(healthy bool)) *Watchdog {
	if clk == nil {
		clk = clock.New()
	}
	return &Watchdog{
		components: make(map[string]*ComponentHealth),
		interval:   interval,
		clock:      clk,
		onChange:   onChange,
	}
}

// Register adds a component that starts down.
func (w *Watchdog) Register(name string, grace time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.components[name] = &ComponentHealth{Name: name, Grace: grace, Since: w.clock.Now()}
}

func (w *Watchdog) Mark(name string, up bool) {
	w.mu.Lock()
	comp, ok := w.components[name]
	if ok && comp.Up != up {
		comp.Up = up
		comp.Since = w.clock.Now()
		comp.seen = comp.seen || up
	}
	w.mu.Unlock()

	if ok && up {
		w.Check()
	}
}

// Check evaluates every component and fires onChange when overall health
// flips. A component that has never come up keeps the process unhealthy.
func (w *Watchdog) Check() bool {
	w.mu.Lock()
	now := w.clock.Now()
	healthy := true
	for name, comp := range w.components {
		if comp.Up {
			continue
		}
		if !comp.seen {
			healthy = false
			continue
		}
		if down := now.Sub(comp.Since); down > comp.Grace {
			if w.healthy {
				logging.Error("[WATCHDOG] %s down for %v", name, down.Round(time.Millisecond))
			}
			healthy = false
		}
	}
	changed := healthy != w.healthy
	w.healthy = healthy
	w.mu.Unlock()

	if changed {
		logging.Info("[WATCHDOG] Healthy: %t", healthy)
		if w.onChange != nil {
			w.onChange(healthy)
		}
	}
	return healthy
}

func (w *Watchdog) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.healthy
}

func (w *Watchdog) Status() map[string]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := make(map[string]bool, len(w.components))
	for name, comp := range w.components {
		status[name] = comp.Up
	}
	return status
}

// Serve checks health once per interval until ctx is done.
func (w *Watchdog) Serve(ctx context.Context) error {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check()
		}
	}
}

func (w *Watchdog) String() string {
	return "watchdog"
}
