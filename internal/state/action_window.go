package state

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Key identifies one counting window.
type Key struct {
	GuildID string
	Kind    string
}

// window holds timestamps oldest first. Every retained stamp is younger than
// the window size after each hit.
type window struct {
	mu       sync.Mutex
	stamps   []time.Time
	lastSeen time.Time
	dead     bool
}

func (w *window) prune(now time.Time, size time.Duration) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= size {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// ActionWindows counts recent actions per (guild, kind). Writers to the same
// key are serialized by that window's mutex; different keys never contend
// beyond the map lookup.
type ActionWindows struct {
	mu      sync.Mutex
	windows map[Key]*window
	size    time.Duration
	clock   clock.Clock
}

func NewActionWindows(size time.Duration, clk clock.Clock) *ActionWindows {
	if clk == nil {
		clk = clock.New()
	}
	return &ActionWindows{
		windows: make(map[Key]*window),
		size:    size,
		clock:   clk,
	}
}

func (a *ActionWindows) Size() time.Duration {
	return a.size
}

func (a *ActionWindows) get(key Key) *window {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.windows[key]
	if !ok {
		w = &window{}
		a.windows[key] = w
	}
	return w
}

// Hit records one action now and returns the retained count. When the count
// reaches threshold the window is emptied and fired is true, so a burst fires
// once per threshold actions.
func (a *ActionWindows) Hit(key Key, threshold int) (count int, fired bool) {
	for {
		w := a.get(key)
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}

		now := a.clock.Now()
		w.stamps = append(w.stamps, now)
		w.prune(now, a.size)
		w.lastSeen = now
		count = len(w.stamps)
		if count >= threshold {
			w.stamps = w.stamps[:0]
			fired = true
		}
		w.mu.Unlock()
		return count, fired
	}
}

// Count returns the number of actions still inside the window.
func (a *ActionWindows) Count(key Key) int {
	a.mu.Lock()
	w, ok := a.windows[key]
	a.mu.Unlock()
	if !ok {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(a.clock.Now(), a.size)
	return len(w.stamps)
}

// Snapshot returns a copy of the retained timestamps for key.
func (a *ActionWindows) Snapshot(key Key) []time.Time {
	a.mu.Lock()
	w, ok := a.windows[key]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]time.Time, len(w.stamps))
	copy(out, w.stamps)
	return out
}

// Reset drops every window belonging to guildID.
func (a *ActionWindows) Reset(guildID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, w := range a.windows {
		if k.GuildID != guildID {
			continue
		}
		w.mu.Lock()
		w.dead = true
		w.mu.Unlock()
		delete(a.windows, k)
	}
}

// Sweep removes windows that have been empty and idle for a full window.
func (a *ActionWindows) Sweep() int {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for k, w := range a.windows {
		w.mu.Lock()
		w.prune(now, a.size)
		if len(w.stamps) == 0 && now.Sub(w.lastSeen) >= a.size {
			w.dead = true
			delete(a.windows, k)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

func (a *ActionWindows) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.windows)
}

// Serve sweeps idle windows once per window period until ctx is done.
func (a *ActionWindows) Serve(ctx context.Context) error {
	ticker := a.clock.Ticker(a.size)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.Sweep()
		}
	}
}

func (a *ActionWindows) String() string {
	return "action-windows"
}
