package bot

import (
	"context"
	"runtime/debug"
	"sync"

	"go-guardian/internal/ingest"
	"go-guardian/internal/logging"
	"go-guardian/internal/metrics"
)

type Handler func(ctx context.Context, ev ingest.Event)

// Router decodes dispatch payloads and fans them out to handlers, each on its
// own goroutine. Handlers are not cancelled when the connection that
// delivered their event goes away, and events carry no relative ordering once
// dispatched.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	inflight sync.WaitGroup
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string][]Handler)}
}

func (r *Router) Register(eventType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], h)
}

// Dispatch never blocks on handler work.
func (r *Router) Dispatch(ctx context.Context, eventType string, data []byte) {
	r.mu.RLock()
	hs := r.handlers[eventType]
	r.mu.RUnlock()

	if len(hs) == 0 {
		logging.Debug("[ROUTER] No handler for %s", eventType)
		metrics.EventsDropped.WithLabelValues("unhandled").Inc()
		return
	}

	ev, err := ingest.DecodeEvent(eventType, data)
	if err != nil {
		logging.Warn("[ROUTER] Dropping %s: %v", eventType, err)
		metrics.EventsDropped.WithLabelValues("decode").Inc()
		return
	}

	for _, h := range hs {
		r.inflight.Add(1)
		metrics.HandlersInFlight.Inc()
		go r.run(ctx, eventType, h, ev)
	}
}

func (r *Router) run(ctx context.Context, eventType string, h Handler, ev ingest.Event) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error("[ROUTER] Handler for %s panicked: %v\n%s", eventType, p, debug.Stack())
		}
		metrics.HandlersInFlight.Dec()
		r.inflight.Done()
	}()
	h(ctx, ev)
}

// Wait blocks until every handler spawned so far has returned.
func (r *Router) Wait() {
	r.inflight.Wait()
}
