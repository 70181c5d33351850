package ingest

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"go-guardian/internal/config"
	"go-guardian/internal/logging"
	"go-guardian/internal/metrics"
)

// Supervisor keeps exactly one Session alive, reconnecting with backoff.
type Supervisor struct {
	gateway    config.GatewayConfig
	token      string
	ingestCPU  int
	dispatcher Dispatcher
	clock      clock.Clock

	resume  *ResumeState
	onState func(State)
	// OnReady is called each time a session reaches Ready.
	OnReady func()
}

type SupervisorOption func(*Supervisor)

func WithClock(clk clock.Clock) SupervisorOption {
	return func(s *Supervisor) { s.clock = clk }
}

// WithStateObserver reports every session state transition.
func WithStateObserver(fn func(State)) SupervisorOption {
	return func(s *Supervisor) { s.onState = fn }
}

func NewSupervisor(gw config.GatewayConfig, token string, ingestCPU int, d Dispatcher, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		gateway:    gw,
		token:      token,
		ingestCPU:  ingestCPU,
		dispatcher: d,
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.gateway.Backoff.Initial
	b.MaxInterval = s.gateway.Backoff.Max
	b.Multiplier = s.gateway.Backoff.Multiplier
	b.RandomizationFactor = s.gateway.Backoff.Jitter
	b.MaxElapsedTime = 0
	b.Clock = s.clock
	b.Reset()
	return b
}

// Serve runs sessions until ctx is cancelled. Transport failures never
// escape; they are logged, counted and retried.
func (s *Supervisor) Serve(ctx context.Context) error {
	bo := s.newBackOff()

	for {
		reachedReady := false
		sess := NewSession(SessionConfig{
			URL:              s.gateway.URL,
			Token:            s.token,
			Intents:          s.gateway.Intents,
			HandshakeTimeout: s.gateway.HandshakeTimeout,
			IngestCPU:        s.ingestCPU,
			Resume:           s.resume,
			Clock:            s.clock,
			OnState: func(st State) {
				if st == StateReady {
					reachedReady = true
					if s.OnReady != nil {
						s.OnReady()
					}
				}
				if s.onState != nil {
					s.onState(st)
				}
			},
		})

		err := sess.Run(ctx, s.dispatcher)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if s.gateway.Resume {
			s.resume = sess.ResumeState()
		} else {
			s.resume = nil
		}
		if reachedReady {
			bo.Reset()
		}

		reason := classify(err)
		metrics.GatewayReconnects.WithLabelValues(reason).Inc()

		// A requested reconnect is routine and skips the wait.
		if errors.Is(err, ErrReconnectRequested) {
			logging.Info("[GATEWAY] Reconnect requested, resuming=%t", s.resume != nil)
			continue
		}

		wait := bo.NextBackOff()
		logging.Warn("[GATEWAY] Session ended (%s): %v; reconnecting in %s", reason, err, wait)

		timer := s.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Supervisor) String() string {
	return "gateway-supervisor"
}

func classify(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, ErrMalformedHello):
		return "malformed_hello"
	case errors.Is(err, ErrZombieConnection):
		return "zombie"
	case errors.Is(err, ErrReconnectRequested):
		return "reconnect"
	case errors.Is(err, ErrInvalidSession):
		return "invalid_session"
	}
	return "transport"
}
