package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/thejerf/suture/v4"

	"go-guardian/internal/logging"
)

const handlerDrainTimeout = 10 * time.Second

// Serve runs the gateway supervisor, window sweeper, watchdog and metrics
// exporter under one suture tree until ctx is cancelled.
func Serve(ctx context.Context, c *Components) error {
	tree := suture.New("guardian", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn("[SUPERVISOR] %s", e)
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})

	if c.Gateway != nil {
		tree.Add(c.Gateway)
	}
	tree.Add(c.Windows)
	tree.Add(c.Watchdog)
	if c.Exporter != nil {
		tree.Add(c.Exporter)
	}

	logging.Info("Starting supervisor tree...")
	err := tree.Serve(ctx)

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn("Service %s failed to stop", svc.Name)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown waits for in-flight handlers, then closes storage.
func Shutdown(c *Components) error {
	logging.Info("Starting graceful shutdown...")

	drained := make(chan struct{})
	go func() {
		c.Router.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logging.Info("Handlers drained")
	case <-time.After(handlerDrainTimeout):
		logging.Warn("Handlers still running after %s", handlerDrainTimeout)
	}

	if err := c.Storage.Close(); err != nil {
		logging.Error("Closing storage: %v", err)
		return err
	}

	logging.Info("Graceful shutdown complete")
	return nil
}
