package bootstrap

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"

	"go-guardian/internal/config"
	"go-guardian/internal/database"
	"go-guardian/internal/logging"
	"go-guardian/internal/sys"
)

type Bootstrap struct {
	Config      *config.Config
	Components  *Components
	logOutput   io.WriteCloser
	initialized bool
}

func New(cfg *config.Config) *Bootstrap {
	return &Bootstrap{Config: cfg}
}

// Initialize opens storage, validates the token and wires every component.
// Any error here is fatal to the process.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	if err := b.initializeLogging(); err != nil {
		return fmt.Errorf("logging init failed: %w", err)
	}
	b.initializeRuntime()

	storage, err := database.OpenStorage(ctx, b.Config.Storage)
	if err != nil {
		return fmt.Errorf("storage open failed: %w", err)
	}

	c, err := Wire(ctx, b.Config, storage)
	if err != nil {
		storage.Close()
		return fmt.Errorf("component wiring failed: %w", err)
	}
	b.Components = c

	b.initialized = true
	logging.Info("Bootstrap complete")
	return nil
}

func (b *Bootstrap) initializeLogging() error {
	cfg := logging.Config{
		Level:     b.Config.Logging.Level,
		Format:    b.Config.Logging.Format,
		File:      b.Config.Logging.File,
		MaxSizeMB: b.Config.Logging.MaxSizeMB,
		Async:     b.Config.Logging.Async,
	}
	out, err := logging.OpenOutput(cfg)
	if err != nil {
		return err
	}
	cfg.Output = out
	b.logOutput = out
	logging.InitGlobalLogger(cfg)
	return nil
}

func (b *Bootstrap) initializeRuntime() {
	if pct := b.Config.Runtime.GCPercent; pct != 0 {
		debug.SetGCPercent(pct)
		logging.Info("GC percent set to %d", pct)
	}

	if b.Config.Runtime.MemoryLock {
		if err := sys.LockMemory(); err != nil {
			logging.Warn("Memory lock failed: %v", err)
		} else {
			logging.Info("Memory locked")
		}
	}
}

// Run serves the component tree until ctx is cancelled.
func (b *Bootstrap) Run(ctx context.Context) error {
	if !b.initialized {
		return fmt.Errorf("bootstrap not initialized")
	}
	return Serve(ctx, b.Components)
}

func (b *Bootstrap) Shutdown() error {
	var err error
	if b.Components != nil {
		err = Shutdown(b.Components)
	}
	if b.logOutput != nil {
		b.logOutput.Close()
	}
	return err
}
