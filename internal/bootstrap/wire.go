package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go-guardian/internal/bot"
	"go-guardian/internal/config"
	"go-guardian/internal/decision"
	"go-guardian/internal/detectors"
	"go-guardian/internal/dispatcher"
	"go-guardian/internal/forensics"
	"go-guardian/internal/ingest"
	"go-guardian/internal/logging"
	"go-guardian/internal/metrics"
	"go-guardian/internal/state"
	"go-guardian/internal/watchdog"
)

const (
	fallbackGatewayURL = "wss://gateway.discord.gg"
	gatewayGrace       = 30 * time.Second
	watchdogInterval   = 5 * time.Second
)

type Components struct {
	Storage  config.Storage
	Store    *config.Store
	Client   *dispatcher.Client
	Identity *bot.Identity

	Windows  *state.ActionWindows
	Audit    *forensics.Correlator
	Detector *detectors.Detector
	Punisher *decision.Punisher
	Router   *bot.Router

	Gateway *ingest.Supervisor
	// Exporter is nil when metrics are disabled.
	Exporter *metrics.Exporter
	Watchdog *watchdog.Watchdog
}

// Wire builds the component graph over an open storage backend.
func Wire(ctx context.Context, cfg *config.Config, storage config.Storage) (*Components, error) {
	logging.Info("Wiring components...")

	store, err := config.NewStore(storage, cfg.Cache.SettingsSize)
	if err != nil {
		return nil, fmt.Errorf("config store: %w", err)
	}
	if err := store.LoadTrustSets(ctx); err != nil {
		return nil, fmt.Errorf("load trust lists: %w", err)
	}

	client, err := dispatcher.NewClient(cfg.Bot.Token, cfg.Network)
	if err != nil {
		return nil, err
	}

	identity := &bot.Identity{}
	me, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	identity.Set(me.ID)
	logging.Info("Authenticated as %s (%s)", me.Username, me.ID)

	client.Pool().Warmup(ctx, client.BaseURL())

	gateway := cfg.Gateway
	if gateway.URL == "" {
		gateway.URL, err = client.GatewayURL(ctx)
		if err != nil {
			logging.Warn("Gateway discovery failed, using %s: %v", fallbackGatewayURL, err)
			gateway.URL = fallbackGatewayURL
		}
	}

	windows := state.NewActionWindows(cfg.Detection.Window, nil)
	audit := forensics.NewCorrelator(client, cfg.Cache.AuditSize, cfg.Cache.AuditTTL, cfg.Detection.MaxAuditAge, nil)
	policy := bot.TrustSelf(store, identity)
	detector := detectors.NewDetector(policy, windows, cfg.Detection)
	punisher := decision.NewPunisher(audit, client, store, identity.ID, decision.PunisherConfig{
		SettleDelay: cfg.Detection.SettleDelay,
		Cooldown:    cfg.Detection.BanCooldown,
	})

	router := bot.NewRouter()
	guardian := &bot.Guardian{
		Detector:    detector,
		Punisher:    punisher,
		Audit:       audit,
		Policy:      policy,
		Threads:     client,
		Identity:    identity,
		ThreadLimit: cfg.Detection.ThreadLimit,
	}
	guardian.Register(router)

	var (
		exporter *metrics.Exporter
		onHealth func(bool)
	)
	if cfg.Metrics.Enabled {
		exporter = metrics.NewExporter(cfg.Metrics.Addr, diskPath(cfg.Storage))
		onHealth = exporter.SetHealthy
	}
	wd := watchdog.NewWatchdog(watchdogInterval, nil, onHealth)
	wd.Register("gateway", gatewayGrace)

	supervisor := ingest.NewSupervisor(gateway, cfg.Bot.Token, cfg.Runtime.IngestCPU, router,
		ingest.WithStateObserver(func(st ingest.State) {
			wd.Mark("gateway", st == ingest.StateReady)
		}),
	)

	logging.Info("Component wiring complete")
	return &Components{
		Storage:  storage,
		Store:    store,
		Client:   client,
		Identity: identity,
		Windows:  windows,
		Audit:    audit,
		Detector: detector,
		Punisher: punisher,
		Router:   router,
		Gateway:  supervisor,
		Exporter: exporter,
		Watchdog: wd,
	}, nil
}

// diskPath is the filesystem reported by the host collector.
func diskPath(cfg config.StorageConfig) string {
	if cfg.Driver == "sqlite" && cfg.Path != "" {
		if abs, err := filepath.Abs(cfg.Path); err == nil {
			return filepath.Dir(abs)
		}
	}
	return "/"
}
