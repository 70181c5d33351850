package detectors

import (
	"context"

	"go-guardian/internal/config"
	"go-guardian/internal/ingest"
	"go-guardian/internal/logging"
	"go-guardian/internal/metrics"
	"go-guardian/internal/state"
)

// Policy is the read side of the configuration store.
type Policy interface {
	GetSettings(ctx context.Context, guildID string) *config.Settings
	IsTrusted(userID string) bool
}

// Verdict is the outcome of evaluating one event. The zero value means no
// incident.
type Verdict struct {
	Incident   bool
	IncidentID string
	Action     Action
	Count      int
}

// Detector applies guild policy and sliding-window counting to events. It
// never calls the network.
type Detector struct {
	policy    Policy
	windows   *state.ActionWindows
	threshold func(kind string) int
}

func NewDetector(policy Policy, windows *state.ActionWindows, thresholds config.DetectionConfig) *Detector {
	return &Detector{
		policy:    policy,
		windows:   windows,
		threshold: thresholds.ThresholdFor,
	}
}

func (d *Detector) Evaluate(ctx context.Context, ev ingest.Event) Verdict {
	act, ok := Classify(ev)
	if !ok {
		return Verdict{}
	}
	return d.evaluate(ctx, act)
}

func (d *Detector) evaluate(ctx context.Context, act Action) Verdict {
	b := act.Binding
	if !d.policy.GetSettings(ctx, act.GuildID).Enabled(b.Rule) {
		return Verdict{}
	}
	if act.ActorID != "" && d.policy.IsTrusted(act.ActorID) {
		return Verdict{}
	}

	count := 1
	if b.Mode == Counted {
		var fired bool
		count, fired = d.windows.Hit(state.Key{GuildID: act.GuildID, Kind: b.Kind}, d.threshold(b.Kind))
		if !fired {
			return Verdict{}
		}
	}

	response := "alert"
	if b.Punish {
		response = "punish"
	}
	entry := logging.Incident(logging.IncidentLogEntry{
		GuildID: act.GuildID,
		ActorID: act.ActorID,
		Rule:    b.Rule,
		Kind:    b.Kind,
		Count:   count,
		Action:  response,
	})
	metrics.Incidents.WithLabelValues(b.Rule).Inc()

	return Verdict{Incident: true, IncidentID: entry.ID, Action: act, Count: count}
}

// ResetGuild forgets every window of guildID, e.g. after the guild becomes
// available again.
func (d *Detector) ResetGuild(guildID string) {
	d.windows.Reset(guildID)
}
