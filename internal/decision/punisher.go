package decision

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"go-guardian/internal/ingest"
	"go-guardian/internal/logging"
	"go-guardian/internal/metrics"
)

// BanReason is written to the guild audit log for every ban we issue.
const BanReason = "Antinuke: Unauthorized Action"

type Outcome int

const (
	OutcomeNoAudit Outcome = iota
	OutcomeExempt
	OutcomeSelf
	OutcomeDuplicate
	OutcomeBanned
	OutcomeFailed
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoAudit:
		return "no_audit"
	case OutcomeExempt:
		return "exempt"
	case OutcomeSelf:
		return "self"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeBanned:
		return "banned"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	}
	return "unknown"
}

type AuditLookup interface {
	Latest(ctx context.Context, guildID string, action int) (ingest.AuditLogEntry, bool, error)
}

type Banner interface {
	Ban(ctx context.Context, guildID, userID, reason string) error
}

type TrustChecker interface {
	IsTrusted(userID string) bool
}

// Punisher bans whoever the audit log says performed an action.
type Punisher struct {
	audit    AuditLookup
	banner   Banner
	trust    TrustChecker
	selfID   func() string
	settle   time.Duration
	cooldown *CooldownManager
	clock    clock.Clock
}

type PunisherConfig struct {
	SettleDelay time.Duration
	// Cooldown suppresses repeat bans of one executor; zero disables it.
	Cooldown time.Duration
	Clock    clock.Clock
}

func NewPunisher(audit AuditLookup, banner Banner, trust TrustChecker, selfID func() string, cfg PunisherConfig) *Punisher {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	p := &Punisher{
		audit:  audit,
		banner: banner,
		trust:  trust,
		selfID: selfID,
		settle: cfg.SettleDelay,
		clock:  cfg.Clock,
	}
	if cfg.Cooldown > 0 {
		p.cooldown = NewCooldownManager(cfg.Cooldown, cfg.Clock)
	}
	return p
}

// Punish waits for the audit log to settle, then bans the executor of the
// most recent action of type actionCode. Failures are logged and never
// retried.
func (p *Punisher) Punish(ctx context.Context, guildID string, actionCode int) Outcome {
	outcome := p.punish(ctx, guildID, actionCode)
	metrics.Punishments.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (p *Punisher) punish(ctx context.Context, guildID string, actionCode int) Outcome {
	if p.settle > 0 {
		timer := p.clock.Timer(p.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return OutcomeAborted
		case <-timer.C:
		}
	}

	entry, ok, err := p.audit.Latest(ctx, guildID, actionCode)
	if err != nil {
		logging.Warn("[PUNISH] Audit lookup failed for guild %s action %d: %v", guildID, actionCode, err)
		return OutcomeNoAudit
	}
	if !ok || entry.UserID == "" {
		logging.Debug("[PUNISH] No audit entry for guild %s action %d", guildID, actionCode)
		return OutcomeNoAudit
	}

	executor := entry.UserID
	if p.trust.IsTrusted(executor) {
		return OutcomeExempt
	}
	if p.selfID != nil && executor == p.selfID() {
		return OutcomeSelf
	}
	if p.cooldown != nil && !p.cooldown.Acquire(guildID, executor) {
		return OutcomeDuplicate
	}

	logging.Warn("[PUNISH] Banning %s in guild %s for action %d", executor, guildID, actionCode)
	if err := p.banner.Ban(ctx, guildID, executor, BanReason); err != nil {
		if p.cooldown != nil {
			p.cooldown.Release(guildID, executor)
		}
		logging.Error("[PUNISH] Failed to ban %s in guild %s: %v", executor, guildID, err)
		return OutcomeFailed
	}
	return OutcomeBanned
}
