package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"go-guardian/internal/config"
	"go-guardian/internal/decision"
	"go-guardian/internal/detectors"
	"go-guardian/internal/ingest"
	"go-guardian/internal/logging"
	"go-guardian/internal/metrics"
)

type Evaluator interface {
	Evaluate(ctx context.Context, ev ingest.Event) detectors.Verdict
	ResetGuild(guildID string)
}

type Punisher interface {
	Punish(ctx context.Context, guildID string, actionCode int) decision.Outcome
}

type AuditObserver interface {
	Observe(entry ingest.AuditLogEntry)
}

type ThreadAPI interface {
	ActiveThreads(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

// Guardian wires detection, punishment and thread lock onto a Router.
type Guardian struct {
	Detector    Evaluator
	Punisher    Punisher
	Audit       AuditObserver
	Policy      detectors.Policy
	Threads     ThreadAPI
	Identity    *Identity
	ThreadLimit int
}

// detectedEvents are the dispatch types some rule guards.
var detectedEvents = []string{
	ingest.EventBanAdd, ingest.EventBanRemove,
	ingest.EventMemberAdd, ingest.EventMemberRemove, ingest.EventMemberUpdate,
	ingest.EventChannelCreate, ingest.EventChannelUpdate, ingest.EventChannelDelete,
	ingest.EventRoleCreate, ingest.EventRoleUpdate, ingest.EventRoleDelete,
	ingest.EventGuildUpdate, ingest.EventEmojisUpdate, ingest.EventStickersUpdate,
	ingest.EventWebhooksUpdate, ingest.EventMessageCreate,
	ingest.EventAutoModRuleCreate, ingest.EventAutoModRuleUpdate, ingest.EventAutoModRuleDelete,
	ingest.EventScheduledEventCreate, ingest.EventScheduledEventUpdate, ingest.EventScheduledEventDelete,
}

func (g *Guardian) Register(r *Router) {
	r.Register(ingest.EventReady, g.onReady)
	r.Register(ingest.EventGuildCreate, g.onGuildCreate)
	r.Register(ingest.EventAuditLogEntryCreate, g.onAuditEntry)
	r.Register(ingest.EventThreadCreate, g.onThreadCreate)
	for _, t := range detectedEvents {
		r.Register(t, g.onDetectable)
	}
}

func (g *Guardian) onReady(_ context.Context, ev ingest.Event) {
	ready := ev.(*ingest.Ready)
	if ready.User.ID != "" {
		g.Identity.Set(ready.User.ID)
	}
	logging.Info("[BOT] Ready as %s (%s) in %d guilds", ready.User.Username, ready.User.ID, len(ready.Guilds))
}

func (g *Guardian) onGuildCreate(_ context.Context, ev ingest.Event) {
	gc := ev.(*ingest.GuildCreate)
	g.Detector.ResetGuild(gc.ID)
	logging.Info("[BOT] Guild available: %s (%s)", gc.Name, gc.ID)
}

func (g *Guardian) onAuditEntry(_ context.Context, ev ingest.Event) {
	g.Audit.Observe(*ev.(*ingest.AuditLogEntry))
}

func (g *Guardian) onDetectable(ctx context.Context, ev ingest.Event) {
	v := g.Detector.Evaluate(ctx, ev)
	if !v.Incident || !v.Action.Binding.Punish {
		return
	}

	outcome := g.Punisher.Punish(ctx, v.Action.GuildID, v.Action.Binding.AuditAction)
	logging.Info("[BOT] Incident %s (%s) in %s: %s", v.IncidentID, v.Action.Binding.Rule, v.Action.GuildID, outcome)
}

// onThreadCreate deletes new threads from untrusted owners once the guild is
// over its active thread limit.
func (g *Guardian) onThreadCreate(ctx context.Context, ev ingest.Event) {
	th := ev.(*ingest.ChannelEvent)
	if !g.Policy.GetSettings(ctx, th.GuildID).ThreadLock() {
		return
	}
	if g.Policy.IsTrusted(th.OwnerID) || g.Identity.Is(th.OwnerID) {
		return
	}

	active, err := g.Threads.ActiveThreads(ctx, th.GuildID)
	if err != nil {
		logging.Warn("[THREAD LOCK] Listing threads in %s: %v", th.GuildID, err)
		return
	}
	if len(active) <= g.ThreadLimit {
		return
	}

	logging.Warn("[THREAD LOCK] %d active threads in %s, deleting %s", len(active), th.GuildID, th.ID)
	if err := g.Threads.DeleteChannel(ctx, th.ID); err != nil {
		logging.Error("[THREAD LOCK] Deleting thread %s: %v", th.ID, err)
		return
	}
	metrics.ThreadLockDeletes.Inc()
}

// selfTrusting treats the bot's own actions as trusted.
type selfTrusting struct {
	detectors.Policy
	identity *Identity
}

func (s selfTrusting) IsTrusted(userID string) bool {
	return s.identity.Is(userID) || s.Policy.IsTrusted(userID)
}

// TrustSelf wraps policy so the bot never raises incidents against itself.
func TrustSelf(policy detectors.Policy, id *Identity) detectors.Policy {
	return selfTrusting{Policy: policy, identity: id}
}

var _ detectors.Policy = (*config.Store)(nil)
