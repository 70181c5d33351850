package forensics

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"go-guardian/internal/ingest"
	"go-guardian/internal/logging"
	"go-guardian/internal/metrics"
)

// AuditSource fetches audit entries from the platform.
type AuditSource interface {
	AuditLog(ctx context.Context, guildID string, actionType, limit int) ([]ingest.AuditLogEntry, error)
}

type auditKey struct {
	guildID string
	action  int
}

// Correlator answers "who last performed action X in guild G". Entries pushed
// over the gateway are served from memory; misses fall back to the REST
// audit log.
type Correlator struct {
	source AuditSource
	recent *expirable.LRU[auditKey, ingest.AuditLogEntry]
	maxAge time.Duration
	clock  clock.Clock
}

func NewCorrelator(source AuditSource, size int, ttl, maxAge time.Duration, clk clock.Clock) *Correlator {
	if clk == nil {
		clk = clock.New()
	}
	return &Correlator{
		source: source,
		recent: expirable.NewLRU[auditKey, ingest.AuditLogEntry](size, nil, ttl),
		maxAge: maxAge,
		clock:  clk,
	}
}

// Observe records an entry delivered by GUILD_AUDIT_LOG_ENTRY_CREATE.
func (c *Correlator) Observe(entry ingest.AuditLogEntry) {
	if entry.GuildID == "" || entry.ID == "" {
		return
	}
	key := auditKey{entry.GuildID, entry.ActionType}
	if prev, ok := c.recent.Peek(key); ok && newer(prev.ID, entry.ID) {
		return
	}
	c.recent.Add(key, entry)
}

// Latest returns the most recent fresh entry for action in guildID. ok is
// false when nothing usable exists; that is not an error.
func (c *Correlator) Latest(ctx context.Context, guildID string, action int) (ingest.AuditLogEntry, bool, error) {
	if entry, ok := c.recent.Get(auditKey{guildID, action}); ok && c.fresh(entry) {
		metrics.AuditLookups.WithLabelValues("cache").Inc()
		return entry, true, nil
	}

	entries, err := c.source.AuditLog(ctx, guildID, action, 1)
	if err != nil {
		metrics.AuditLookups.WithLabelValues("error").Inc()
		return ingest.AuditLogEntry{}, false, fmt.Errorf("audit lookup %s/%d: %w", guildID, action, err)
	}
	if len(entries) == 0 {
		metrics.AuditLookups.WithLabelValues("empty").Inc()
		return ingest.AuditLogEntry{}, false, nil
	}

	entry := entries[0]
	entry.GuildID = guildID
	if !c.fresh(entry) {
		metrics.AuditLookups.WithLabelValues("stale").Inc()
		logging.Debug("[AUDIT] Ignoring stale entry %s for action %d in %s", entry.ID, action, guildID)
		return ingest.AuditLogEntry{}, false, nil
	}
	metrics.AuditLookups.WithLabelValues("api").Inc()
	return entry, true, nil
}

func (c *Correlator) fresh(entry ingest.AuditLogEntry) bool {
	if c.maxAge <= 0 {
		return true
	}
	created, err := discordgo.SnowflakeTimestamp(entry.ID)
	if err != nil {
		return false
	}
	return c.clock.Since(created) <= c.maxAge
}

// newer reports whether snowflake a was minted after b.
func newer(a, b string) bool {
	ta, errA := discordgo.SnowflakeTimestamp(a)
	tb, errB := discordgo.SnowflakeTimestamp(b)
	if errA != nil || errB != nil {
		return false
	}
	return ta.After(tb)
}
