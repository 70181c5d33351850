package decision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-guardian/internal/ingest"
)

const settle = 500 * time.Millisecond

type fakeAudit struct {
	entry ingest.AuditLogEntry
	found bool
	err   error
	calls atomic.Int32
}

func (f *fakeAudit) Latest(_ context.Context, guildID string, _ int) (ingest.AuditLogEntry, bool, error) {
	f.calls.Add(1)
	return f.entry, f.found, f.err
}

type banCall struct {
	guildID, userID, reason string
}

type fakeBanner struct {
	mu    sync.Mutex
	calls []banCall
	err   error
}

func (f *fakeBanner) Ban(_ context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, banCall{guildID, userID, reason})
	return f.err
}

func (f *fakeBanner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type trustSet map[string]bool

func (t trustSet) IsTrusted(id string) bool { return t[id] }

func executor(id string) *fakeAudit {
	return &fakeAudit{entry: ingest.AuditLogEntry{ID: "1", UserID: id}, found: true}
}

// punishNow runs Punish while advancing the mock clock past the settle delay.
func punishNow(p *Punisher, clk *clock.Mock, guildID string, code int) Outcome {
	done := make(chan Outcome, 1)
	go func() { done <- p.Punish(context.Background(), guildID, code) }()
	for {
		select {
		case o := <-done:
			return o
		case <-time.After(5 * time.Millisecond):
			clk.Add(settle)
		}
	}
}

func newTestPunisher(audit AuditLookup, banner Banner, trusted trustSet, cooldown time.Duration) (*Punisher, *clock.Mock) {
	clk := clock.NewMock()
	p := NewPunisher(audit, banner, trusted, func() string { return "bot" }, PunisherConfig{
		SettleDelay: settle,
		Cooldown:    cooldown,
		Clock:       clk,
	})
	return p, clk
}

func TestPunishWithoutAuditEntryDoesNothing(t *testing.T) {
	audit := &fakeAudit{}
	banner := &fakeBanner{}
	p, clk := newTestPunisher(audit, banner, trustSet{}, 0)

	assert.Equal(t, OutcomeNoAudit, punishNow(p, clk, "g1", 22))
	assert.Equal(t, int32(1), audit.calls.Load())
	assert.Zero(t, banner.count())
}

func TestPunishEmptyExecutorOrLookupError(t *testing.T) {
	banner := &fakeBanner{}
	p, clk := newTestPunisher(executor(""), banner, trustSet{}, 0)
	assert.Equal(t, OutcomeNoAudit, punishNow(p, clk, "g1", 22))

	p, clk = newTestPunisher(&fakeAudit{err: errors.New("503")}, banner, trustSet{}, 0)
	assert.Equal(t, OutcomeNoAudit, punishNow(p, clk, "g1", 22))
	assert.Zero(t, banner.count())
}

func TestPunishWaitsForSettleDelay(t *testing.T) {
	audit := executor("evil")
	p, clk := newTestPunisher(audit, &fakeBanner{}, trustSet{}, 0)

	done := make(chan Outcome, 1)
	go func() { done <- p.Punish(context.Background(), "g1", 12) }()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, audit.calls.Load())

	clk.Add(settle)
	select {
	case o := <-done:
		assert.Equal(t, OutcomeBanned, o)
	case <-time.After(5 * time.Second):
		t.Fatal("punish did not complete after the settle delay")
	}
}

func TestPunishSkipsTrustedAndSelf(t *testing.T) {
	banner := &fakeBanner{}

	p, clk := newTestPunisher(executor("admin"), banner, trustSet{"admin": true}, 0)
	assert.Equal(t, OutcomeExempt, punishNow(p, clk, "g1", 22))

	p, clk = newTestPunisher(executor("bot"), banner, trustSet{}, 0)
	assert.Equal(t, OutcomeSelf, punishNow(p, clk, "g1", 22))

	assert.Zero(t, banner.count())
}

func TestPunishBansExecutor(t *testing.T) {
	banner := &fakeBanner{}
	p, clk := newTestPunisher(executor("evil"), banner, trustSet{}, 0)

	assert.Equal(t, OutcomeBanned, punishNow(p, clk, "g1", 22))
	require.Equal(t, 1, banner.count())
	assert.Equal(t, banCall{"g1", "evil", BanReason}, banner.calls[0])
}

func TestPunishFailureIsNotRetried(t *testing.T) {
	banner := &fakeBanner{err: errors.New("missing permissions")}
	p, clk := newTestPunisher(executor("evil"), banner, trustSet{}, time.Minute)

	assert.Equal(t, OutcomeFailed, punishNow(p, clk, "g1", 22))
	assert.Equal(t, 1, banner.count())
}

func TestPunishCooldownSuppressesRepeats(t *testing.T) {
	banner := &fakeBanner{}
	p, clk := newTestPunisher(executor("evil"), banner, trustSet{}, time.Minute)

	assert.Equal(t, OutcomeBanned, punishNow(p, clk, "g1", 10))
	assert.Equal(t, OutcomeDuplicate, punishNow(p, clk, "g1", 10))
	assert.Equal(t, OutcomeBanned, punishNow(p, clk, "g2", 10))

	clk.Add(2 * time.Minute)
	assert.Equal(t, OutcomeBanned, punishNow(p, clk, "g1", 10))
	assert.Equal(t, 3, banner.count())
}

func TestPunishAbortsOnCancel(t *testing.T) {
	audit := executor("evil")
	p, _ := newTestPunisher(audit, &fakeBanner{}, trustSet{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, OutcomeAborted, p.Punish(ctx, "g1", 22))
	assert.Zero(t, audit.calls.Load())
}

func TestCooldownRelease(t *testing.T) {
	clk := clock.NewMock()
	cm := NewCooldownManager(time.Minute, clk)

	assert.True(t, cm.Acquire("g1", "u1"))
	assert.False(t, cm.Acquire("g1", "u1"))
	assert.Equal(t, time.Minute, cm.Remaining("g1", "u1"))

	cm.Release("g1", "u1")
	assert.Zero(t, cm.Remaining("g1", "u1"))
	assert.True(t, cm.Acquire("g1", "u1"))
}
