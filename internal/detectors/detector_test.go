package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-guardian/internal/config"
	"go-guardian/internal/ingest"
	"go-guardian/internal/state"
)

type fakePolicy struct {
	enabled map[string]bool
	trusted map[string]bool
}

func (p *fakePolicy) GetSettings(_ context.Context, guildID string) *config.Settings {
	return config.NewSettings(guildID, p.enabled)
}

func (p *fakePolicy) IsTrusted(userID string) bool {
	return p.trusted[userID]
}

func newTestDetector(clk clock.Clock, threshold int, enabled ...string) (*Detector, *fakePolicy) {
	p := &fakePolicy{enabled: map[string]bool{}, trusted: map[string]bool{}}
	for _, r := range enabled {
		p.enabled[r] = true
	}
	det := NewDetector(p, state.NewActionWindows(10*time.Second, clk), config.DetectionConfig{Threshold: threshold})
	return det, p
}

func ban(guild string) ingest.Event {
	return &ingest.BanEvent{Kind: ingest.EventBanAdd, GuildID: guild, User: ingest.User{ID: "victim"}}
}

func TestDisabledRuleNeverFires(t *testing.T) {
	det, _ := newTestDetector(clock.NewMock(), 1)

	for i := 0; i < 50; i++ {
		assert.False(t, det.Evaluate(context.Background(), ban("g1")).Incident)
		assert.False(t, det.Evaluate(context.Background(), &ingest.RoleDelete{GuildID: "g1", RoleID: "r"}).Incident)
	}
}

func TestTrustedActorNeverFires(t *testing.T) {
	det, p := newTestDetector(clock.NewMock(), 1, config.RuleEveryonePing, config.RuleAutomodCreate)
	p.trusted["admin"] = true

	ping := &ingest.MessageCreate{GuildID: "g1", Content: "@everyone hi", Author: ingest.User{ID: "admin"}}
	for i := 0; i < 10; i++ {
		assert.False(t, det.Evaluate(context.Background(), ping).Incident)
	}

	rule := &ingest.CreatorEvent{Kind: ingest.EventAutoModRuleCreate, GuildID: "g1", CreatorID: "admin"}
	assert.False(t, det.Evaluate(context.Background(), rule).Incident)

	ping.Author.ID = "stranger"
	v := det.Evaluate(context.Background(), ping)
	assert.True(t, v.Incident)
	assert.Equal(t, "stranger", v.Action.ActorID)
}

func TestCountedRuleFiresAtThreshold(t *testing.T) {
	clk := clock.NewMock()
	det, _ := newTestDetector(clk, 3, config.RuleBan)
	ctx := context.Background()

	assert.False(t, det.Evaluate(ctx, ban("g1")).Incident)
	clk.Add(2 * time.Second)
	assert.False(t, det.Evaluate(ctx, ban("g1")).Incident)
	clk.Add(7 * time.Second)

	v := det.Evaluate(ctx, ban("g1"))
	require.True(t, v.Incident)
	assert.Equal(t, 3, v.Count)
	assert.Equal(t, config.RuleBan, v.Action.Binding.Rule)
	assert.Equal(t, AuditMemberBanAdd, v.Action.Binding.AuditAction)
	assert.True(t, v.Action.Binding.Punish)
	assert.NotEmpty(t, v.IncidentID)

	clk.Add(16 * time.Second)
	assert.False(t, det.Evaluate(ctx, ban("g1")).Incident)
}

func TestPerKindThresholdOverride(t *testing.T) {
	p := &fakePolicy{enabled: map[string]bool{config.RuleBan: true, config.RuleKick: true}}
	det := NewDetector(p, state.NewActionWindows(10*time.Second, clock.NewMock()), config.DetectionConfig{
		Threshold:  3,
		Thresholds: map[string]int{"kick": 1},
	})

	kick := &ingest.MemberEvent{Kind: ingest.EventMemberRemove, GuildID: "g1", User: ingest.User{ID: "u"}}
	assert.True(t, det.Evaluate(context.Background(), kick).Incident)
	assert.False(t, det.Evaluate(context.Background(), ban("g1")).Incident)
}

func TestImmediateRuleFiresEveryTime(t *testing.T) {
	det, _ := newTestDetector(clock.NewMock(), 3, config.RuleChannelCreate)
	ev := &ingest.ChannelEvent{Kind: ingest.EventChannelCreate, ID: "c1", GuildID: "g1"}

	for i := 0; i < 3; i++ {
		v := det.Evaluate(context.Background(), ev)
		assert.True(t, v.Incident)
		assert.Equal(t, 1, v.Count)
		assert.Equal(t, AuditChannelCreate, v.Action.Binding.AuditAction)
	}
}

func TestResetGuildClearsWindows(t *testing.T) {
	det, _ := newTestDetector(clock.NewMock(), 2, config.RuleBan)
	ctx := context.Background()

	det.Evaluate(ctx, ban("g1"))
	det.ResetGuild("g1")
	assert.False(t, det.Evaluate(ctx, ban("g1")).Incident)
	assert.True(t, det.Evaluate(ctx, ban("g1")).Incident)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		ev     ingest.Event
		ok     bool
		rule   string
		punish bool
	}{
		{"ban", ban("g1"), true, config.RuleBan, true},
		{"unban", &ingest.BanEvent{Kind: ingest.EventBanRemove, GuildID: "g1"}, true, config.RuleUnban, false},
		{"human joins", &ingest.MemberEvent{Kind: ingest.EventMemberAdd, GuildID: "g1", User: ingest.User{ID: "u"}}, false, "", false},
		{"bot joins", &ingest.MemberEvent{Kind: ingest.EventMemberAdd, GuildID: "g1", User: ingest.User{ID: "b", Bot: true}}, true, config.RuleBot, true},
		{"managed role", &ingest.RoleEvent{Kind: ingest.EventRoleCreate, GuildID: "g1", Role: ingest.Role{ID: "r", Managed: true}}, false, "", false},
		{"role update", &ingest.RoleEvent{Kind: ingest.EventRoleUpdate, GuildID: "g1", Role: ingest.Role{ID: "r"}}, true, config.RuleRoleUpdate, true},
		{"thread", &ingest.ChannelEvent{Kind: ingest.EventThreadCreate, GuildID: "g1", ID: "t"}, false, "", false},
		{"plain message", &ingest.MessageCreate{GuildID: "g1", Content: "hello", Author: ingest.User{ID: "u"}}, false, "", false},
		{"here ping", &ingest.MessageCreate{GuildID: "g1", Content: "@here", Author: ingest.User{ID: "u"}}, true, config.RuleEveryonePing, false},
		{"stickers", &ingest.AssetsUpdate{Kind: ingest.EventStickersUpdate, GuildID: "g1"}, true, config.RuleEmojiDelete, false},
		{"scheduled event", &ingest.CreatorEvent{Kind: ingest.EventScheduledEventDelete, GuildID: "g1"}, true, config.RuleGuildEventDelete, false},
		{"ready", &ingest.Ready{}, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, ok := Classify(tt.ev)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.rule, act.Binding.Rule)
			assert.Equal(t, tt.punish, act.Binding.Punish)
		})
	}
}
