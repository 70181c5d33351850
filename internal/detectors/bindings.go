package detectors

import (
	"strings"

	"go-guardian/internal/config"
	"go-guardian/internal/ingest"
)

type Mode int

const (
	// Immediate rules raise an incident for every qualifying event.
	Immediate Mode = iota
	// Counted rules raise an incident when a sliding window fills up.
	Counted
)

func (m Mode) String() string {
	if m == Counted {
		return "counted"
	}
	return "immediate"
}

// Audit log action codes used for correlation.
const (
	AuditGuildUpdate         = 1
	AuditChannelCreate       = 10
	AuditChannelUpdate       = 11
	AuditChannelDelete       = 12
	AuditMemberKick          = 20
	AuditMemberBanAdd        = 22
	AuditMemberBanRemove     = 23
	AuditMemberRoleUpdate    = 25
	AuditBotAdd              = 28
	AuditRoleCreate          = 30
	AuditRoleUpdate          = 31
	AuditRoleDelete          = 32
	AuditWebhookCreate       = 50
	AuditEmojiDelete         = 62
	AuditScheduledEventMin   = 100
	AuditAutoModerationRules = 140
)

// Binding ties an event kind to the rule that guards it.
type Binding struct {
	Rule        string
	Kind        string
	Mode        Mode
	AuditAction int
	// Punish requests audit correlation and a ban of the executor.
	Punish bool
}

var (
	bindBan           = Binding{config.RuleBan, "ban", Counted, AuditMemberBanAdd, true}
	bindKick          = Binding{config.RuleKick, "kick", Counted, AuditMemberKick, true}
	bindChannelDelete = Binding{config.RuleChannelDelete, "channel_delete", Counted, AuditChannelDelete, true}
	bindChannelCreate = Binding{config.RuleChannelCreate, "channel_create", Immediate, AuditChannelCreate, true}
	bindChannelUpdate = Binding{config.RuleChannelUpdate, "channel_update", Immediate, AuditChannelUpdate, false}
	bindRoleCreate    = Binding{config.RuleRoleCreate, "role_create", Immediate, AuditRoleCreate, true}
	bindRoleUpdate    = Binding{config.RuleRoleUpdate, "role_update", Immediate, AuditRoleUpdate, true}
	bindRoleDelete    = Binding{config.RuleRoleDelete, "role_delete", Immediate, AuditRoleDelete, true}
	bindBotAdd        = Binding{config.RuleBot, "bot_add", Immediate, AuditBotAdd, true}
	bindUnban         = Binding{config.RuleUnban, "unban", Immediate, AuditMemberBanRemove, false}
	bindMemberRoles   = Binding{config.RuleMemberRoleUpdate, "member_role_update", Immediate, AuditMemberRoleUpdate, false}
	bindServerUpdate  = Binding{config.RuleServerUpdate, "server_update", Immediate, AuditGuildUpdate, false}
	bindAssets        = Binding{config.RuleEmojiDelete, "assets_update", Immediate, AuditEmojiDelete, false}
	bindWebhooks      = Binding{config.RuleWebhookCreate, "webhooks_update", Immediate, AuditWebhookCreate, false}
	bindEveryonePing  = Binding{config.RuleEveryonePing, "everyone_ping", Immediate, 0, false}
)

var creatorBindings = map[string]Binding{
	ingest.EventAutoModRuleCreate:    {config.RuleAutomodCreate, "automod_create", Immediate, AuditAutoModerationRules, false},
	ingest.EventAutoModRuleUpdate:    {config.RuleAutomodUpdate, "automod_update", Immediate, AuditAutoModerationRules + 1, false},
	ingest.EventAutoModRuleDelete:    {config.RuleAutomodDelete, "automod_delete", Immediate, AuditAutoModerationRules + 2, false},
	ingest.EventScheduledEventCreate: {config.RuleGuildEventCreate, "guild_event_create", Immediate, AuditScheduledEventMin, false},
	ingest.EventScheduledEventUpdate: {config.RuleGuildEventUpdate, "guild_event_update", Immediate, AuditScheduledEventMin + 1, false},
	ingest.EventScheduledEventDelete: {config.RuleGuildEventDelete, "guild_event_delete", Immediate, AuditScheduledEventMin + 2, false},
}

// Action is an event reduced to what policy evaluation needs.
type Action struct {
	GuildID string
	// ActorID is empty when the event does not name who caused it.
	ActorID string
	Binding Binding
}

// Classify maps an event to its guarded action. ok is false for events no
// rule covers.
func Classify(ev ingest.Event) (Action, bool) {
	act := Action{GuildID: ev.Guild()}

	switch e := ev.(type) {
	case *ingest.BanEvent:
		if e.Kind == ingest.EventBanAdd {
			act.Binding = bindBan
		} else {
			act.Binding = bindUnban
		}
	case *ingest.MemberEvent:
		switch e.Kind {
		case ingest.EventMemberRemove:
			act.Binding = bindKick
		case ingest.EventMemberAdd:
			if !e.User.Bot {
				return Action{}, false
			}
			act.Binding = bindBotAdd
		case ingest.EventMemberUpdate:
			act.Binding = bindMemberRoles
		}
	case *ingest.ChannelEvent:
		switch e.Kind {
		case ingest.EventChannelCreate:
			act.Binding = bindChannelCreate
		case ingest.EventChannelUpdate:
			act.Binding = bindChannelUpdate
		case ingest.EventChannelDelete:
			act.Binding = bindChannelDelete
		default:
			return Action{}, false
		}
	case *ingest.RoleEvent:
		// Integration roles are created by the platform when a bot joins.
		if e.Role.Managed {
			return Action{}, false
		}
		if e.Kind == ingest.EventRoleCreate {
			act.Binding = bindRoleCreate
		} else {
			act.Binding = bindRoleUpdate
		}
	case *ingest.RoleDelete:
		act.Binding = bindRoleDelete
	case *ingest.GuildUpdate:
		act.Binding = bindServerUpdate
	case *ingest.AssetsUpdate:
		act.Binding = bindAssets
	case *ingest.WebhooksUpdate:
		act.Binding = bindWebhooks
	case *ingest.MessageCreate:
		if !e.MentionEveryone && !strings.Contains(e.Content, "@everyone") && !strings.Contains(e.Content, "@here") {
			return Action{}, false
		}
		act.ActorID = e.Author.ID
		act.Binding = bindEveryonePing
	case *ingest.CreatorEvent:
		b, ok := creatorBindings[e.Kind]
		if !ok {
			return Action{}, false
		}
		act.ActorID = e.CreatorID
		act.Binding = b
	default:
		return Action{}, false
	}

	if act.Binding.Rule == "" {
		return Action{}, false
	}
	return act, true
}
