package ingest

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Dispatch event names consumed by the router.
const (
	EventReady                = "READY"
	EventResumed              = "RESUMED"
	EventGuildCreate          = "GUILD_CREATE"
	EventGuildUpdate          = "GUILD_UPDATE"
	EventBanAdd               = "GUILD_BAN_ADD"
	EventBanRemove            = "GUILD_BAN_REMOVE"
	EventMemberAdd            = "GUILD_MEMBER_ADD"
	EventMemberRemove         = "GUILD_MEMBER_REMOVE"
	EventMemberUpdate         = "GUILD_MEMBER_UPDATE"
	EventChannelCreate        = "CHANNEL_CREATE"
	EventChannelUpdate        = "CHANNEL_UPDATE"
	EventChannelDelete        = "CHANNEL_DELETE"
	EventThreadCreate         = "THREAD_CREATE"
	EventRoleCreate           = "GUILD_ROLE_CREATE"
	EventRoleUpdate           = "GUILD_ROLE_UPDATE"
	EventRoleDelete           = "GUILD_ROLE_DELETE"
	EventEmojisUpdate         = "GUILD_EMOJIS_UPDATE"
	EventStickersUpdate       = "GUILD_STICKERS_UPDATE"
	EventWebhooksUpdate       = "WEBHOOKS_UPDATE"
	EventMessageCreate        = "MESSAGE_CREATE"
	EventAuditLogEntryCreate  = "GUILD_AUDIT_LOG_ENTRY_CREATE"
	EventAutoModRuleCreate    = "AUTO_MODERATION_RULE_CREATE"
	EventAutoModRuleUpdate    = "AUTO_MODERATION_RULE_UPDATE"
	EventAutoModRuleDelete    = "AUTO_MODERATION_RULE_DELETE"
	EventScheduledEventCreate = "GUILD_SCHEDULED_EVENT_CREATE"
	EventScheduledEventUpdate = "GUILD_SCHEDULED_EVENT_UPDATE"
	EventScheduledEventDelete = "GUILD_SCHEDULED_EVENT_DELETE"
)

var (
	ErrUnknownEvent = errors.New("no decoder for event type")
	ErrMissingField = errors.New("missing required field")
)

// Event is a decoded dispatch payload.
type Event interface {
	Type() string
	// Guild is empty for events not scoped to a guild.
	Guild() string
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type Ready struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	User             User   `json:"user"`
	Guilds           []struct {
		ID string `json:"id"`
	} `json:"guilds"`
}

func (*Ready) Type() string  { return EventReady }
func (*Ready) Guild() string { return "" }

type Resumed struct{}

func (*Resumed) Type() string  { return EventResumed }
func (*Resumed) Guild() string { return "" }

type GuildCreate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

func (*GuildCreate) Type() string    { return EventGuildCreate }
func (g *GuildCreate) Guild() string { return g.ID }

type GuildUpdate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

func (*GuildUpdate) Type() string    { return EventGuildUpdate }
func (g *GuildUpdate) Guild() string { return g.ID }

// BanEvent carries GUILD_BAN_ADD and GUILD_BAN_REMOVE.
type BanEvent struct {
	Kind    string `json:"-"`
	GuildID string `json:"guild_id"`
	User    User   `json:"user"`
}

func (b *BanEvent) Type() string  { return b.Kind }
func (b *BanEvent) Guild() string { return b.GuildID }

// MemberEvent carries member add, remove and update.
type MemberEvent struct {
	Kind    string   `json:"-"`
	GuildID string   `json:"guild_id"`
	User    User     `json:"user"`
	Roles   []string `json:"roles"`
}

func (m *MemberEvent) Type() string  { return m.Kind }
func (m *MemberEvent) Guild() string { return m.GuildID }

// ChannelEvent carries channel create, update, delete and thread create.
type ChannelEvent struct {
	Kind        string `json:"-"`
	ID          string `json:"id"`
	GuildID     string `json:"guild_id"`
	Name        string `json:"name"`
	ChannelType int    `json:"type"`
	ParentID    string `json:"parent_id"`
	OwnerID     string `json:"owner_id"`
}

func (c *ChannelEvent) Type() string  { return c.Kind }
func (c *ChannelEvent) Guild() string { return c.GuildID }

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Managed     bool   `json:"managed"`
	Permissions string `json:"permissions"`
}

// RoleEvent carries role create and update.
type RoleEvent struct {
	Kind    string `json:"-"`
	GuildID string `json:"guild_id"`
	Role    Role   `json:"role"`
}

func (r *RoleEvent) Type() string  { return r.Kind }
func (r *RoleEvent) Guild() string { return r.GuildID }

type RoleDelete struct {
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
}

func (*RoleDelete) Type() string    { return EventRoleDelete }
func (r *RoleDelete) Guild() string { return r.GuildID }

// AssetsUpdate carries emoji and sticker list replacements.
type AssetsUpdate struct {
	Kind     string `json:"-"`
	GuildID  string `json:"guild_id"`
	Emojis   []struct {
		ID string `json:"id"`
	} `json:"emojis"`
	Stickers []struct {
		ID string `json:"id"`
	} `json:"stickers"`
}

func (a *AssetsUpdate) Type() string  { return a.Kind }
func (a *AssetsUpdate) Guild() string { return a.GuildID }

type WebhooksUpdate struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}

func (*WebhooksUpdate) Type() string    { return EventWebhooksUpdate }
func (w *WebhooksUpdate) Guild() string { return w.GuildID }

type MessageCreate struct {
	ID              string `json:"id"`
	GuildID         string `json:"guild_id"`
	ChannelID       string `json:"channel_id"`
	Content         string `json:"content"`
	Author          User   `json:"author"`
	MentionEveryone bool   `json:"mention_everyone"`
}

func (*MessageCreate) Type() string    { return EventMessageCreate }
func (m *MessageCreate) Guild() string { return m.GuildID }

type AuditLogEntry struct {
	ID         string `json:"id"`
	GuildID    string `json:"guild_id"`
	UserID     string `json:"user_id"`
	TargetID   string `json:"target_id"`
	ActionType int    `json:"action_type"`
	Reason     string `json:"reason"`
}

func (*AuditLogEntry) Type() string    { return EventAuditLogEntryCreate }
func (a *AuditLogEntry) Guild() string { return a.GuildID }

// CreatorEvent carries automod rule and scheduled event changes, both of
// which name their creator.
type CreatorEvent struct {
	Kind      string `json:"-"`
	ID        string `json:"id"`
	GuildID   string `json:"guild_id"`
	CreatorID string `json:"creator_id"`
}

func (c *CreatorEvent) Type() string  { return c.Kind }
func (c *CreatorEvent) Guild() string { return c.GuildID }

func missing(eventType, field string) error {
	return fmt.Errorf("%s: %w %q", eventType, ErrMissingField, field)
}

// DecodeEvent decodes the payload of a dispatch frame into its typed form.
// Payloads without the fields detection depends on are rejected.
func DecodeEvent(eventType string, data []byte) (Event, error) {
	var (
		ev    Event
		check func() error
	)

	switch eventType {
	case EventReady:
		r := &Ready{}
		ev, check = r, func() error {
			if r.SessionID == "" {
				return missing(eventType, "session_id")
			}
			return nil
		}
	case EventResumed:
		return &Resumed{}, nil
	case EventGuildCreate:
		g := &GuildCreate{}
		ev, check = g, requireID(eventType, "id", &g.ID)
	case EventGuildUpdate:
		g := &GuildUpdate{}
		ev, check = g, requireID(eventType, "id", &g.ID)
	case EventBanAdd, EventBanRemove:
		b := &BanEvent{Kind: eventType}
		ev, check = b, requireAll(eventType, map[string]*string{"guild_id": &b.GuildID, "user.id": &b.User.ID})
	case EventMemberAdd, EventMemberRemove, EventMemberUpdate:
		m := &MemberEvent{Kind: eventType}
		ev, check = m, requireAll(eventType, map[string]*string{"guild_id": &m.GuildID, "user.id": &m.User.ID})
	case EventChannelCreate, EventChannelUpdate, EventChannelDelete, EventThreadCreate:
		c := &ChannelEvent{Kind: eventType}
		ev, check = c, requireAll(eventType, map[string]*string{"guild_id": &c.GuildID, "id": &c.ID})
	case EventRoleCreate, EventRoleUpdate:
		r := &RoleEvent{Kind: eventType}
		ev, check = r, requireAll(eventType, map[string]*string{"guild_id": &r.GuildID, "role.id": &r.Role.ID})
	case EventRoleDelete:
		r := &RoleDelete{}
		ev, check = r, requireAll(eventType, map[string]*string{"guild_id": &r.GuildID, "role_id": &r.RoleID})
	case EventEmojisUpdate, EventStickersUpdate:
		a := &AssetsUpdate{Kind: eventType}
		ev, check = a, requireID(eventType, "guild_id", &a.GuildID)
	case EventWebhooksUpdate:
		w := &WebhooksUpdate{}
		ev, check = w, requireID(eventType, "guild_id", &w.GuildID)
	case EventMessageCreate:
		m := &MessageCreate{}
		// Direct messages have no guild and are of no interest.
		ev, check = m, requireAll(eventType, map[string]*string{"guild_id": &m.GuildID, "author.id": &m.Author.ID})
	case EventAuditLogEntryCreate:
		a := &AuditLogEntry{}
		ev, check = a, requireAll(eventType, map[string]*string{"guild_id": &a.GuildID, "id": &a.ID})
	case EventAutoModRuleCreate, EventAutoModRuleUpdate, EventAutoModRuleDelete,
		EventScheduledEventCreate, EventScheduledEventUpdate, EventScheduledEventDelete:
		c := &CreatorEvent{Kind: eventType}
		ev, check = c, requireID(eventType, "guild_id", &c.GuildID)
	default:
		return nil, fmt.Errorf("%w %s", ErrUnknownEvent, eventType)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	if err := check(); err != nil {
		return nil, err
	}
	return ev, nil
}

func requireID(eventType, name string, field *string) func() error {
	return func() error {
		if *field == "" {
			return missing(eventType, name)
		}
		return nil
	}
}

func requireAll(eventType string, fields map[string]*string) func() error {
	return func() error {
		for name, f := range fields {
			if *f == "" {
				return missing(eventType, name)
			}
		}
		return nil
	}
}
