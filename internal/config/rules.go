package config

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const DefaultIntents = int(discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildModeration |
	discordgo.IntentGuildEmojis |
	discordgo.IntentGuildWebhooks |
	discordgo.IntentGuildMessages |
	discordgo.IntentMessageContent |
	discordgo.IntentAutoModerationConfiguration)

// Rule names double as storage column names.
const (
	RuleBan              = "anti_ban"
	RuleUnban            = "anti_unban"
	RuleKick             = "anti_kick"
	RuleBot              = "anti_bot"
	RulePrune            = "anti_prune"
	RuleChannelCreate    = "anti_channel_create"
	RuleChannelUpdate    = "anti_channel_update"
	RuleChannelDelete    = "anti_channel_delete"
	RuleRoleCreate       = "anti_role_create"
	RuleRoleUpdate       = "anti_role_update"
	RuleRoleDelete       = "anti_role_delete"
	RuleMemberRoleUpdate = "anti_member_role_update"
	RuleEveryonePing     = "anti_everyone_ping"
	RuleServerUpdate     = "anti_server_update"
	RuleEmojiCreate      = "anti_emoji_create"
	RuleEmojiUpdate      = "anti_emoji_update"
	RuleEmojiDelete      = "anti_emoji_delete"
	RuleStickerCreate    = "anti_sticker_create"
	RuleStickerUpdate    = "anti_sticker_update"
	RuleStickerDelete    = "anti_sticker_delete"
	RuleWebhookCreate    = "anti_webhook_create"
	RuleWebhookUpdate    = "anti_webhook_update"
	RuleWebhookDelete    = "anti_webhook_delete"
	RuleAutomodCreate    = "anti_automod_create"
	RuleAutomodUpdate    = "anti_automod_update"
	RuleAutomodDelete    = "anti_automod_delete"
	RuleGuildEventCreate = "anti_guild_event_create"
	RuleGuildEventUpdate = "anti_guild_event_update"
	RuleGuildEventDelete = "anti_guild_event_delete"
	SettingAutoRecovery  = "auto_recovery"
	SettingThreadLock    = "thread_lock_enabled"
)

// Rules lists every detection rule in storage column order.
var Rules = []string{
	RuleBan, RuleUnban, RuleKick, RuleBot, RulePrune,
	RuleChannelCreate, RuleChannelUpdate, RuleChannelDelete,
	RuleRoleCreate, RuleRoleUpdate, RuleRoleDelete, RuleMemberRoleUpdate,
	RuleEveryonePing, RuleServerUpdate,
	RuleEmojiCreate, RuleEmojiUpdate, RuleEmojiDelete,
	RuleStickerCreate, RuleStickerUpdate, RuleStickerDelete,
	RuleWebhookCreate, RuleWebhookUpdate, RuleWebhookDelete,
	RuleAutomodCreate, RuleAutomodUpdate, RuleAutomodDelete,
	RuleGuildEventCreate, RuleGuildEventUpdate, RuleGuildEventDelete,
}

// Columns is Rules followed by the two guild toggles.
var Columns = append(append([]string{}, Rules...), SettingAutoRecovery, SettingThreadLock)

var ErrUnknownRule = errors.New("unknown rule")

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(Columns))
	for i, c := range Columns {
		m[c] = i
	}
	return m
}()

// ValidateColumn reports ErrUnknownRule for names outside Columns.
func ValidateColumn(name string) error {
	if _, ok := columnIndex[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	return nil
}

// ColumnDefault is the value a column takes when a guild has no row.
func ColumnDefault(name string) bool {
	return name == SettingThreadLock
}
