package config

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type TrustList string

const (
	TrustWhitelist TrustList = "whitelist"
	TrustAdmins    TrustList = "admins"
)

type TrustEntry struct {
	UserID   string
	Username string
}

type IgnoreType string

const (
	IgnoreChannel IgnoreType = "channel"
	IgnoreRole    IgnoreType = "role"
	IgnoreUser    IgnoreType = "user"
)

var ErrUnknownIgnoreType = errors.New("unknown ignore type")

func (t IgnoreType) Validate() error {
	switch t {
	case IgnoreChannel, IgnoreRole, IgnoreUser:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownIgnoreType, string(t))
}

type Warning struct {
	ID          int64
	GuildID     string
	UserID      string
	Reason      string
	ModeratorID string
	CreatedAt   time.Time
}

// SettingsStorage persists per-guild rule columns. LoadSettings reports
// found=false when the guild has no row.
type SettingsStorage interface {
	LoadSettings(ctx context.Context, guildID string) (values map[string]bool, found bool, err error)
	SaveSetting(ctx context.Context, guildID, column string, enabled bool) error
	SaveAllSettings(ctx context.Context, guildID string, enabled bool) error
}

type TrustStorage interface {
	ListTrusted(ctx context.Context, list TrustList) ([]TrustEntry, error)
	AddTrusted(ctx context.Context, list TrustList, userID, username string) error
	RemoveTrusted(ctx context.Context, list TrustList, userID string) error
}

// LedgerStorage holds the moderation records served alongside policy.
type LedgerStorage interface {
	GetPrefix(ctx context.Context, guildID string) (prefix string, found bool, err error)
	SetPrefix(ctx context.Context, guildID, prefix string) error

	AddWarning(ctx context.Context, w Warning) (int64, error)
	ListWarnings(ctx context.Context, guildID, userID string) ([]Warning, error)
	DeleteWarning(ctx context.Context, guildID string, id int64) (bool, error)
	ClearWarnings(ctx context.Context, guildID, userID string) (int64, error)

	AddIgnored(ctx context.Context, guildID string, t IgnoreType, id string) error
	RemoveIgnored(ctx context.Context, guildID string, t IgnoreType, id string) error
	IsIgnored(ctx context.Context, guildID string, t IgnoreType, id string) (bool, error)
	ListIgnored(ctx context.Context, guildID string, t IgnoreType) ([]string, error)

	SetCommandDisabled(ctx context.Context, guildID, command string, disabled bool) error
	IsCommandDisabled(ctx context.Context, guildID, command string) (bool, error)
}

type Storage interface {
	SettingsStorage
	TrustStorage
	LedgerStorage
	Close() error
}
