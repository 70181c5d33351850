package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	gobreaker "github.com/sony/gobreaker/v2"

	"go-guardian/internal/config"
	"go-guardian/internal/ingest"
	"go-guardian/internal/logging"
)

// ActionAPI is the outbound surface used to inspect and remediate a guild.
type ActionAPI interface {
	Ban(ctx context.Context, guildID, userID, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Timeout(ctx context.Context, guildID, userID string, until *time.Time) error
	ModifyChannelPermissions(ctx context.Context, channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error
	BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error
	AuditLog(ctx context.Context, guildID string, actionType, limit int) ([]ingest.AuditLogEntry, error)
	ActiveThreads(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	CreateRole(ctx context.Context, guildID string, params *discordgo.RoleParams) (*discordgo.Role, error)
	ModifyRolePosition(ctx context.Context, guildID, roleID string, position int) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	Roles(ctx context.Context, guildID string) ([]*discordgo.Role, error)
	Channels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	Members(ctx context.Context, guildID, after string, limit int) ([]*discordgo.Member, error)
	Bans(ctx context.Context, guildID string, limit int) ([]*discordgo.GuildBan, error)
	CurrentUser(ctx context.Context) (*discordgo.User, error)
	GatewayURL(ctx context.Context) (string, error)
}

// Client sends bans and kicks over the fasthttp pool behind a circuit
// breaker and everything else through discordgo's REST client. While the
// breaker is open bans and kicks go through discordgo instead.
type Client struct {
	rest    *discordgo.Session
	fast    *RemediationClient
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewClient(token string, netCfg config.NetworkConfig) (*Client, error) {
	rest, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create rest session: %w", err)
	}
	rest.Client = &http.Client{Timeout: netCfg.RequestTimeout}
	rest.MaxRestRetries = 0
	rest.ShouldRetryOnRateLimit = false

	pool := NewHTTPPool(netCfg.HTTPPoolSize, netCfg.RequestTimeout)
	fast := NewRemediationClient(netCfg.APIBaseURL, token, netCfg.RequestTimeout, pool, NewRateLimitMonitor(nil))
	return newClient(rest, fast), nil
}

func newClient(rest *discordgo.Session, fast *RemediationClient) *Client {
	c := &Client{rest: rest, fast: fast}
	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "remediation",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// An answer from the platform, even a refusal, means the path works.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || errors.As(err, &se) || errors.Is(err, ErrRateLimited)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("[DISPATCH] Breaker %s: %s -> %s", name, from, to)
		},
	})
	return c
}

// Pool exposes the fasthttp pool for warmup at startup.
func (c *Client) Pool() *HTTPPool {
	return c.fast.httpPool
}

func (c *Client) BaseURL() string {
	return c.fast.baseURL
}

func (c *Client) viaBreaker(fast func() error, fallback func() error) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fast()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fallback()
	}
	return err
}

func (c *Client) Ban(ctx context.Context, guildID, userID, reason string) error {
	return c.viaBreaker(
		func() error { return c.fast.Ban(ctx, guildID, userID, reason) },
		func() error {
			return c.rest.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx))
		},
	)
}

func (c *Client) Kick(ctx context.Context, guildID, userID, reason string) error {
	return c.viaBreaker(
		func() error { return c.fast.Kick(ctx, guildID, userID, reason) },
		func() error {
			return c.rest.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
		},
	)
}

func (c *Client) Timeout(ctx context.Context, guildID, userID string, until *time.Time) error {
	return c.rest.GuildMemberTimeout(guildID, userID, until, discordgo.WithContext(ctx))
}

func (c *Client) ModifyChannelPermissions(ctx context.Context, channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error {
	return c.rest.ChannelPermissionSet(channelID, targetID, targetType, allow, deny, discordgo.WithContext(ctx))
}

func (c *Client) BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	return c.rest.ChannelMessagesBulkDelete(channelID, messageIDs, discordgo.WithContext(ctx))
}

func (c *Client) AuditLog(ctx context.Context, guildID string, actionType, limit int) ([]ingest.AuditLogEntry, error) {
	log, err := c.rest.GuildAuditLog(guildID, "", "", actionType, limit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	out := make([]ingest.AuditLogEntry, 0, len(log.AuditLogEntries))
	for _, e := range log.AuditLogEntries {
		entry := ingest.AuditLogEntry{
			ID:       e.ID,
			GuildID:  guildID,
			UserID:   e.UserID,
			TargetID: e.TargetID,
			Reason:   e.Reason,
		}
		if e.ActionType != nil {
			entry.ActionType = int(*e.ActionType)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (c *Client) ActiveThreads(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	list, err := c.rest.GuildThreadsActive(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return list.Threads, nil
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.rest.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return err
}

func (c *Client) CreateRole(ctx context.Context, guildID string, params *discordgo.RoleParams) (*discordgo.Role, error) {
	return c.rest.GuildRoleCreate(guildID, params, discordgo.WithContext(ctx))
}

func (c *Client) ModifyRolePosition(ctx context.Context, guildID, roleID string, position int) error {
	_, err := c.rest.GuildRoleReorder(guildID, []*discordgo.Role{{ID: roleID, Position: position}}, discordgo.WithContext(ctx))
	return err
}

func (c *Client) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.rest.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (c *Client) Roles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	return c.rest.GuildRoles(guildID, discordgo.WithContext(ctx))
}

func (c *Client) Channels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	return c.rest.GuildChannels(guildID, discordgo.WithContext(ctx))
}

func (c *Client) Members(ctx context.Context, guildID, after string, limit int) ([]*discordgo.Member, error) {
	return c.rest.GuildMembers(guildID, after, limit, discordgo.WithContext(ctx))
}

func (c *Client) Bans(ctx context.Context, guildID string, limit int) ([]*discordgo.GuildBan, error) {
	return c.rest.GuildBans(guildID, limit, "", "", discordgo.WithContext(ctx))
}

func (c *Client) CurrentUser(ctx context.Context) (*discordgo.User, error) {
	return c.rest.User("@me", discordgo.WithContext(ctx))
}

// GatewayURL asks the platform where to connect.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	resp, err := c.rest.GatewayBot(discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("gateway discovery: %w", err)
	}
	return resp.URL, nil
}
