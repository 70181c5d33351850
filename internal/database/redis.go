package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"go-guardian/internal/config"
)

const redisPrefix = "guardian:"

// RedisStore is the Redis implementation of config.Storage.
type RedisStore struct {
	client *redis.Client
}

var _ config.Storage = (*RedisStore)(nil)

func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func settingsKey(guildID string) string { return redisPrefix + "settings:" + guildID }
func trustKey(list config.TrustList) string {
	return redisPrefix + string(list)
}
func warningsKey(guildID string) string { return redisPrefix + "warnings:" + guildID }
func ignoredKey(guildID string, t config.IgnoreType) string {
	return redisPrefix + "ignored:" + string(t) + ":" + guildID
}
func disabledKey(guildID string) string { return redisPrefix + "disabled:" + guildID }

const (
	prefixesKey   = redisPrefix + "prefixes"
	warningSeqKey = redisPrefix + "warnings:seq"
)

// ===== Settings =====

func (r *RedisStore) LoadSettings(ctx context.Context, guildID string) (map[string]bool, bool, error) {
	raw, err := r.client.HGetAll(ctx, settingsKey(guildID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	out := make(map[string]bool, len(raw))
	for k, v := range raw {
		out[k] = v == "1"
	}
	return out, true, nil
}

func (r *RedisStore) SaveSetting(ctx context.Context, guildID, column string, enabled bool) error {
	if err := config.ValidateColumn(column); err != nil {
		return err
	}
	return r.client.HSet(ctx, settingsKey(guildID), column, boolInt(enabled)).Err()
}

func (r *RedisStore) SaveAllSettings(ctx context.Context, guildID string, enabled bool) error {
	fields := make(map[string]interface{}, len(config.Columns))
	for _, c := range config.Columns {
		fields[c] = boolInt(enabled)
	}
	return r.client.HSet(ctx, settingsKey(guildID), fields).Err()
}

// ===== Trust lists =====

func (r *RedisStore) ListTrusted(ctx context.Context, list config.TrustList) ([]config.TrustEntry, error) {
	if _, err := trustTable(list); err != nil {
		return nil, err
	}
	raw, err := r.client.HGetAll(ctx, trustKey(list)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]config.TrustEntry, 0, len(raw))
	for id, name := range raw {
		entries = append(entries, config.TrustEntry{UserID: id, Username: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries, nil
}

func (r *RedisStore) AddTrusted(ctx context.Context, list config.TrustList, userID, username string) error {
	if _, err := trustTable(list); err != nil {
		return err
	}
	return r.client.HSet(ctx, trustKey(list), userID, username).Err()
}

func (r *RedisStore) RemoveTrusted(ctx context.Context, list config.TrustList, userID string) error {
	if _, err := trustTable(list); err != nil {
		return err
	}
	return r.client.HDel(ctx, trustKey(list), userID).Err()
}

// ===== Prefixes =====

func (r *RedisStore) GetPrefix(ctx context.Context, guildID string) (string, bool, error) {
	p, err := r.client.HGet(ctx, prefixesKey, guildID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p, true, nil
}

func (r *RedisStore) SetPrefix(ctx context.Context, guildID, prefix string) error {
	return r.client.HSet(ctx, prefixesKey, guildID, prefix).Err()
}

// ===== Warnings =====

type redisWarning struct {
	UserID      string `json:"user_id"`
	Reason      string `json:"reason"`
	ModeratorID string `json:"moderator_id"`
	CreatedAt   int64  `json:"created_at"`
}

func (r *RedisStore) AddWarning(ctx context.Context, w config.Warning) (int64, error) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	id, err := r.client.Incr(ctx, warningSeqKey).Result()
	if err != nil {
		return 0, err
	}
	body, err := json.Marshal(redisWarning{
		UserID:      w.UserID,
		Reason:      w.Reason,
		ModeratorID: w.ModeratorID,
		CreatedAt:   w.CreatedAt.Unix(),
	})
	if err != nil {
		return 0, err
	}
	if err := r.client.HSet(ctx, warningsKey(w.GuildID), strconv.FormatInt(id, 10), body).Err(); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *RedisStore) guildWarnings(ctx context.Context, guildID string) ([]config.Warning, error) {
	raw, err := r.client.HGetAll(ctx, warningsKey(guildID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]config.Warning, 0, len(raw))
	for field, body := range raw {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		var rw redisWarning
		if err := json.Unmarshal([]byte(body), &rw); err != nil {
			continue
		}
		out = append(out, config.Warning{
			ID:          id,
			GuildID:     guildID,
			UserID:      rw.UserID,
			Reason:      rw.Reason,
			ModeratorID: rw.ModeratorID,
			CreatedAt:   time.Unix(rw.CreatedAt, 0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *RedisStore) ListWarnings(ctx context.Context, guildID, userID string) ([]config.Warning, error) {
	all, err := r.guildWarnings(ctx, guildID)
	if err != nil {
		return nil, err
	}
	var out []config.Warning
	for _, w := range all {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *RedisStore) DeleteWarning(ctx context.Context, guildID string, id int64) (bool, error) {
	n, err := r.client.HDel(ctx, warningsKey(guildID), strconv.FormatInt(id, 10)).Result()
	return n > 0, err
}

func (r *RedisStore) ClearWarnings(ctx context.Context, guildID, userID string) (int64, error) {
	ws, err := r.ListWarnings(ctx, guildID, userID)
	if err != nil || len(ws) == 0 {
		return 0, err
	}
	fields := make([]string, len(ws))
	for i, w := range ws {
		fields[i] = strconv.FormatInt(w.ID, 10)
	}
	return r.client.HDel(ctx, warningsKey(guildID), fields...).Result()
}

// ===== Ignore lists =====

func (r *RedisStore) AddIgnored(ctx context.Context, guildID string, t config.IgnoreType, id string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, ignoredKey(guildID, t), id).Err()
}

func (r *RedisStore) RemoveIgnored(ctx context.Context, guildID string, t config.IgnoreType, id string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return r.client.SRem(ctx, ignoredKey(guildID, t), id).Err()
}

func (r *RedisStore) IsIgnored(ctx context.Context, guildID string, t config.IgnoreType, id string) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	return r.client.SIsMember(ctx, ignoredKey(guildID, t), id).Result()
}

func (r *RedisStore) ListIgnored(ctx context.Context, guildID string, t config.IgnoreType) ([]string, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	ids, err := r.client.SMembers(ctx, ignoredKey(guildID, t)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// ===== Disabled commands =====

func (r *RedisStore) SetCommandDisabled(ctx context.Context, guildID, command string, disabled bool) error {
	if disabled {
		return r.client.SAdd(ctx, disabledKey(guildID), command).Err()
	}
	return r.client.SRem(ctx, disabledKey(guildID), command).Err()
}

func (r *RedisStore) IsCommandDisabled(ctx context.Context, guildID, command string) (bool, error) {
	return r.client.SIsMember(ctx, disabledKey(guildID), command).Result()
}
