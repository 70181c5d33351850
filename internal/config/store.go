package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"go-guardian/internal/logging"
)

const DefaultPrefix = "!"

// Store is the write-through policy cache shared by detection and
// remediation. Settings reads never block on storage once cached; trust
// lookups are served from memory after LoadTrustSets.
type Store struct {
	storage Storage

	settings *lru.Cache[string, *Settings]
	loads    singleflight.Group
	writeMu  sync.Mutex

	// trustWriteMu serializes trust mutations across their storage call;
	// trustMu only guards the maps.
	trustWriteMu sync.Mutex
	trustMu      sync.RWMutex
	whitelist    map[string]struct{}
	admins    map[string]struct{}

	prefixes *lru.Cache[string, string]
}

func NewStore(storage Storage, cacheSize int) (*Store, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	settings, err := lru.New[string, *Settings](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("settings cache: %w", err)
	}
	prefixes, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("prefix cache: %w", err)
	}

	return &Store{
		storage:   storage,
		settings:  settings,
		prefixes:  prefixes,
		whitelist: make(map[string]struct{}),
		admins:    make(map[string]struct{}),
	}, nil
}

// GetSettings returns the guild's current snapshot. Storage failures yield
// an uncached default snapshot so the event pipeline keeps running.
func (s *Store) GetSettings(ctx context.Context, guildID string) *Settings {
	if snap, ok := s.settings.Get(guildID); ok {
		return snap
	}

	v, err, _ := s.loads.Do(guildID, func() (interface{}, error) {
		snap, err := s.load(ctx, guildID)
		if err != nil {
			return nil, err
		}
		// A writer may have published while we were reading storage.
		if prev, ok, _ := s.settings.PeekOrAdd(guildID, snap); ok {
			return prev, nil
		}
		return snap, nil
	})
	if err != nil {
		logging.Warn("[CONFIG] Settings load failed for guild %s, using defaults: %v", guildID, err)
		return DefaultSettings(guildID)
	}
	return v.(*Settings)
}

func (s *Store) load(ctx context.Context, guildID string) (*Settings, error) {
	values, found, err := s.storage.LoadSettings(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if !found {
		return DefaultSettings(guildID), nil
	}
	return NewSettings(guildID, values), nil
}

// UpdateSetting persists one column and publishes a snapshot with only that
// column changed.
func (s *Store) UpdateSetting(ctx context.Context, guildID, rule string, enabled bool) error {
	if err := ValidateColumn(rule); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.SaveSetting(ctx, guildID, rule, enabled); err != nil {
		return fmt.Errorf("save %s for guild %s: %w", rule, guildID, err)
	}

	base, ok := s.settings.Peek(guildID)
	if !ok {
		loaded, err := s.load(ctx, guildID)
		if err != nil {
			logging.Warn("[CONFIG] Reload after update failed for guild %s: %v", guildID, err)
			loaded = DefaultSettings(guildID)
		}
		base = loaded
	}
	s.settings.Add(guildID, base.with(rule, enabled))

	logging.Info("[CONFIG] Guild %s: %s=%t", guildID, rule, enabled)
	return nil
}

// BulkSetAll sets every column, toggles included, and replaces the snapshot.
func (s *Store) BulkSetAll(ctx context.Context, guildID string, enabled bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.SaveAllSettings(ctx, guildID, enabled); err != nil {
		return fmt.Errorf("save all settings for guild %s: %w", guildID, err)
	}
	s.settings.Add(guildID, uniformSettings(guildID, enabled))

	logging.Info("[CONFIG] Guild %s: all rules set to %t", guildID, enabled)
	return nil
}

// LoadTrustSets replaces both in-memory trust sets from storage.
func (s *Store) LoadTrustSets(ctx context.Context) error {
	s.trustWriteMu.Lock()
	defer s.trustWriteMu.Unlock()

	wl, err := s.storage.ListTrusted(ctx, TrustWhitelist)
	if err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}
	admins, err := s.storage.ListTrusted(ctx, TrustAdmins)
	if err != nil {
		return fmt.Errorf("load admins: %w", err)
	}

	s.trustMu.Lock()
	s.whitelist = toSet(wl)
	s.admins = toSet(admins)
	s.trustMu.Unlock()

	logging.Info("[CONFIG] Loaded %d whitelisted users and %d admins", len(wl), len(admins))
	return nil
}

func toSet(entries []TrustEntry) map[string]struct{} {
	m := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		m[e.UserID] = struct{}{}
	}
	return m
}

func (s *Store) IsWhitelisted(userID string) bool {
	s.trustMu.RLock()
	defer s.trustMu.RUnlock()
	_, ok := s.whitelist[userID]
	return ok
}

func (s *Store) IsAdmin(userID string) bool {
	s.trustMu.RLock()
	defer s.trustMu.RUnlock()
	_, ok := s.admins[userID]
	return ok
}

// IsTrusted reports membership in either trust set.
func (s *Store) IsTrusted(userID string) bool {
	s.trustMu.RLock()
	defer s.trustMu.RUnlock()
	if _, ok := s.whitelist[userID]; ok {
		return true
	}
	_, ok := s.admins[userID]
	return ok
}

func (s *Store) AddWhitelist(ctx context.Context, userID, username string) error {
	return s.addTrusted(ctx, TrustWhitelist, userID, username)
}

func (s *Store) RemoveWhitelist(ctx context.Context, userID string) error {
	return s.removeTrusted(ctx, TrustWhitelist, userID)
}

func (s *Store) AddAdmin(ctx context.Context, userID, username string) error {
	return s.addTrusted(ctx, TrustAdmins, userID, username)
}

func (s *Store) RemoveAdmin(ctx context.Context, userID string) error {
	return s.removeTrusted(ctx, TrustAdmins, userID)
}

// Whitelist lists whitelisted users with their stored display names.
func (s *Store) Whitelist(ctx context.Context) ([]TrustEntry, error) {
	return s.listTrusted(ctx, TrustWhitelist)
}

func (s *Store) Admins(ctx context.Context) ([]TrustEntry, error) {
	return s.listTrusted(ctx, TrustAdmins)
}

// The set is only touched after storage accepted the change.
func (s *Store) addTrusted(ctx context.Context, list TrustList, userID, username string) error {
	s.trustWriteMu.Lock()
	defer s.trustWriteMu.Unlock()

	if err := s.storage.AddTrusted(ctx, list, userID, username); err != nil {
		return fmt.Errorf("add %s to %s: %w", userID, list, err)
	}
	s.trustMu.Lock()
	s.set(list)[userID] = struct{}{}
	s.trustMu.Unlock()
	return nil
}

func (s *Store) removeTrusted(ctx context.Context, list TrustList, userID string) error {
	s.trustWriteMu.Lock()
	defer s.trustWriteMu.Unlock()

	if err := s.storage.RemoveTrusted(ctx, list, userID); err != nil {
		return fmt.Errorf("remove %s from %s: %w", userID, list, err)
	}
	s.trustMu.Lock()
	delete(s.set(list), userID)
	s.trustMu.Unlock()
	return nil
}

func (s *Store) set(list TrustList) map[string]struct{} {
	if list == TrustAdmins {
		return s.admins
	}
	return s.whitelist
}

func (s *Store) listTrusted(ctx context.Context, list TrustList) ([]TrustEntry, error) {
	entries, err := s.storage.ListTrusted(ctx, list)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries, nil
}

// Prefix returns the guild's command prefix, DefaultPrefix when unset or
// unreadable.
func (s *Store) Prefix(ctx context.Context, guildID string) string {
	if p, ok := s.prefixes.Get(guildID); ok {
		return p
	}
	p, found, err := s.storage.GetPrefix(ctx, guildID)
	if err != nil {
		logging.Warn("[CONFIG] Prefix load failed for guild %s: %v", guildID, err)
		return DefaultPrefix
	}
	if !found {
		p = DefaultPrefix
	}
	s.prefixes.Add(guildID, p)
	return p
}

func (s *Store) SetPrefix(ctx context.Context, guildID, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("empty prefix")
	}
	if err := s.storage.SetPrefix(ctx, guildID, prefix); err != nil {
		return fmt.Errorf("save prefix for guild %s: %w", guildID, err)
	}
	s.prefixes.Add(guildID, prefix)
	return nil
}

func (s *Store) AddWarning(ctx context.Context, w Warning) (int64, error) {
	return s.storage.AddWarning(ctx, w)
}

func (s *Store) Warnings(ctx context.Context, guildID, userID string) ([]Warning, error) {
	return s.storage.ListWarnings(ctx, guildID, userID)
}

func (s *Store) RemoveWarning(ctx context.Context, guildID string, id int64) (bool, error) {
	return s.storage.DeleteWarning(ctx, guildID, id)
}

func (s *Store) ClearWarnings(ctx context.Context, guildID, userID string) (int64, error) {
	return s.storage.ClearWarnings(ctx, guildID, userID)
}

func (s *Store) Ignore(ctx context.Context, guildID string, t IgnoreType, id string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.storage.AddIgnored(ctx, guildID, t, id)
}

func (s *Store) Unignore(ctx context.Context, guildID string, t IgnoreType, id string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.storage.RemoveIgnored(ctx, guildID, t, id)
}

// IsIgnored is false on storage errors.
func (s *Store) IsIgnored(ctx context.Context, guildID string, t IgnoreType, id string) bool {
	if t.Validate() != nil {
		return false
	}
	ok, err := s.storage.IsIgnored(ctx, guildID, t, id)
	if err != nil {
		logging.Warn("[CONFIG] Ignore lookup failed for guild %s: %v", guildID, err)
		return false
	}
	return ok
}

func (s *Store) IgnoredItems(ctx context.Context, guildID string, t IgnoreType) ([]string, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return s.storage.ListIgnored(ctx, guildID, t)
}

func (s *Store) SetCommandDisabled(ctx context.Context, guildID, command string, disabled bool) error {
	return s.storage.SetCommandDisabled(ctx, guildID, command, disabled)
}

func (s *Store) IsCommandDisabled(ctx context.Context, guildID, command string) bool {
	ok, err := s.storage.IsCommandDisabled(ctx, guildID, command)
	if err != nil {
		logging.Warn("[CONFIG] Command lookup failed for guild %s: %v", guildID, err)
		return false
	}
	return ok
}
