package decision

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type cooldownKey struct {
	guildID string
	userID  string
}

// CooldownManager suppresses repeat bans of the same executor while a burst
// of incidents resolves to them.
type CooldownManager struct {
	mu        sync.Mutex
	cooldowns map[cooldownKey]time.Time
	duration  time.Duration
	clock     clock.Clock
}

func NewCooldownManager(duration time.Duration, clk clock.Clock) *CooldownManager {
	if clk == nil {
		clk = clock.New()
	}
	return &CooldownManager{
		cooldowns: make(map[cooldownKey]time.Time),
		duration:  duration,
		clock:     clk,
	}
}

// Acquire claims the (guild, user) slot. It returns false while a previous
// claim is still cooling down.
func (cm *CooldownManager) Acquire(guildID, userID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := cm.clock.Now()
	key := cooldownKey{guildID, userID}
	if last, ok := cm.cooldowns[key]; ok && now.Sub(last) < cm.duration {
		return false
	}
	cm.cooldowns[key] = now
	cm.prune(now)
	return true
}

// Release drops a claim so the next incident may try again.
func (cm *CooldownManager) Release(guildID, userID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.cooldowns, cooldownKey{guildID, userID})
}

func (cm *CooldownManager) Remaining(guildID, userID string) time.Duration {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	last, ok := cm.cooldowns[cooldownKey{guildID, userID}]
	if !ok {
		return 0
	}
	if remaining := cm.duration - cm.clock.Now().Sub(last); remaining > 0 {
		return remaining
	}
	return 0
}

// prune expects cm.mu held.
func (cm *CooldownManager) prune(now time.Time) {
	for k, t := range cm.cooldowns {
		if now.Sub(t) >= cm.duration {
			delete(cm.cooldowns, k)
		}
	}
}
