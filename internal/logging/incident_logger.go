package logging

import (
	"time"

	"github.com/google/uuid"
)

// IncidentLogEntry is the structured alert emitted for every positive verdict.
type IncidentLogEntry struct {
	ID      string
	GuildID string
	ActorID string
	Rule    string
	Kind    string
	Count   int
	Action  string
	At      time.Time
}

// Incident writes the entry as a structured warn-level event and returns the
// entry with its ID and timestamp filled in.
func Incident(entry IncidentLogEntry) IncidentLogEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	global().Zerolog().Warn().
		Str("incident_id", entry.ID).
		Str("guild_id", entry.GuildID).
		Str("actor_id", entry.ActorID).
		Str("rule", entry.Rule).
		Str("kind", entry.Kind).
		Int("count", entry.Count).
		Str("action", entry.Action).
		Time("at", entry.At).
		Msg("incident")

	return entry
}
