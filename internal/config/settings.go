package config

// Settings is an immutable snapshot of one guild's security policy. A new
// value is published for every change; callers may hold a snapshot freely.
type Settings struct {
	GuildID string
	values  []bool
}

func DefaultSettings(guildID string) *Settings {
	values := make([]bool, len(Columns))
	for i, c := range Columns {
		values[i] = ColumnDefault(c)
	}
	return &Settings{GuildID: guildID, values: values}
}

// NewSettings builds a snapshot from stored column values. Missing columns
// take their default and unknown names are ignored.
func NewSettings(guildID string, stored map[string]bool) *Settings {
	s := DefaultSettings(guildID)
	for name, v := range stored {
		if i, ok := columnIndex[name]; ok {
			s.values[i] = v
		}
	}
	return s
}

// uniformSettings sets every column, toggles included, to v.
func uniformSettings(guildID string, v bool) *Settings {
	values := make([]bool, len(Columns))
	for i := range values {
		values[i] = v
	}
	return &Settings{GuildID: guildID, values: values}
}

// Enabled reports a column's value; unknown names are disabled.
func (s *Settings) Enabled(rule string) bool {
	i, ok := columnIndex[rule]
	if !ok {
		return false
	}
	return s.values[i]
}

func (s *Settings) AutoRecovery() bool {
	return s.Enabled(SettingAutoRecovery)
}

func (s *Settings) ThreadLock() bool {
	return s.Enabled(SettingThreadLock)
}

// Map returns a copy of every column value.
func (s *Settings) Map() map[string]bool {
	m := make(map[string]bool, len(Columns))
	for i, c := range Columns {
		m[c] = s.values[i]
	}
	return m
}

// EnabledRules lists the rules switched on, in catalogue order.
func (s *Settings) EnabledRules() []string {
	var out []string
	for _, r := range Rules {
		if s.Enabled(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Settings) with(column string, v bool) *Settings {
	values := make([]bool, len(s.values))
	copy(values, s.values)
	values[columnIndex[column]] = v
	return &Settings{GuildID: s.GuildID, values: values}
}
