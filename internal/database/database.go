package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go-guardian/internal/config"
	"go-guardian/internal/logging"
)

// Database is the SQLite implementation of config.Storage.
type Database struct {
	db *sql.DB
}

var _ config.Storage = (*Database)(nil)

// Open creates the database file if needed and applies the schema.
func Open(ctx context.Context, dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer connection; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	d := &Database{db: db}
	if err := d.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := d.ensureColumns(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate columns: %w", err)
	}

	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func columnDDL(col string) string {
	def := 0
	if config.ColumnDefault(col) {
		def = 1
	}
	return fmt.Sprintf("%s INTEGER DEFAULT %d", col, def)
}

func (d *Database) createTables(ctx context.Context) error {
	cols := make([]string, 0, len(config.Columns)+1)
	cols = append(cols, "guild_id TEXT PRIMARY KEY")
	for _, c := range config.Columns {
		cols = append(cols, columnDDL(c))
	}

	schema := `
	CREATE TABLE IF NOT EXISTS antinuke_config (` + strings.Join(cols, ",\n\t\t") + `);

	CREATE TABLE IF NOT EXISTS whitelist (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS admins (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS warnings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		moderator_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_warnings_member ON warnings(guild_id, user_id);

	CREATE TABLE IF NOT EXISTS ignored_channels (
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		PRIMARY KEY (guild_id, channel_id)
	);

	CREATE TABLE IF NOT EXISTS ignored_roles (
		guild_id TEXT NOT NULL,
		role_id TEXT NOT NULL,
		PRIMARY KEY (guild_id, role_id)
	);

	CREATE TABLE IF NOT EXISTS bypass_users (
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (guild_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS prefixes (
		guild_id TEXT PRIMARY KEY,
		prefix TEXT NOT NULL DEFAULT '!'
	);

	CREATE TABLE IF NOT EXISTS disabled_commands (
		guild_id TEXT NOT NULL,
		command_name TEXT NOT NULL,
		PRIMARY KEY (guild_id, command_name)
	);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// ensureColumns adds rule columns missing from databases created by older
// builds.
func (d *Database) ensureColumns(ctx context.Context) error {
	for _, col := range config.Columns {
		var n int
		err := d.db.QueryRowContext(ctx,
			`SELECT count(*) FROM pragma_table_info('antinuke_config') WHERE name = ?`, col,
		).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if _, err := d.db.ExecContext(ctx, "ALTER TABLE antinuke_config ADD COLUMN "+columnDDL(col)); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("add column %s: %w", col, err)
		}
		logging.Info("[DB] Migration: added column %s to antinuke_config", col)
	}
	return nil
}

// ===== Settings =====

func (d *Database) LoadSettings(ctx context.Context, guildID string) (map[string]bool, bool, error) {
	vals := make([]int64, len(config.Columns))
	dest := make([]interface{}, len(vals))
	for i := range vals {
		dest[i] = &vals[i]
	}

	err := d.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(config.Columns, ", ")+` FROM antinuke_config WHERE guild_id = ?`,
		guildID,
	).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	out := make(map[string]bool, len(vals))
	for i, c := range config.Columns {
		out[c] = vals[i] != 0
	}
	return out, true, nil
}

func (d *Database) SaveSetting(ctx context.Context, guildID, column string, enabled bool) error {
	if err := config.ValidateColumn(column); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO antinuke_config (guild_id, %[1]s) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET %[1]s = excluded.%[1]s`, column),
		guildID, boolInt(enabled),
	)
	return err
}

func (d *Database) SaveAllSettings(ctx context.Context, guildID string, enabled bool) error {
	v := boolInt(enabled)
	sets := make([]string, len(config.Columns))
	marks := make([]string, len(config.Columns))
	args := make([]interface{}, 0, len(config.Columns)+1)
	args = append(args, guildID)
	for i, c := range config.Columns {
		sets[i] = c + " = excluded." + c
		marks[i] = "?"
		args = append(args, v)
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO antinuke_config (guild_id, `+strings.Join(config.Columns, ", ")+`)
		 VALUES (?, `+strings.Join(marks, ", ")+`)
		 ON CONFLICT(guild_id) DO UPDATE SET `+strings.Join(sets, ", "),
		args...,
	)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ===== Trust lists =====

func trustTable(list config.TrustList) (string, error) {
	switch list {
	case config.TrustWhitelist:
		return "whitelist", nil
	case config.TrustAdmins:
		return "admins", nil
	}
	return "", fmt.Errorf("unknown trust list %q", list)
}

func (d *Database) ListTrusted(ctx context.Context, list config.TrustList) ([]config.TrustEntry, error) {
	table, err := trustTable(list)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, `SELECT user_id, username FROM `+table+` ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []config.TrustEntry
	for rows.Next() {
		var e config.TrustEntry
		if err := rows.Scan(&e.UserID, &e.Username); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (d *Database) AddTrusted(ctx context.Context, list config.TrustList, userID, username string) error {
	table, err := trustTable(list)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO `+table+` (user_id, username) VALUES (?, ?)`,
		userID, username,
	)
	return err
}

func (d *Database) RemoveTrusted(ctx context.Context, list config.TrustList, userID string) error {
	table, err := trustTable(list)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID)
	return err
}

// ===== Prefixes =====

func (d *Database) GetPrefix(ctx context.Context, guildID string) (string, bool, error) {
	var prefix string
	err := d.db.QueryRowContext(ctx, `SELECT prefix FROM prefixes WHERE guild_id = ?`, guildID).Scan(&prefix)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return prefix, true, nil
}

func (d *Database) SetPrefix(ctx context.Context, guildID, prefix string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO prefixes (guild_id, prefix) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET prefix = excluded.prefix`,
		guildID, prefix,
	)
	return err
}

// ===== Warnings =====

func (d *Database) AddWarning(ctx context.Context, w config.Warning) (int64, error) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO warnings (guild_id, user_id, reason, moderator_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		w.GuildID, w.UserID, w.Reason, w.ModeratorID, w.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *Database) ListWarnings(ctx context.Context, guildID, userID string) ([]config.Warning, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, guild_id, user_id, reason, moderator_id, created_at
		 FROM warnings WHERE guild_id = ? AND user_id = ? ORDER BY id`,
		guildID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []config.Warning
	for rows.Next() {
		var w config.Warning
		var created int64
		if err := rows.Scan(&w.ID, &w.GuildID, &w.UserID, &w.Reason, &w.ModeratorID, &created); err != nil {
			return nil, err
		}
		w.CreatedAt = time.Unix(created, 0)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (d *Database) DeleteWarning(ctx context.Context, guildID string, id int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM warnings WHERE guild_id = ? AND id = ?`, guildID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (d *Database) ClearWarnings(ctx context.Context, guildID, userID string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM warnings WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ===== Ignore lists =====

func ignoreTable(t config.IgnoreType) (table, column string, err error) {
	switch t {
	case config.IgnoreChannel:
		return "ignored_channels", "channel_id", nil
	case config.IgnoreRole:
		return "ignored_roles", "role_id", nil
	case config.IgnoreUser:
		return "bypass_users", "user_id", nil
	}
	return "", "", t.Validate()
}

func (d *Database) AddIgnored(ctx context.Context, guildID string, t config.IgnoreType, id string) error {
	table, col, err := ignoreTable(t)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (guild_id, `+col+`) VALUES (?, ?)`, guildID, id)
	return err
}

func (d *Database) RemoveIgnored(ctx context.Context, guildID string, t config.IgnoreType, id string) error {
	table, col, err := ignoreTable(t)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE guild_id = ? AND `+col+` = ?`, guildID, id)
	return err
}

func (d *Database) IsIgnored(ctx context.Context, guildID string, t config.IgnoreType, id string) (bool, error) {
	table, col, err := ignoreTable(t)
	if err != nil {
		return false, err
	}
	var n int
	err = d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE guild_id = ? AND `+col+` = ?`, guildID, id,
	).Scan(&n)
	return n > 0, err
}

func (d *Database) ListIgnored(ctx context.Context, guildID string, t config.IgnoreType) ([]string, error) {
	table, col, err := ignoreTable(t)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+col+` FROM `+table+` WHERE guild_id = ? ORDER BY `+col, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ===== Disabled commands =====

func (d *Database) SetCommandDisabled(ctx context.Context, guildID, command string, disabled bool) error {
	var err error
	if disabled {
		_, err = d.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO disabled_commands (guild_id, command_name) VALUES (?, ?)`, guildID, command)
	} else {
		_, err = d.db.ExecContext(ctx,
			`DELETE FROM disabled_commands WHERE guild_id = ? AND command_name = ?`, guildID, command)
	}
	return err
}

func (d *Database) IsCommandDisabled(ctx context.Context, guildID, command string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM disabled_commands WHERE guild_id = ? AND command_name = ?`, guildID, command,
	).Scan(&n)
	return n > 0, err
}
