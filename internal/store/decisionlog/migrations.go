package decisionlog

import (
	"database/sql"
	"fmt"
)

// migrations 按顺序执行，已执行的版本记录在 PRAGMA user_version 中。
// 只能追加，不能修改已发布的条目。
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS consensus_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			cycle_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason_code TEXT,
			vetoed INTEGER NOT NULL DEFAULT 0,
			action TEXT NOT NULL,
			confidence INTEGER NOT NULL DEFAULT 0,
			reason TEXT,
			details_json TEXT,
			decisions_json TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_consensus_events_symbol_ts ON consensus_events(symbol, ts DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_consensus_events_reason ON consensus_events(reason_code)`,
		`CREATE INDEX IF NOT EXISTS idx_consensus_events_cycle ON consensus_events(cycle_id)`,
	},
	{
		`ALTER TABLE consensus_events ADD COLUMN threshold REAL NOT NULL DEFAULT 0`,
		`ALTER TABLE consensus_events ADD COLUMN threshold_source TEXT`,
		`ALTER TABLE consensus_events ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0`,
	},
}

func ensureSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if err := migrate(db, v+1, migrations[v]); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	return nil
}

func migrate(db *sql.DB, version int, stmts []string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	// PRAGMA 不支持占位符
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, version)); err != nil {
		return err
	}
	return tx.Commit()
}
