package sqlstore

// Decimals are stored as text and times as unix nanoseconds so the schema works unchanged
// on DuckDB, SQLite and PostgreSQL.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		symbol_code TEXT NOT NULL,
		symbol_name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		status TEXT NOT NULL,
		current_stage INTEGER NOT NULL,
		anchor_price TEXT,
		last_price TEXT,
		last_price_at BIGINT,
		active_order TEXT,
		feed_down BOOLEAN NOT NULL,
		event_seq BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		started_at BIGINT,
		completed_at BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS stages (
		session_id TEXT NOT NULL,
		stage_number INTEGER NOT NULL,
		target_return_pct TEXT NOT NULL,
		drop_pct TEXT NOT NULL,
		allocation_pct TEXT NOT NULL,
		allocation_amount TEXT NOT NULL,
		expected_price TEXT,
		status TEXT NOT NULL,
		trade_failed BOOLEAN NOT NULL DEFAULT FALSE,
		started_at BIGINT,
		completed_at BIGINT,
		PRIMARY KEY (session_id, stage_number)
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		session_id TEXT NOT NULL,
		stage_number INTEGER NOT NULL,
		buy_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		buy_time BIGINT NOT NULL,
		sell_target_price TEXT NOT NULL,
		sell_price TEXT,
		sell_time BIGINT,
		realized_profit TEXT,
		status TEXT NOT NULL,
		PRIMARY KEY (session_id, stage_number)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq BIGINT NOT NULL,
		kind TEXT NOT NULL,
		stage_number INTEGER NOT NULL,
		price TEXT,
		quantity TEXT,
		message TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (session_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// addedColumns are columns introduced after the first release; stores created earlier gain them on open.
var addedColumns = []struct {
	table, column, definition string
}{
	{table: "stages", column: "trade_failed", definition: "BOOLEAN DEFAULT FALSE"},
}

var sessionColumns = []string{
	"id", "symbol_code", "symbol_name", "config_json", "status", "current_stage",
	"anchor_price", "last_price", "last_price_at", "active_order", "feed_down",
	"event_seq", "created_at", "started_at", "completed_at",
}

var stageColumns = []string{
	"session_id", "stage_number", "target_return_pct", "drop_pct", "allocation_pct",
	"allocation_amount", "expected_price", "status", "trade_failed", "started_at", "completed_at",
}

var positionColumns = []string{
	"session_id", "stage_number", "buy_price", "quantity", "buy_time", "sell_target_price",
	"sell_price", "sell_time", "realized_profit", "status",
}

var eventColumns = []string{
	"id", "session_id", "seq", "kind", "stage_number", "price", "quantity", "message", "created_at",
}
