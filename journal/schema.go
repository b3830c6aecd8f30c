package journal

const Schema = `
CREATE TABLE IF NOT EXISTS closed_trades (
	trade_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL DEFAULT '',
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	initial_stop REAL NOT NULL,
	size REAL NOT NULL,
	target1_filled INTEGER NOT NULL,
	gross_pnl REAL NOT NULL,
	commission REAL NOT NULL,
	net_pnl REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_trades_exit ON closed_trades(exit_time);
CREATE INDEX IF NOT EXISTS idx_closed_trades_run ON closed_trades(run_id);

CREATE TABLE IF NOT EXISTS equity_snapshots (
	time DATETIME NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	capital REAL NOT NULL,
	unrealized REAL NOT NULL,
	equity REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity_snapshots(time);

CREATE TABLE IF NOT EXISTS trade_operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	position_id TEXT NOT NULL DEFAULT '',
	symbol TEXT NOT NULL DEFAULT '',
	side TEXT NOT NULL DEFAULT '',
	price REAL NOT NULL DEFAULT 0,
	qty REAL NOT NULL DEFAULT 0,
	order_id INTEGER NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_operations_time ON trade_operations(time);

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	strategy TEXT NOT NULL,
	dataset TEXT NOT NULL DEFAULT '',
	config BLOB,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	start_capital REAL NOT NULL,
	end_capital REAL NOT NULL,
	net_pnl REAL NOT NULL,
	return_pct REAL NOT NULL,
	win_rate REAL NOT NULL,
	profit_factor REAL,
	commission REAL NOT NULL,
	max_dd_pct REAL NOT NULL
);
`
