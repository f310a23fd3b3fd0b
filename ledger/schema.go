package ledger

// Schema is applied on every open. Decimals are stored as TEXT so they
// round-trip exactly; times are RFC 3339 strings in UTC.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	stop_price TEXT NOT NULL,
	target_price TEXT NOT NULL,
	position_size TEXT NOT NULL,
	status TEXT NOT NULL,
	entry_time TEXT NOT NULL,
	exit_price TEXT,
	exit_time TEXT,
	profit_loss TEXT,
	profit_loss_percent TEXT,
	confidence TEXT,
	reason TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	broker TEXT NOT NULL DEFAULT '',
	parent_id INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_open_symbol
	ON trades(symbol) WHERE status != 'CLOSED';

CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);

CREATE TABLE IF NOT EXISTS metrics (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	payload TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

const tradeColumns = `id, symbol, entry_price, stop_price, target_price, position_size, status,
	entry_time, exit_price, exit_time, profit_loss, profit_loss_percent, confidence,
	reason, notes, broker, parent_id`
