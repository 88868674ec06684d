package store

// Schema creates the bridge tables. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS welcomed_conversations (
	conversation_id TEXT PRIMARY KEY,
	welcomed_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS processed_messages (
	message_id   TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS processed_messages_processed_at_idx
	ON processed_messages (processed_at);

CREATE TABLE IF NOT EXISTS bot_exchanges (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	message_id      TEXT NOT NULL DEFAULT '',
	prompt          TEXT NOT NULL,
	reply           TEXT NOT NULL DEFAULT '',
	success         BOOLEAN NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ NOT NULL,
	duration_us     BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS bot_exchanges_started_at_idx
	ON bot_exchanges (started_at DESC);
`

const (
	insertWelcomedSQL = `
		INSERT INTO welcomed_conversations (conversation_id, welcomed_at)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id) DO NOTHING`

	selectWelcomedSQL = `
		SELECT EXISTS (SELECT 1 FROM welcomed_conversations WHERE conversation_id = $1)`

	insertProcessedSQL = `
		INSERT INTO processed_messages (message_id, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (message_id) DO NOTHING`

	pruneProcessedSQL = `
		DELETE FROM processed_messages WHERE processed_at < $1`

	insertExchangeSQL = `
		INSERT INTO bot_exchanges (id, conversation_id, message_id, prompt, reply, success, error, started_at, duration_us)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	selectExchangesSQL = `
		SELECT id, conversation_id, message_id, prompt, reply, success, error, started_at, duration_us
		FROM bot_exchanges
		ORDER BY started_at DESC
		LIMIT $1`
)
