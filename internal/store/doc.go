// Package store persists the bridge's conversation state: which conversations
// were welcomed, which inbound messages were already handled, and a log of
// bot exchanges.
//
// Two backends implement Store:
//   - Memory: bounded in-process state, used when no database is configured
//   - Postgres: pgx-backed tables; exchanges are written in batches by an
//     ExchangeWriter with append-only semantics (ON CONFLICT DO NOTHING)
package store
