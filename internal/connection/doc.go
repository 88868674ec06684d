// Package connection implements the bot Connection Pool.
//
// The Connection Pool:
//   - Keeps at most one WebSocket per conversation to the bot worker
//   - Correlates responses to requests by a "<conversationId>_<uuid>" request id
//   - Rejects a conversation's pending requests when its socket closes
//   - Sweeps idle and worn-out sockets once a minute and evicts the least
//     recently used ones above capacity
package connection
