// Package chat talks to the XMTP gateway that fronts the messaging network.
//
// The gateway exposes two WebSocket streams under /v1/stream (kind=messages
// and kind=conversations) and a small REST surface for sending messages,
// syncing conversations and looking them up. The message stream is exposed as
// a pull iterator and the conversation stream as callbacks; both plug into
// supervisor.Source through its adapters.
package chat
