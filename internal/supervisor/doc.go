// Package supervisor keeps long-running event streams alive.
//
// A Supervisor owns one named stream (e.g. "messages", "conversations"):
//   - Opens the stream through a Source and feeds every event to a Handler
//   - Treats stream errors and unexpected end-of-stream as failures
//   - Restarts with exponential backoff plus jitter (Backoff)
//   - Trips into an extended-backoff circuit breaker after repeated
//     failures within the rolling window (FailureTracker)
//   - Never gives up and never exits the process; only context
//     cancellation stops it
//
// Pull iterators and callback subscriptions are both adapted to Source
// (FromSeq, FromCallbacks) so the supervisor has a single code path.
package supervisor
