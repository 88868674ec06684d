// Package api provides the Onit markets REST client.
//
// Endpoint:
//   - GET {base}/api/markets?tags=a,b&sort=createdAt&order=desc&limit=5&offset=0
//
// Requests carry a bearer API key, are rate limited client-side and retried
// with jittered exponential backoff on 429 and 5xx responses.
package api
