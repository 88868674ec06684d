package connection

import (
	"time"

	"github.com/benbjohnson/clock"
)

// requestResult completes a pending request.
type requestResult struct {
	resp *BotResponse
	err  error
}

// pendingRequest is one in-flight request awaiting its correlated response.
type pendingRequest struct {
	id             string
	conversationID string
	createdAt      time.Time
	timer     *clock.Timer
	result    chan requestResult // buffered(1); the completer never blocks
}

// complete stops the timer and delivers the result. Callers must have removed
// the request from the correlator first, which makes completion exactly-once.
func (r *pendingRequest) complete(resp *BotResponse, err error) {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.result <- requestResult{resp: resp, err: err}
}

// correlator maps request ids to pending requests. It has no lock of its
// own; the pool's mutex guards it.
type correlator struct {
	pending map[string]*pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]*pendingRequest)}
}

// add registers a request for a conversation. The timer is attached by the caller.
func (c *correlator) add(id, conversationID string, now time.Time) *pendingRequest {
	r := &pendingRequest{
		id:             id,
		conversationID: conversationID,
		createdAt:      now,
		result:         make(chan requestResult, 1),
	}
	c.pending[id] = r
	return r
}

// take removes and returns the request, or nil if it is no longer pending.
func (c *correlator) take(id string) *pendingRequest {
	r, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return r
}

// rejectConversation fails every request issued for conversationID.
func (c *correlator) rejectConversation(conversationID string, err error) int {
	n := 0
	for id, r := range c.pending {
		if r.conversationID == conversationID {
			delete(c.pending, id)
			r.complete(nil, err)
			n++
		}
	}
	return n
}

// rejectAll fails every pending request.
func (c *correlator) rejectAll(err error) int {
	n := len(c.pending)
	for id, r := range c.pending {
		delete(c.pending, id)
		r.complete(nil, err)
	}
	return n
}

func (c *correlator) len() int {
	return len(c.pending)
}
