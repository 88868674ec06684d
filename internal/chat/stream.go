package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/onit-labs/xmtp-bot/internal/supervisor"
)

const (
	kindMessages      = "messages"
	kindConversations = "conversations"
)

// StreamMessages opens the message stream. The returned sequence yields
// messages until the socket fails (yielding the error) or the gateway closes
// it normally (ending the sequence). Cancelling ctx closes the socket.
func (c *Client) StreamMessages(ctx context.Context) (iter.Seq2[Message, error], error) {
	conn, err := c.dial(ctx, kindMessages)
	if err != nil {
		return nil, err
	}

	return func(yield func(Message, error) bool) {
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()
		defer conn.Close()

		for {
			ev, err := c.readEvent(conn, kindMessages)
			if err != nil {
				if ctx.Err() != nil {
					yield(Message{}, ctx.Err())
					return
				}
				if !errors.Is(err, errClosedNormally) {
					yield(Message{}, err)
				}
				return
			}
			if ev.Message == nil {
				continue
			}
			if !yield(*ev.Message, nil) {
				return
			}
		}
	}, nil
}

// SubscribeConversations opens the conversation stream and delivers events to
// cb from a background goroutine until the returned cancel func is called.
func (c *Client) SubscribeConversations(ctx context.Context, cb supervisor.Callbacks[Conversation]) (func(), error) {
	conn, err := c.dial(ctx, kindConversations)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	go func() {
		defer stop()
		defer conn.Close()

		for {
			ev, err := c.readEvent(conn, kindConversations)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return
			case errors.Is(err, errClosedNormally):
				cb.OnEnd()
				return
			default:
				cb.OnError(err)
				return
			}
			if ev.Conversation != nil {
				cb.OnEvent(*ev.Conversation)
			}
		}
	}()

	return cancel, nil
}

var errClosedNormally = errors.New("stream closed by gateway")

// readEvent returns the next usable frame. Malformed frames and error frames
// matching a known benign failure are logged and skipped; socket errors,
// close frames and unrecognized error frames end the stream.
func (c *Client) readEvent(conn *websocket.Conn, kind string) (streamEvent, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return streamEvent{}, errClosedNormally
			}
			return streamEvent{}, fmt.Errorf("read %s stream: %w", kind, err)
		}

		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("skipping malformed stream frame", "kind", kind, "error", err, "bytes", len(data))
			continue
		}
		if ev.Error == "" {
			return ev, nil
		}

		serr := &StreamError{Kind: kind, Message: ev.Error}
		if supervisor.IsTransient(serr) {
			c.logger.Warn("transient stream error, continuing", "kind", kind, "error", ev.Error)
			continue
		}
		return ev, serr
	}
}

func (c *Client) dial(ctx context.Context, kind string) (*websocket.Conn, error) {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/v1/stream"
	u.RawQuery = url.Values{"kind": {kind}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), c.header())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s stream: %w", kind, err)
	}

	c.logger.Info("stream opened", "kind", kind)
	return conn, nil
}
