package chat

import "github.com/onit-labs/xmtp-bot/internal/supervisor"

func callbacks(events chan<- Conversation, errs chan<- error, ended chan<- struct{}) supervisor.Callbacks[Conversation] {
	return supervisor.Callbacks[Conversation]{
		OnEvent: func(c Conversation) {
			if events != nil {
				events <- c
			}
		},
		OnError: func(err error) {
			if errs != nil {
				errs <- err
			}
		},
		OnEnd: func() {
			if ended != nil {
				close(ended)
			}
		},
	}
}
