package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/onit-labs/xmtp-bot/internal/api"
	"github.com/onit-labs/xmtp-bot/internal/chat"
	"github.com/onit-labs/xmtp-bot/internal/connection"
	"github.com/onit-labs/xmtp-bot/internal/store"
)

// Chat sends replies and looks up conversations. *chat.Client satisfies it.
type Chat interface {
	Send(ctx context.Context, conversationID, content string) error
	Conversation(ctx context.Context, id string) (chat.Conversation, error)
}

// Bot relays prompts to the bot service. *connection.Pool satisfies it.
type Bot interface {
	SendRequest(ctx context.Context, conversationID, prompt string) (*connection.BotResponse, error)
}

// Markets lists recent markets for a tag set. *market.Catalog satisfies it.
type Markets interface {
	Recent(ctx context.Context, tags []string) ([]api.Market, error)
}

// Observer is notified about handled events. Implementations must be safe for
// concurrent use.
type Observer interface {
	MessageHandled(action ActionKind, command string)
	WelcomeSent(dm bool)
}

// Config holds agent settings.
type Config struct {
	InboxID       string    // The agent's inbox; its own messages are ignored
	Triggers      []string  // Mentions that address the agent; nil uses DefaultTriggers
	SiteURL       string    // Public market site shown in replies
	WelcomeCutoff time.Time // Conversations created earlier get no welcome
}

// Deps are the agent's collaborators.
type Deps struct {
	Chat     Chat
	Bot      Bot
	Markets  Markets
	Store    store.Store
	Clock    clock.Clock
	Observer Observer
}

// Agent answers chat messages and welcomes new conversations.
type Agent struct {
	cfg    Config
	deps   Deps
	parser *Parser
	logger *slog.Logger
}

// New creates an agent.
func New(cfg Config, deps Deps, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory(10000)
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = "https://onit.fun/"
	}
	return &Agent{
		cfg:    cfg,
		deps:   deps,
		parser: NewParser(cfg.Triggers),
		logger: logger.With("component", "agent"),
	}
}

// SetInboxID sets the agent's own inbox once it is known. It must not race
// with HandleMessage.
func (a *Agent) SetInboxID(id string) {
	a.cfg.InboxID = id
}

// HandleMessage answers one inbound message. A returned error has already
// been reported to the conversation when possible.
func (a *Agent) HandleMessage(ctx context.Context, msg chat.Message) error {
	if msg.IsFrom(a.cfg.InboxID) {
		return nil
	}

	action := a.parser.Parse(msg.Text())
	if action.Kind == ActionIgnore {
		return nil
	}

	if msg.ID != "" {
		first, err := a.deps.Store.MarkProcessed(ctx, msg.ID, a.deps.Clock.Now())
		if err != nil {
			return fmt.Errorf("mark message %s processed: %w", msg.ID, err)
		}
		if !first {
			a.logger.Debug("skipping already processed message", "message_id", msg.ID)
			return nil
		}
	}

	logger := a.logger.With("conversation_id", msg.ConversationID, "message_id", msg.ID)
	logger.Info("message received", "action", action.Kind, "command", action.Command, "sender", msg.SenderInboxID)

	if a.deps.Observer != nil {
		a.deps.Observer.MessageHandled(action.Kind, action.Command)
	}

	var err error
	switch action.Kind {
	case ActionHint:
		err = a.deps.Chat.Send(ctx, msg.ConversationID, helpHintReply)
	case ActionCommand:
		err = a.deps.Chat.Send(ctx, msg.ConversationID, a.runCommand(ctx, action))
	case ActionPrompt:
		err = a.prompt(ctx, msg, action.Prompt)
	}
	if err == nil {
		return nil
	}

	// Best effort: tell the user something went wrong.
	if sendErr := a.deps.Chat.Send(ctx, msg.ConversationID, errorReply); sendErr != nil {
		logger.Warn("failed to send error reply", "error", sendErr)
	}
	return err
}

// runCommand renders the reply for a command. Market fetch failures become
// part of the reply rather than an error.
func (a *Agent) runCommand(ctx context.Context, action Action) string {
	site := a.cfg.SiteURL
	switch action.Command {
	case CommandHelp:
		return helpText(site)

	case CommandTrending:
		markets, err := a.deps.Markets.Recent(ctx, []string{"trending"})
		if err != nil {
			a.logger.Warn("trending markets failed", "error", err)
			return commandErrorText(site, err)
		}
		if len(markets) == 0 {
			return noMarketsText(site)
		}
		return "Trending Onit Markets:\n\n" + questions(markets) +
			"\n\nYou can find all trending markets at " + api.SiteURL(site, "trending")

	default: // CommandList
		tags := api.NormalizeTags(action.Args)
		markets, err := a.deps.Markets.Recent(ctx, tags)
		if err != nil {
			a.logger.Warn("list markets failed", "tags", tags, "error", err)
			return commandErrorText(site, err)
		}
		if len(markets) == 0 {
			return noMarketsText(site)
		}
		footer := "\n\nYou can find all markets at " + site
		if len(tags) == 1 {
			footer = fmt.Sprintf("\n\nYou can find all %s markets at %s", tags[0], api.SiteURL(site, tags[0]))
		}
		return "Recent Onit Markets:\n\n" + questions(markets) + footer
	}
}

// prompt relays text to the bot service and posts its answer. A response
// with success=false is answered with a fixed apology; transport failures
// are returned.
func (a *Agent) prompt(ctx context.Context, msg chat.Message, text string) error {
	start := a.deps.Clock.Now()
	ex := store.Exchange{
		ID:             uuid.NewString(),
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Prompt:         text,
		StartedAt:      start,
	}

	resp, err := a.deps.Bot.SendRequest(ctx, msg.ConversationID, text)
	ex.Duration = a.deps.Clock.Since(start)
	if err != nil {
		ex.Error = err.Error()
		a.record(ctx, ex)
		return fmt.Errorf("bot request: %w", err)
	}

	ex.Success = resp.Success
	ex.Reply = resp.Data.Message
	a.record(ctx, ex)

	reply := resp.Data.Message
	switch {
	case !resp.Success:
		reply = botFailureReply
	case strings.TrimSpace(reply) == toolHandledReply:
		return nil
	case strings.TrimSpace(reply) == "":
		reply = helpText(a.cfg.SiteURL)
	}
	return a.deps.Chat.Send(ctx, msg.ConversationID, reply)
}

func (a *Agent) record(ctx context.Context, ex store.Exchange) {
	if err := a.deps.Store.RecordExchange(ctx, ex); err != nil {
		a.logger.Warn("failed to record exchange", "conversation_id", ex.ConversationID, "error", err)
	}
}

// HandleConversation sends the welcome message to a new conversation, once.
// Conversations created before the cutoff are skipped.
func (a *Agent) HandleConversation(ctx context.Context, conv chat.Conversation) error {
	logger := a.logger.With("conversation_id", conv.ID)

	if !conv.CreatedAt.IsZero() && conv.CreatedAt.Before(a.cfg.WelcomeCutoff) {
		logger.Debug("skipping welcome for conversation created before cutoff", "created_at", conv.CreatedAt)
		return nil
	}

	welcomed, err := a.deps.Store.IsWelcomed(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("check welcomed %s: %w", conv.ID, err)
	}
	if welcomed {
		return nil
	}

	if conv.Type == "" {
		full, err := a.deps.Chat.Conversation(ctx, conv.ID)
		if err != nil && !errors.Is(err, chat.ErrNotFound) {
			return fmt.Errorf("lookup conversation %s: %w", conv.ID, err)
		}
		conv.Type = full.Type
	}

	dm := conv.IsDM()
	if err := a.deps.Chat.Send(ctx, conv.ID, welcomeText(a.cfg.SiteURL, dm)); err != nil {
		return fmt.Errorf("send welcome to %s: %w", conv.ID, err)
	}
	if err := a.deps.Store.MarkWelcomed(ctx, conv.ID, a.deps.Clock.Now()); err != nil {
		return fmt.Errorf("mark welcomed %s: %w", conv.ID, err)
	}

	if a.deps.Observer != nil {
		a.deps.Observer.WelcomeSent(dm)
	}
	logger.Info("welcome message sent", "dm", dm)
	return nil
}

func questions(markets []api.Market) string {
	qs := make([]string, len(markets))
	for i, m := range markets {
		qs[i] = m.Question
	}
	return strings.Join(qs, "\n")
}
