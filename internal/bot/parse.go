package bot

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// DefaultTriggers are the mentions that address the agent.
var DefaultTriggers = []string{"@onit", "@onit.base.eth"}

// Commands the agent answers itself.
const (
	CommandList     = "list"
	CommandTrending = "trending"
	CommandHelp     = "help"
)

var knownCommands = []string{CommandList, CommandTrending, CommandHelp}

// hintMentions look like attempts to reach a bot without a trigger.
var hintMentions = []string{"/bot", "/agent", "/ai", "/help"}

// ActionKind is what the agent does with an inbound message.
type ActionKind string

const (
	ActionIgnore  ActionKind = "ignore"
	ActionCommand ActionKind = "command"
	ActionPrompt  ActionKind = "prompt"
	ActionHint    ActionKind = "hint"
)

// Action is the parsed intent of a message.
type Action struct {
	Kind    ActionKind
	Command string   // ActionCommand
	Args    []string // ActionCommand
	Prompt  string   // ActionPrompt
}

// Parser classifies message text.
type Parser struct {
	triggers []string // lowercase, longest first
}

// NewParser creates a parser for the given triggers; nil uses DefaultTriggers.
func NewParser(triggers []string) *Parser {
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}
	ts := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			ts = append(ts, t)
		}
	}
	slices.SortFunc(ts, func(a, b string) int { return len(b) - len(a) })
	return &Parser{triggers: ts}
}

// Parse classifies text. Commands win over triggers: "/list nba" and
// "@onit list nba" both list markets, while "@onit what is trending?" is a
// prompt for the bot service.
func (p *Parser) Parse(text string) Action {
	text = strings.TrimSpace(text)
	if text == "" {
		return Action{Kind: ActionIgnore}
	}
	lower := strings.ToLower(text)
	fields := strings.Fields(text)

	if cmd, args, ok := p.command(fields); ok {
		return Action{Kind: ActionCommand, Command: cmd, Args: args}
	}

	if p.hasTrigger(text) {
		return Action{Kind: ActionPrompt, Prompt: p.stripTrigger(text)}
	}

	for _, m := range hintMentions {
		if strings.Contains(lower, m) {
			return Action{Kind: ActionHint}
		}
	}
	return Action{Kind: ActionIgnore}
}

// command matches "/cmd args..." or "<trigger> cmd args...".
func (p *Parser) command(fields []string) (string, []string, bool) {
	if len(fields) == 0 {
		return "", nil, false
	}
	first := strings.ToLower(fields[0])

	if name, ok := strings.CutPrefix(first, "/"); ok && slices.Contains(knownCommands, name) {
		return name, fields[1:], true
	}

	if len(fields) >= 2 && slices.Contains(p.triggers, first) {
		name := strings.ToLower(strings.TrimPrefix(fields[1], "/"))
		if slices.Contains(knownCommands, name) {
			return name, fields[2:], true
		}
	}
	return "", nil, false
}

func (p *Parser) hasTrigger(text string) bool {
	for _, t := range p.triggers {
		if i, _ := indexFold(text, t); i >= 0 {
			return true
		}
	}
	return false
}

// stripTrigger removes the first trigger mention from text.
func (p *Parser) stripTrigger(text string) string {
	for _, t := range p.triggers {
		if i, n := indexFold(text, t); i >= 0 {
			out := strings.TrimSpace(text[:i] + text[i+n:])
			if out == "" {
				return text
			}
			return out
		}
	}
	return text
}

// indexFold finds substr in s under Unicode case folding and returns the byte
// offset and byte length of the match within s, or -1, 0.
func indexFold(s, substr string) (int, int) {
	for i := range s {
		if n := prefixFold(s[i:], substr); n > 0 {
			return i, n
		}
	}
	return -1, 0
}

// prefixFold reports how many bytes of s match prefix case-insensitively.
func prefixFold(s, prefix string) int {
	j := 0
	for _, pr := range prefix {
		if j >= len(s) {
			return 0
		}
		sr, size := utf8.DecodeRuneInString(s[j:])
		if sr != pr && !strings.EqualFold(string(sr), string(pr)) {
			return 0
		}
		j += size
	}
	return j
}
