package bot

import "fmt"

// Fixed replies.
const (
	errorReply       = "I encountered an error while processing your request. Please try again later."
	botFailureReply  = "Sorry, I encountered an error while processing your request. Please try again later."
	helpHintReply    = "👋 Hi! I'm the Onit agent. You asked for help! Try to invoke the agent with @onit or just @onit.base.eth\n"
	toolHandledReply = "TOOL_HANDLED"
)

const helpTemplate = `👋 Hi I'm the Onit prediction market agent! 

💡 Onit is a prediction market platform where you can bet on everything from 'What price will Bitcoin hit next month?' to 'Who will win the World Cup?'.

💬 You can chat with me by starting your message with @onit or @onit.base.eth

🎯 I can help you:
    • 🔍 Discover markets
    • 📈 Create new markets [Only available in group chats]
    • ⚔️ Challenge friends to bets [Only available in group chats]

⚡ Examples:
    "@onit list some trending markets"
    "@onit create me a market for who will win the NBA finals this year"

⛏️ Or use a command directly:
    /help: Show everything I can do
    /list [tag]: List recent markets, optionally for a tag
    /trending: List trending markets

🔗 You can find all markets at %s`

const welcomeDMTemplate = `👋 Hi I'm the Onit prediction market agent! 

💡 Onit is a prediction market platform where you can bet on everything from 'What price will Bitcoin hit next month?' to 'Who will win the World Cup?'.

💬 You can chat with me by starting your message with @onit or @onit.base.eth

🎯 I can help you:
    • 🔍 Discover markets
    • 📈 Create new markets [Group only - add me to a group 👥]
    • ⚔️ Challenge friends to bets [Group only - add me to a group 👥]

⚡ Examples:
    "@onit list some trending markets"
    "@onit create me a market for who will win at basketball tomorrow, James or Peter"

⛏️ Or use a command directly:
    /help: Show everything I can do
    /list [tag]: List recent markets, optionally for a tag

🔗 You can find all markets at %s`

const welcomeGroupTemplate = `🎉 Hi everyone! I'm the Onit prediction market agent!

💡 Onit is a prediction market platform, and I can help you discover the best markets on offer, or even create private markets for your group.

💬 You can chat with me by starting your message with @onit or @onit.base.eth

🎯 I can help you:
    • 🔍 Discover markets
    • 📈 Create new markets
    • ⚔️ Challenge friends to bets

⚡ Examples:
    "@onit list some trending markets"
    "@onit create me a market for who will win at basketball tomorrow, James or Peter"

⛏️ Or use a command directly:
    /help: Show everything I can do
    /list [tag]: List recent markets, optionally for a tag

🔗 You can find all markets at %s`

func helpText(site string) string {
	return fmt.Sprintf(helpTemplate, site)
}

func welcomeText(site string, dm bool) string {
	if dm {
		return fmt.Sprintf(welcomeDMTemplate, site)
	}
	return fmt.Sprintf(welcomeGroupTemplate, site)
}

func commandErrorText(site string, err error) string {
	return fmt.Sprintf("Sorry, I encountered an error processing your command. %v\n\nYou can find all markets at %s", err, site)
}

func noMarketsText(site string) string {
	return "No markets found. You can find all our markets at " + site
}
