package dialogue

import (
	"strings"
)

type command struct {
	name        string
	description string
}

// The commands the bot accepts while idle. Help text is generated from
// this table so it never drifts from the router.
var commands = []command{
	{"start", "start a conversation"},
	{"help", "show this help"},
	{"login", "link your Luogu account"},
}

// parseCommand extracts the command token from a message like "/login" or
// "/login@SomeBot". It returns ok=false for non-commands, commands with
// arguments and command names outside the table; callers ignore those.
func parseCommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) != 1 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	name := strings.TrimPrefix(fields[0], "/")
	// Telegram appends the bot's username in group chats.
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	for _, c := range commands {
		if c.name == name {
			return name, true
		}
	}
	return "", false
}

func helpText() string {
	var b strings.Builder
	b.WriteString("I understand these commands:\n")
	for _, c := range commands {
		b.WriteString("/")
		b.WriteString(c.name)
		b.WriteString(" - ")
		b.WriteString(c.description)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
