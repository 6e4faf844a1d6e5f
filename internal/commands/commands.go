// Package commands interprets bot mentions in issue comments.
//
// A command is a comment line of the form "@<bot> <action> [args...]".
// Matching is case-insensitive on both the mention and the action.
package commands

import (
	"fmt"
	"strings"
)

// Action is a recognized bot command.
type Action string

const (
	ActionAnalyze Action = "analyze"
	ActionFix     Action = "fix"
	ActionSuggest Action = "suggest"
	ActionHelp    Action = "help"
)

// Command is one parsed bot invocation.
type Command struct {
	Action Action
	Args   []string

	// Raw is the original action token before alias resolution,
	// kept for audit logging.
	Raw string
}

// Parse scans a comment body for a mention of botName and returns the
// command it carries. Returns (nil, false) when the comment contains no
// mention at all; an unrecognized action after a mention yields a help
// command so the bot can respond with usage.
func Parse(body, botName string) (*Command, bool) {
	mention := "@" + strings.ToLower(botName)

	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		for i, field := range fields {
			if strings.ToLower(field) != mention {
				continue
			}

			rest := fields[i+1:]
			if len(rest) == 0 {
				return &Command{Action: ActionHelp}, true
			}

			raw := rest[0]
			cmd := &Command{Raw: raw, Args: rest[1:]}
			switch strings.ToLower(raw) {
			case "analyze", "priority", "classify":
				cmd.Action = ActionAnalyze
			case "fix":
				cmd.Action = ActionFix
			case "suggest", "plan":
				cmd.Action = ActionSuggest
			case "help":
				cmd.Action = ActionHelp
			default:
				cmd.Action = ActionHelp
			}
			return cmd, true
		}
	}
	return nil, false
}

// HelpText renders the usage message posted for help or unknown commands.
func HelpText(botName string) string {
	return fmt.Sprintf(`Available commands:

- `+"`@%s analyze`"+` - classify this issue and set priority
- `+"`@%s fix`"+` - attempt an automated fix (if one was deemed safe)
- `+"`@%s suggest`"+` - post a remediation plan without applying changes
- `+"`@%s help`"+` - show this message`,
		botName, botName, botName, botName)
}
