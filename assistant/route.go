package assistant

import "strings"

// Route kinds produced by RouteText.
const (
	KindText           = "text"
	KindCommand        = "command"
	KindUnknownCommand = "unknown_command"
	KindError          = "error"
)

// Error codes carried by error routes.
const (
	ErrEmptyText      = "empty_text"
	ErrMissingCommand = "missing_command"
)

// Route is the structured classification of one raw message text.
type Route struct {
	Kind    string
	Command string
	Args    string

	// Command-specific parsed fields.
	Text   string // note/todo body, or the trimmed plain text for KindText
	Query  string // search
	TaskID string // done

	// Error details for KindError.
	ErrCode string
	Message string
}

var supportedCommands = map[string]struct{}{
	"note":     {},
	"todo":     {},
	"today":    {},
	"done":     {},
	"search":   {},
	"inbox":    {},
	"settings": {},
	"cancel":   {},
	"start":    {},
	"help":     {},
}

// commands that refuse to run without an argument; todo is deliberately
// absent since a bare /todo enters the creation wizard.
var commandsRequiringArgs = map[string]struct{}{
	"note":   {},
	"search": {},
	"done":   {},
}

// RouteText classifies raw message text into a command, plain text, or an
// error route. Pure and deterministic; safe to call from any goroutine.
func RouteText(text string) Route {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Route{Kind: KindError, ErrCode: ErrEmptyText, Message: "empty message"}
	}

	if !strings.HasPrefix(raw, "/") {
		return Route{Kind: KindText, Text: raw}
	}

	first := raw
	args := ""
	if i := strings.IndexFunc(raw, isSpace); i >= 0 {
		first = raw[:i]
		args = strings.TrimSpace(raw[i:])
	}

	cmdToken := first[1:]
	if cmdToken == "" {
		return Route{Kind: KindError, ErrCode: ErrMissingCommand, Message: "missing command"}
	}

	// Telegram group syntax: /note@MyBot hello
	name, _, _ := strings.Cut(cmdToken, "@")
	name = strings.ToLower(strings.TrimSpace(name))

	if name == "start" || name == "help" {
		return Route{Kind: KindCommand, Command: "help", Args: args}
	}

	if _, ok := supportedCommands[name]; !ok {
		return Route{Kind: KindUnknownCommand, Command: name, Args: args}
	}

	if _, need := commandsRequiringArgs[name]; need && args == "" {
		return Route{
			Kind:    KindError,
			ErrCode: "missing_args_" + name,
			Message: "/" + name + " requires an argument",
		}
	}

	out := Route{Kind: KindCommand, Command: name, Args: args}
	switch name {
	case "note", "todo":
		out.Text = args
	case "search":
		out.Query = args
	case "done":
		out.TaskID = strings.Fields(args)[0]
	}
	return out
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
