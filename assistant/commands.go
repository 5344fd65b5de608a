package assistant

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/kcbot/core/logger"
)

// Settings keys the bot understands, with their defaults.
const (
	SettingDailyBriefTime = "daily_brief_time"
	SettingTimezone       = "timezone"
	SettingAIEnabled      = "ai_enabled"

	DefaultDailyBriefTime = "07:30"
	DefaultTimezone       = "Asia/Singapore"
)

const helpText = `Commands:
/note <text> - save a note
/todo - (Notion mode) task wizard
/todo Title | Description - one-shot task
/today - list open tasks
/inbox - list open tasks (more)
/done <task_id> - mark a task done
/search <query> - search notes and tasks
/settings - show or change settings
/cancel - abort the current flow`

func (e *Engine) dispatchCommand(ctx context.Context, b Backend, ev Event, r *Route) []Intent {
	switch r.Command {
	case "note":
		return e.commandNote(ctx, b, ev, r.Text)
	case "todo":
		return e.commandTodo(ctx, b, ev, r.Text)
	case "today":
		return e.commandList(ctx, b, ev, ListToday, 5)
	case "inbox":
		return e.commandList(ctx, b, ev, ListInbox, 20)
	case "done":
		return e.commandDone(ctx, b, ev, r.TaskID)
	case "search":
		return e.commandSearch(ctx, b, ev, r.Query)
	case "settings":
		return e.commandSettings(ctx, b, ev, r.Args)
	case "help":
		return replyTo(ev.ChatID, helpText)
	case "cancel":
		e.store.ClearPending(ev.ChatID)
		e.store.ClearWizard(ev.ChatID)
		return replyTo(ev.ChatID, "Cancelled.")
	}
	return replyTo(ev.ChatID, "Unknown command: /"+r.Command+" (try /help)")
}

func (e *Engine) commandNote(ctx context.Context, b Backend, ev Event, text string) []Intent {
	id, err := b.CreateNote(ctx, ev.ChatID, text)
	if err != nil {
		logger.Warn(ctx, "assistant", "note.create.fail",
			slog.String("backend", b.Kind()),
			slog.String("err", err.Error()),
		)
		return replyTo(ev.ChatID, "Could not save the note, try again.")
	}
	e.traceMessage(ctx, ev, id, b)
	if b.Kind() == BackendNotion {
		return []Intent{Reply{
			ChatID: ev.ChatID,
			Text:   "Saved note (Notion): " + id,
			Markup: pageMarkup(b, id),
		}}
	}
	return replyTo(ev.ChatID, "Saved note: "+id)
}

func (e *Engine) commandDone(ctx context.Context, b Backend, ev Event, taskID string) []Intent {
	ok, err := b.MarkTaskDone(ctx, ev.ChatID, taskID)
	if err != nil {
		logger.Warn(ctx, "assistant", "task.done.fail",
			slog.String("task_id", taskID),
			slog.String("backend", b.Kind()),
			slog.String("err", err.Error()),
		)
		return replyTo(ev.ChatID, "Could not mark done, try again.")
	}
	if !ok {
		return replyTo(ev.ChatID, "Task not found (or already done): "+taskID)
	}
	if b.Kind() == BackendNotion {
		return replyTo(ev.ChatID, "Marked done (Notion)")
	}
	return replyTo(ev.ChatID, "Marked done: "+taskID)
}

func (e *Engine) commandSearch(ctx context.Context, b Backend, ev Event, query string) []Intent {
	hits, err := b.Search(ctx, ev.ChatID, query, 10)
	if err != nil {
		return replyTo(ev.ChatID, "Could not search, try again.")
	}
	if len(hits) == 0 {
		return replyTo(ev.ChatID, `No results for: "`+query+`"`)
	}

	lines := []string{`Results for: "` + query + `"`}
	for _, h := range hits {
		if h.Kind == "task" {
			status := "☐"
			if h.Done {
				status = "✅"
			}
			lines = append(lines, "- "+status+" "+h.ID+": "+h.Text)
			continue
		}
		snippet := strings.ReplaceAll(strings.TrimSpace(h.Text), "\n", " ")
		if len(snippet) > 80 {
			snippet = snippet[:77] + "..."
		}
		lines = append(lines, "- 📝 "+h.ID+": "+snippet)
	}
	return replyTo(ev.ChatID, strings.Join(lines, "\n"))
}

func (e *Engine) commandSettings(ctx context.Context, b Backend, ev Event, args string) []Intent {
	fields := strings.Fields(args)

	if len(fields) == 0 {
		bt, _ := b.GetSetting(ctx, SettingDailyBriefTime, DefaultDailyBriefTime)
		tz, _ := b.GetSetting(ctx, SettingTimezone, DefaultTimezone)
		ai, _ := b.GetSetting(ctx, SettingAIEnabled, "false")
		return replyTo(ev.ChatID, strings.Join([]string{
			"Settings:",
			"- " + SettingDailyBriefTime + ": " + bt,
			"- " + SettingTimezone + ": " + tz,
			"- " + SettingAIEnabled + ": " + ai,
			"",
			"Change with /settings set <key> <value>",
		}, "\n"))
	}

	if fields[0] != "set" || len(fields) < 3 {
		return replyTo(ev.ChatID, "Usage: /settings [set <key> <value>]")
	}

	key := strings.ToLower(fields[1])
	value := strings.Join(fields[2:], " ")

	switch key {
	case SettingAIEnabled:
		if value != "true" && value != "false" {
			return replyTo(ev.ChatID, "ai_enabled must be true/false")
		}
	case SettingDailyBriefTime:
		if !validClockTime(value) {
			return replyTo(ev.ChatID, "daily_brief_time must be HH:MM")
		}
	case SettingTimezone:
		// accepted as-is; an unknown zone surfaces when the brief runs
	default:
		return replyTo(ev.ChatID, "Unknown setting: "+key)
	}

	if err := b.SetSetting(ctx, key, value); err != nil {
		return replyTo(ev.ChatID, "Could not update "+key+", try again.")
	}
	return replyTo(ev.ChatID, "Updated "+key)
}

func validClockTime(s string) bool {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return false
	}
	h, okH := parseBareIndex(hh)
	m, okM := parseBareIndex(mm)
	return okH && okM && h < 24 && m < 60
}
