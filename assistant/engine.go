package assistant

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/kcbot/core/logger"
)

// Engine runs the command/wizard/pending state machine over one state store.
// Handle serializes events; backend I/O happens inline and is not retried.
type Engine struct {
	store   *Store
	resolve ResolveFunc

	// Mapper, when set, links created Notion pages back to the originating
	// chat message. Failures are logged and swallowed.
	Mapper MessageMapper

	mu  sync.Mutex
	now func() time.Time
}

// NewEngine builds an engine over the given store and backend resolver.
func NewEngine(store *Store, resolve ResolveFunc) *Engine {
	return &Engine{store: store, resolve: resolve, now: time.Now}
}

// Handle consumes one normalized event and returns the ordered intent list
// for the transport to execute. Ill-typed events yield no intents.
func (e *Engine) Handle(ctx context.Context, ev Event) []Intent {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.ChatID == 0 {
		return nil
	}

	b := e.resolve(ctx)

	switch ev.Type {
	case EventCallback:
		return e.handleCallback(ev)
	case EventMessage:
		return e.handleMessage(ctx, b, ev)
	}
	return nil
}

func (e *Engine) handleCallback(ev Event) []Intent {
	if ev.Callback == nil || ev.MessageID == 0 {
		return nil
	}

	switch ev.Callback.Action {
	case ActionPickDone, ActionPickEdit:
		mode := PendingDonePick
		verb := "mark done"
		if ev.Callback.Action == ActionPickEdit {
			mode = PendingEditPick
			verb = "edit"
		}
		e.store.SetPending(ev.ChatID, Pending{Mode: mode, SourceMessageID: ev.MessageID})

		count := 0
		if cl, ok := e.store.CachedList(ev.ChatID, ev.MessageID); ok {
			count = len(cl.Tasks)
		}
		return replyTo(ev.ChatID, "Which item number to "+verb+"? Reply with the number (1-"+strconv.Itoa(count)+").")
	}
	return nil
}

func (e *Engine) handleMessage(ctx context.Context, b Backend, ev Event) []Intent {
	text := strings.TrimSpace(ev.Text)

	route := ev.Route
	if route == nil {
		r := RouteText(ev.Text)
		route = &r
	}

	// A fresh command always wins over a stale pick flow so that a numeric
	// reply typed later is not swallowed. The wizard survives on purpose.
	if strings.HasPrefix(text, "/") {
		e.store.ClearPending(ev.ChatID)
	}

	if p, ok := e.store.Pending(ev.ChatID); ok && route.Kind == KindText {
		return e.continuePending(ctx, b, ev, p, text)
	}

	if w, ok := e.store.Wizard(ev.ChatID); ok && route.Kind == KindText {
		return e.continueWizard(ctx, b, ev, w, text)
	}

	switch route.Kind {
	case KindError:
		return replyTo(ev.ChatID, errorText(route))
	case KindUnknownCommand:
		return replyTo(ev.ChatID, "Unknown command: /"+route.Command+" (try /help)")
	case KindCommand:
		return e.dispatchCommand(ctx, b, ev, route)
	case KindText:
		return e.captureNote(ctx, b, ev, text)
	}
	return nil
}

// continuePending advances the numbered-pick flow (done/edit over a cached
// list message).
func (e *Engine) continuePending(ctx context.Context, b Backend, ev Event, p Pending, text string) []Intent {
	chatID := ev.ChatID

	switch p.Mode {
	case PendingDonePick, PendingEditPick:
		idx, ok := parseBareIndex(text)
		if !ok {
			return replyTo(chatID, "Reply with the item number from the list.")
		}

		cl, ok := e.store.CachedList(chatID, p.SourceMessageID)
		if !ok || len(cl.Tasks) == 0 {
			e.store.ClearPending(chatID)
			return replyTo(chatID, "That list expired. Re-run /today or /inbox.")
		}
		if idx < 1 || idx > len(cl.Tasks) {
			return replyTo(chatID, "Out of range. Reply with a number between 1 and "+strconv.Itoa(len(cl.Tasks))+".")
		}
		task := cl.Tasks[idx-1]

		if p.Mode == PendingEditPick {
			e.store.SetPending(chatID, Pending{
				Mode:            PendingEditNewText,
				SourceMessageID: p.SourceMessageID,
				TaskID:          task.ID,
				ItemNumber:      idx,
			})
			return replyTo(chatID, "Send the new text as:\nNew Title | New Description\n(only a title, or \"| New Description\" to change just the description)")
		}

		done, err := b.MarkTaskDone(ctx, chatID, task.ID)
		if err != nil || !done {
			if err != nil {
				logger.Warn(ctx, "assistant", "task.done.fail",
					slog.String("task_id", task.ID),
					slog.String("backend", b.Kind()),
					slog.String("err", err.Error()),
				)
			}
			return replyTo(chatID, "Could not mark done, try again.")
		}
		e.store.ClearPending(chatID)
		newText, markup := e.removeFromCache(chatID, p.SourceMessageID, task.ID)
		return []Intent{Edit{
			ChatID:       chatID,
			MessageID:    p.SourceMessageID,
			Text:         newText,
			Markup:       markup,
			RemoveTaskID: task.ID,
		}}

	case PendingEditNewText:
		title, desc, hasDesc := splitTitleDesc(text)
		if title == "" && desc == "" {
			return replyTo(chatID, "Send the new text (it cannot be empty).")
		}

		if title != "" {
			ok, err := b.UpdateTaskTitle(ctx, p.TaskID, title)
			if err != nil || !ok {
				return replyTo(chatID, "Could not update the task, try again.")
			}
		}
		if hasDesc && desc != "" {
			ok, err := b.UpdateTaskDescription(ctx, p.TaskID, desc)
			if err != nil || !ok {
				return replyTo(chatID, "Could not update the task, try again.")
			}
		}

		e.store.ClearPending(chatID)
		newText, markup := e.updateInCache(chatID, p.SourceMessageID, p.TaskID, title, desc)
		return []Intent{Edit{
			ChatID:    chatID,
			MessageID: p.SourceMessageID,
			Text:      newText,
			Markup:    markup,
			Update:    &TaskUpdate{ID: p.TaskID, Title: title, Description: desc},
		}}
	}

	e.store.ClearPending(chatID)
	return nil
}

// captureNote saves plain text as a note through the resolved backend.
func (e *Engine) captureNote(ctx context.Context, b Backend, ev Event, text string) []Intent {
	if text == "" {
		return replyTo(ev.ChatID, "Empty message")
	}
	return e.commandNote(ctx, b, ev, text)
}

// removeFromCache drops one task from a cached list snapshot and re-renders
// its text; the entry disappears entirely once the list empties. Returns
// the replacement text and markup for the list message.
func (e *Engine) removeFromCache(chatID int64, messageID int, taskID string) (string, *Markup) {
	cl, ok := e.store.CachedList(chatID, messageID)
	if !ok {
		return "", nil
	}
	kept := cl.Tasks[:0]
	for _, t := range cl.Tasks {
		if t.ID != taskID {
			kept = append(kept, t)
		}
	}
	cl.Tasks = kept
	if len(cl.Tasks) == 0 {
		e.store.DropCachedList(chatID, messageID)
		return emptyListText(cl.Kind), nil
	}
	cl.Text = renderGroupedList(cl.Kind, cl.Tasks)
	e.store.CacheList(chatID, messageID, cl)
	return cl.Text, listButtons()
}

func (e *Engine) updateInCache(chatID int64, messageID int, taskID, title, desc string) (string, *Markup) {
	cl, ok := e.store.CachedList(chatID, messageID)
	if !ok {
		return "", nil
	}
	for i := range cl.Tasks {
		if cl.Tasks[i].ID != taskID {
			continue
		}
		if title != "" {
			cl.Tasks[i].Title = title
		}
		if desc != "" {
			cl.Tasks[i].Description = desc
		}
	}
	cl.Text = renderGroupedList(cl.Kind, cl.Tasks)
	e.store.CacheList(chatID, messageID, cl)
	return cl.Text, listButtons()
}

// traceMessage links a created page to the source chat message, best-effort.
func (e *Engine) traceMessage(ctx context.Context, ev Event, externalID string, b Backend) {
	if e.Mapper == nil || b.Kind() != BackendNotion || ev.MessageID == 0 {
		return
	}
	if err := e.Mapper.SaveMessageMap(ctx, ev.ChatID, ev.MessageID, externalID); err != nil {
		logger.Warn(ctx, "assistant", "message_map.fail",
			slog.String("page_id", externalID),
			slog.String("err", err.Error()),
		)
	}
}

func errorText(r *Route) string {
	switch r.ErrCode {
	case ErrEmptyText:
		return "Empty message"
	case ErrMissingCommand:
		return "Missing command"
	case "missing_args_note":
		return "Missing text. Usage: /note <text>"
	case "missing_args_search":
		return "Missing query. Usage: /search <query>"
	case "missing_args_done":
		return "Missing task id. Usage: /done <task_id>"
	}
	if r.Message != "" {
		return r.Message
	}
	return "Could not understand that, try /help"
}

func replyTo(chatID int64, text string) []Intent {
	return []Intent{Reply{ChatID: chatID, Text: text}}
}

// parseBareIndex accepts only a bare non-negative integer string.
func parseBareIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
		if n > 1<<20 {
			return 0, false
		}
	}
	return n, true
}

// splitTitleDesc parses "Title | Description" edit input. hasDesc reports
// that a pipe was present, so "| text" can update only the description.
func splitTitleDesc(s string) (title, desc string, hasDesc bool) {
	if left, right, found := strings.Cut(s, "|"); found {
		return strings.TrimSpace(left), strings.TrimSpace(right), true
	}
	return strings.TrimSpace(s), "", false
}

func pageMarkup(b Backend, id string) *Markup {
	url := b.PageURL(id)
	if url == "" {
		return nil
	}
	return &Markup{Rows: [][]Button{{{Text: "Open in Notion", URL: url}}}}
}

