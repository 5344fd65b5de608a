package assistant

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/kcbot/core/logger"
)

// commandTodo enters or skips the task-creation wizard.
//
// The wizard exists only for the document-store backend; the other backends
// store a single text field and create immediately.
func (e *Engine) commandTodo(ctx context.Context, b Backend, ev Event, text string) []Intent {
	text = strings.TrimSpace(text)

	if b.Kind() != BackendNotion {
		if text == "" {
			return replyTo(ev.ChatID, "Missing text. Usage: /todo <text>")
		}
		id, err := b.CreateTask(ctx, ev.ChatID, text, "")
		if err != nil {
			return replyTo(ev.ChatID, "Could not add the task, try again.")
		}
		return replyTo(ev.ChatID, "Added task: "+id)
	}

	// One-shot power-user form skips the wizard entirely.
	if title, desc, hasDesc := splitTitleDesc(text); hasDesc {
		return e.createWizardTask(ctx, b, ev, title, desc)
	}

	if text != "" {
		e.store.SetWizard(ev.ChatID, Wizard{Stage: WizardNeedDesc, Title: text})
		return replyTo(ev.ChatID, "Title: "+text+"\nSend the Description")
	}

	titles, err := b.ListUniqueTaskTitles(ctx, 20)
	if err != nil {
		logger.Warn(ctx, "assistant", "wizard.titles.fail", slog.String("err", err.Error()))
		return replyTo(ev.ChatID, "Could not load task titles, try again.")
	}

	lines := []string{"Pick a Title:", "0. New Title"}
	for i, t := range titles {
		lines = append(lines, strconv.Itoa(i+1)+". "+t)
	}
	e.store.SetWizard(ev.ChatID, Wizard{Stage: WizardPickTitle, Titles: titles})
	return replyTo(ev.ChatID, strings.Join(lines, "\n"))
}

// continueWizard advances an in-flight todo wizard with the next plain-text
// input.
func (e *Engine) continueWizard(ctx context.Context, b Backend, ev Event, w Wizard, text string) []Intent {
	switch w.Stage {
	case WizardPickTitle:
		idx, ok := parseBareIndex(text)
		if !ok || idx > len(w.Titles) {
			return replyTo(ev.ChatID, "Reply with a number from the list (0 for a new title).")
		}
		if idx == 0 {
			w.Stage = WizardNeedTitle
			e.store.SetWizard(ev.ChatID, w)
			return replyTo(ev.ChatID, "Send the Title")
		}
		w.Stage = WizardNeedDesc
		w.Title = w.Titles[idx-1]
		e.store.SetWizard(ev.ChatID, w)
		return replyTo(ev.ChatID, "Title: "+w.Title+"\nSend the Description")

	case WizardNeedTitle:
		w.Stage = WizardNeedDesc
		w.Title = text
		e.store.SetWizard(ev.ChatID, w)
		return replyTo(ev.ChatID, "Title: "+w.Title+"\nSend the Description")

	case WizardNeedDesc:
		return e.createWizardTask(ctx, b, ev, w.Title, text)
	}

	e.store.ClearWizard(ev.ChatID)
	return nil
}

// createWizardTask finalizes a wizard (or one-shot) task creation. The
// wizard slot is cleared only on unambiguous success so a failed write stays
// retryable.
func (e *Engine) createWizardTask(ctx context.Context, b Backend, ev Event, title, desc string) []Intent {
	id, err := b.CreateTask(ctx, ev.ChatID, title, desc)
	if err != nil {
		logger.Warn(ctx, "assistant", "task.create.fail",
			slog.String("backend", b.Kind()),
			slog.String("err", err.Error()),
		)
		return replyTo(ev.ChatID, "Could not add the task, try again.")
	}
	e.store.ClearWizard(ev.ChatID)
	e.traceMessage(ctx, ev, id, b)

	label := title
	if desc != "" {
		label = title + " | " + desc
	}
	return []Intent{Reply{
		ChatID: ev.ChatID,
		Text:   "Added: " + label,
		Markup: pageMarkup(b, id),
	}}
}
