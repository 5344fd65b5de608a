package assistant

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

// commandList renders /today (limit 5) and /inbox (limit 20).
//
// The document-store backend gets the grouped, id-free rendering with the
// Done/Edit buttons and a cache snapshot; other backends keep the flat
// "- id: text" format.
func (e *Engine) commandList(ctx context.Context, b Backend, ev Event, kind string, limit int) []Intent {
	// Flat backends count every open task and preview only the newest ones.
	if b.Kind() != BackendNotion {
		tasks, err := b.ListOpenTasks(ctx, ev.ChatID, 0)
		if err != nil {
			return replyTo(ev.ChatID, "Could not load tasks, try again.")
		}
		if len(tasks) == 0 {
			return replyTo(ev.ChatID, emptyListText(kind))
		}

		var sb strings.Builder
		if kind == ListInbox {
			sb.WriteString("Inbox (open tasks):")
		} else {
			sb.WriteString("Open tasks: ")
			sb.WriteString(strconv.Itoa(len(tasks)))
		}
		preview := tasks
		if limit > 0 && len(preview) > limit {
			preview = preview[len(preview)-limit:]
		}
		for _, t := range preview {
			sb.WriteString("\n- ")
			sb.WriteString(t.ID)
			sb.WriteString(": ")
			sb.WriteString(t.Title)
		}
		return replyTo(ev.ChatID, sb.String())
	}

	tasks, err := b.ListOpenTasks(ctx, ev.ChatID, limit)
	if err != nil {
		return replyTo(ev.ChatID, "Could not load tasks, try again.")
	}
	if len(tasks) == 0 {
		return replyTo(ev.ChatID, emptyListText(kind))
	}

	sorted := sortForDisplay(tasks)
	text := renderGroupedList(kind, sorted)

	return []Intent{
		Reply{ChatID: ev.ChatID, Text: text, Markup: listButtons()},
		CacheTaskList{ChatID: ev.ChatID, ListKind: kind, Tasks: sorted, Text: text},
	}
}

// listButtons is the action row attached to every grouped list message.
func listButtons() *Markup {
	return &Markup{Rows: [][]Button{{
		{Text: "Done", Action: ActionPickDone},
		{Text: "Edit", Action: ActionPickEdit},
	}}}
}

func emptyListText(kind string) string {
	if kind == ListInbox {
		return "Inbox is empty"
	}
	return "No open tasks. Go touch grass 🌱"
}

// sortForDisplay orders tasks by lowercased title then lowercased
// description so duplicate titles group together. Equal pairs keep fetch
// order.
func sortForDisplay(tasks []Task) []Task {
	out := append([]Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		ti := strings.ToLower(out[i].Title)
		tj := strings.ToLower(out[j].Title)
		if ti != tj {
			return ti < tj
		}
		return strings.ToLower(out[i].Description) < strings.ToLower(out[j].Description)
	})
	return out
}

// renderGroupedList produces the id-free numbered rendering used for the
// document-store backend. tasks must already be display-sorted.
func renderGroupedList(kind string, tasks []Task) string {
	var sb strings.Builder
	if kind == ListInbox {
		sb.WriteString("Inbox (open tasks):")
	} else {
		sb.WriteString("Open tasks: ")
		sb.WriteString(strconv.Itoa(len(tasks)))
	}
	for i, t := range tasks {
		sb.WriteString("\n")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(displayTitle(t))
	}
	return sb.String()
}

func displayTitle(t Task) string {
	title := t.Title
	if title == "" {
		title = "(untitled)"
	}
	if t.Description == "" {
		return title
	}
	return title + " | " + t.Description
}
