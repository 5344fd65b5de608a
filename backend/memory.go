package backend

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/kcbot/assistant"
)

// Memory is the zero-configuration fallback backend. Notes and tasks live in
// the conversation state store; settings in a process-local map.
type Memory struct {
	store *assistant.Store

	mu       sync.Mutex
	settings map[string]string

	now func() time.Time
}

// NewMemory builds the in-memory backend over the shared state store.
func NewMemory(store *assistant.Store) *Memory {
	return &Memory{
		store:    store,
		settings: make(map[string]string),
		now:      time.Now,
	}
}

// Kind identifies this backend.
func (m *Memory) Kind() string { return assistant.BackendMemory }

// CreateNote appends a note with the next sequential id.
func (m *Memory) CreateNote(_ context.Context, chatID int64, text string) (string, error) {
	id := m.store.NextID("note")
	m.store.AppendNote(chatID, assistant.Note{ID: id, Text: text, CreatedAt: m.now()})
	return id, nil
}

// CreateTask appends an open task with the next sequential id.
func (m *Memory) CreateTask(_ context.Context, chatID int64, title, description string) (string, error) {
	id := m.store.NextID("task")
	m.store.AppendTask(chatID, assistant.Task{
		ID:          id,
		Title:       title,
		Description: description,
		CreatedAt:   m.now(),
	})
	return id, nil
}

// ListOpenTasks returns the most recent open tasks, oldest first.
func (m *Memory) ListOpenTasks(_ context.Context, chatID int64, limit int) ([]assistant.Task, error) {
	all := m.store.Tasks(chatID)
	open := make([]assistant.Task, 0, len(all))
	for _, t := range all {
		if !t.Done {
			open = append(open, t)
		}
	}
	if limit > 0 && len(open) > limit {
		open = open[len(open)-limit:]
	}
	return open, nil
}

// MarkTaskDone flips a task once; repeat calls report not-found semantics so
// done_at is never rewritten.
func (m *Memory) MarkTaskDone(_ context.Context, chatID int64, id string) (bool, error) {
	found, already := m.store.MarkTaskDone(chatID, id, m.now())
	return found && !already, nil
}

// UpdateTaskTitle rewrites a task's title in place.
func (m *Memory) UpdateTaskTitle(_ context.Context, id, title string) (bool, error) {
	return m.updateAnyChat(id, title, ""), nil
}

// UpdateTaskDescription rewrites a task's description in place.
func (m *Memory) UpdateTaskDescription(_ context.Context, id, description string) (bool, error) {
	return m.updateAnyChat(id, "", description), nil
}

func (m *Memory) updateAnyChat(id, title, description string) bool {
	for _, chatID := range m.store.ChatsWithTasks() {
		if m.store.UpdateTask(chatID, id, title, description) {
			return true
		}
	}
	return false
}

// Search matches tasks then notes by case-insensitive substring.
func (m *Memory) Search(_ context.Context, chatID int64, query string, limit int) ([]assistant.SearchHit, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var hits []assistant.SearchHit
	for _, t := range m.store.Tasks(chatID) {
		if len(hits) >= limit {
			return hits, nil
		}
		text := t.Title
		if t.Description != "" {
			text += " | " + t.Description
		}
		if strings.Contains(strings.ToLower(text), q) {
			hits = append(hits, assistant.SearchHit{Kind: "task", ID: t.ID, Text: text, Done: t.Done})
		}
	}
	for _, n := range m.store.Notes(chatID) {
		if len(hits) >= limit {
			return hits, nil
		}
		if strings.Contains(strings.ToLower(n.Text), q) {
			hits = append(hits, assistant.SearchHit{Kind: "note", ID: n.ID, Text: n.Text})
		}
	}
	return hits, nil
}

// GetSetting returns a stored value or the given default.
func (m *Memory) GetSetting(_ context.Context, key, def string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.settings[key]; ok {
		return v, nil
	}
	return def, nil
}

// SetSetting stores a value for the process lifetime.
func (m *Memory) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// ListUniqueTaskTitles is unused for this backend (no wizard) but kept
// uniform.
func (m *Memory) ListUniqueTaskTitles(_ context.Context, limit int) ([]string, error) {
	return nil, nil
}

// PageURL reports that in-memory items have no addressable pages.
func (m *Memory) PageURL(string) string { return "" }
