package assistant

import (
	"context"
	"time"
)

// Backend kind identifiers returned by Backend.Kind.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendNotion   = "notion"
)

// Note is a captured free-form note.
type Note struct {
	ID        string
	Text      string
	CreatedAt time.Time
	Labels    []string
}

// Task is a captured actionable item. Done flips exactly once.
type Task struct {
	ID          string
	Title       string
	Description string
	Due         string // ISO date, empty when unset
	Status      string
	Done        bool
	CreatedAt   time.Time
	DoneAt      *time.Time
	Labels      []string
}

// SearchHit is one result row from Backend.Search.
type SearchHit struct {
	Kind string // "task" or "note"
	ID   string
	Text string
	Done bool
}

// Backend is the uniform storage collaborator. The engine resolves exactly
// one backend per event and never mixes backends within a single event.
type Backend interface {
	Kind() string

	CreateNote(ctx context.Context, chatID int64, text string) (string, error)
	CreateTask(ctx context.Context, chatID int64, title, description string) (string, error)
	// ListOpenTasks returns open tasks for a chat; limit <= 0 means all.
	ListOpenTasks(ctx context.Context, chatID int64, limit int) ([]Task, error)
	MarkTaskDone(ctx context.Context, chatID int64, id string) (bool, error)
	UpdateTaskTitle(ctx context.Context, id, title string) (bool, error)
	UpdateTaskDescription(ctx context.Context, id, description string) (bool, error)
	Search(ctx context.Context, chatID int64, query string, limit int) ([]SearchHit, error)

	GetSetting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	ListUniqueTaskTitles(ctx context.Context, limit int) ([]string, error)

	// PageURL returns a browser link for an item id, or "" when the backend
	// has no addressable pages.
	PageURL(id string) string
}

// ResolveFunc picks the active backend for one event.
type ResolveFunc func(ctx context.Context) Backend

// MessageMapper links sent chat messages to external page ids. Best-effort:
// the engine logs and swallows its errors.
type MessageMapper interface {
	SaveMessageMap(ctx context.Context, chatID int64, messageID int, externalID string) error
}
