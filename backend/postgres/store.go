// Package postgres implements the relational backend on sqlx/lib-pq,
// together with the supporting tables the assistant uses around it:
// settings, labels, the telegram message map and the background job queue.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/kcbot/assistant"
)

// Store is the relational backend over an sqlx pool.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// New wraps an established connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Kind identifies this backend.
func (s *Store) Kind() string { return assistant.BackendPostgres }

// CreateNote inserts a note row and returns its uuid.
func (s *Store) CreateNote(ctx context.Context, chatID int64, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("postgres: note text must be non-empty")
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, chat_id, text) VALUES ($1, $2, $3)`,
		id, chatID, text,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: create note: %w", err)
	}
	return id, nil
}

// CreateTask inserts an open task row and returns its uuid.
func (s *Store) CreateTask(ctx context.Context, chatID int64, title, description string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("postgres: task title must be non-empty")
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, chat_id, text, description, done) VALUES ($1, $2, $3, $4, FALSE)`,
		id, chatID, title, strings.TrimSpace(description),
	)
	if err != nil {
		return "", fmt.Errorf("postgres: create task: %w", err)
	}
	return id, nil
}

type taskRow struct {
	ID          string       `db:"id"`
	Text        string       `db:"text"`
	Description string       `db:"description"`
	Done        bool         `db:"done"`
	CreatedAt   time.Time    `db:"created_at"`
	DoneAt      sql.NullTime `db:"done_at"`
}

// ListOpenTasks returns up to limit open tasks for a chat, oldest first.
// limit <= 0 returns all open tasks.
func (s *Store) ListOpenTasks(ctx context.Context, chatID int64, limit int) ([]assistant.Task, error) {
	query := `SELECT id::text AS id, text, description, done, created_at, done_at
		   FROM tasks
		  WHERE chat_id = $1 AND done = FALSE
		  ORDER BY created_at ASC`
	args := []any{chatID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open tasks: %w", err)
	}
	out := make([]assistant.Task, 0, len(rows))
	for _, r := range rows {
		t := assistant.Task{
			ID:          r.ID,
			Title:       r.Text,
			Description: r.Description,
			Done:        r.Done,
			CreatedAt:   r.CreatedAt,
		}
		if r.DoneAt.Valid {
			at := r.DoneAt.Time
			t.DoneAt = &at
		}
		out = append(out, t)
	}
	return out, nil
}

// MarkTaskDone flips done exactly once; a second call for the same id
// reports false and leaves done_at untouched.
func (s *Store) MarkTaskDone(ctx context.Context, chatID int64, id string) (bool, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks
		    SET done = TRUE, done_at = NOW(), updated_at = NOW()
		  WHERE id = $1::uuid AND chat_id = $2 AND done = FALSE`,
		id, chatID,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: mark task done: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: mark task done: %w", err)
	}
	return n > 0, nil
}

// UpdateTaskTitle rewrites the task text.
func (s *Store) UpdateTaskTitle(ctx context.Context, id, title string) (bool, error) {
	return s.updateTaskField(ctx, id, "text", title)
}

// UpdateTaskDescription rewrites the task description.
func (s *Store) UpdateTaskDescription(ctx context.Context, id, description string) (bool, error) {
	return s.updateTaskField(ctx, id, "description", description)
}

func (s *Store) updateTaskField(ctx context.Context, id, column, value string) (bool, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET `+column+` = $1, updated_at = NOW() WHERE id = $2::uuid`,
		strings.TrimSpace(value), id,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: update task %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: update task %s: %w", column, err)
	}
	return n > 0, nil
}

type searchRow struct {
	Kind string       `db:"kind"`
	ID   string       `db:"id"`
	Text string       `db:"text"`
	Done sql.NullBool `db:"done"`
}

// Search matches tasks and notes by ILIKE substring, newest first.
func (s *Store) Search(ctx context.Context, chatID int64, query string, limit int) ([]assistant.SearchHit, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + q + "%"
	var rows []searchRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT kind, id, text, done FROM (
		    SELECT 'task'::text AS kind, id::text AS id, text, done, created_at
		      FROM tasks
		     WHERE chat_id = $1 AND text ILIKE $2
		    UNION ALL
		    SELECT 'note'::text AS kind, id::text AS id, text, NULL::boolean AS done, created_at
		      FROM notes
		     WHERE chat_id = $1 AND text ILIKE $2
		  ) hits
		  ORDER BY created_at DESC
		  LIMIT $3`,
		chatID, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: search: %w", err)
	}
	out := make([]assistant.SearchHit, 0, len(rows))
	for _, r := range rows {
		out = append(out, assistant.SearchHit{
			Kind: r.Kind,
			ID:   r.ID,
			Text: r.Text,
			Done: r.Done.Valid && r.Done.Bool,
		})
	}
	return out, nil
}

// ListUniqueTaskTitles returns distinct open-task texts for the wizard
// picker.
func (s *Store) ListUniqueTaskTitles(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	var titles []string
	err := s.db.SelectContext(ctx, &titles,
		`SELECT DISTINCT text FROM tasks WHERE done = FALSE ORDER BY text ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list task titles: %w", err)
	}
	return titles, nil
}

// PageURL reports that relational rows have no addressable pages.
func (s *Store) PageURL(string) string { return "" }
