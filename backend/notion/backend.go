package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/m3rciful/kcbot/assistant"
	"github.com/m3rciful/kcbot/core/logger"
)

// Rich text content inside a single block has practical size limits, so
// long notes are split into conservative paragraph chunks.
const noteChunkSize = 1800

const noteTitleLimit = 100

// SettingsStore persists user settings. Notion pages are a poor home for
// key/value flags, so the backend delegates settings to whichever
// relational or in-memory store is available.
type SettingsStore interface {
	GetSetting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Backend adapts the API client to the assistant backend contract.
type Backend struct {
	*Client
	settings SettingsStore
	now      func() time.Time
}

// NewBackend wires a client with a settings store. A nil store falls back
// to process-local memory.
func NewBackend(c *Client, settings SettingsStore) *Backend {
	if settings == nil {
		settings = &memorySettings{}
	}
	return &Backend{Client: c, settings: settings, now: time.Now}
}

// Kind identifies this backend.
func (b *Backend) Kind() string { return assistant.BackendNotion }

// CreateNote creates a page in the notes database. The title is the first
// line of the note; the full text lands in the page body as paragraph
// blocks.
func (b *Backend) CreateNote(ctx context.Context, _ int64, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("notion: note text must be non-empty")
	}

	children := make([]any, 0, 1)
	for _, chunk := range chunkText(text, noteChunkSize) {
		children = append(children, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []any{textSpan(chunk)},
			},
		})
	}

	payload := map[string]any{
		"parent": map[string]any{"database_id": b.cfg.NotesDB},
		"properties": map[string]any{
			"Title":         map[string]any{"title": []any{textSpan(noteTitle(text))}},
			"Type":          map[string]any{"select": map[string]any{"name": "other"}},
			"Source":        map[string]any{"select": map[string]any{"name": "telegram"}},
			"AI Structured": map[string]any{"checkbox": false},
		},
		"children": children,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("notion: encode note: %w", err)
	}

	resp, err := b.doJSON(ctx, "POST", "/pages", raw)
	if err != nil {
		return "", err
	}
	pageID := gjson.GetBytes(resp, "id").String()
	if pageID == "" {
		return "", fmt.Errorf("notion: create note response missing page id")
	}
	return pageID, nil
}

// CreateTask creates a page in the tasks database. Status is sent in the
// newer status shape first and downgraded to select when the workspace
// rejects it.
func (b *Backend) CreateTask(ctx context.Context, _ int64, title, description string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("notion: task title must be non-empty")
	}

	props := map[string]any{
		"Title":    map[string]any{"title": []any{textSpan(title)}},
		"Status":   map[string]any{"status": map[string]any{"name": "todo"}},
		"Priority": map[string]any{"select": map[string]any{"name": "med"}},
		"Source":   map[string]any{"select": map[string]any{"name": "telegram"}},
	}
	if d := strings.TrimSpace(description); d != "" {
		props["Description"] = map[string]any{"rich_text": []any{textSpan(d)}}
	}
	payload := map[string]any{
		"parent":     map[string]any{"database_id": b.cfg.TasksDB},
		"properties": props,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("notion: encode task: %w", err)
	}

	resp, err := b.doJSON(ctx, "POST", "/pages", raw)
	if IsBadRequest(err) {
		logger.Debug(ctx, "notion", "status shape rejected, retrying with select")
		retry, serr := statusAsSelect(raw, "todo")
		if serr != nil {
			return "", serr
		}
		resp, err = b.doJSON(ctx, "POST", "/pages", retry)
	}
	if err != nil {
		return "", err
	}
	pageID := gjson.GetBytes(resp, "id").String()
	if pageID == "" {
		return "", fmt.Errorf("notion: create task response missing page id")
	}
	return pageID, nil
}

// ListOpenTasks queries the tasks database for pages whose Status is not
// done, sorted by Due ascending.
func (b *Backend) ListOpenTasks(ctx context.Context, _ int64, limit int) ([]assistant.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	payload := map[string]any{
		"page_size": limit,
		"filter": map[string]any{
			"and": []any{
				map[string]any{
					"property": "Status",
					"select":   map[string]any{"does_not_equal": "done"},
				},
			},
		},
		"sorts": []any{
			map[string]any{"property": "Due", "direction": "ascending"},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notion: encode query: %w", err)
	}
	resp, err := b.doJSON(ctx, "POST", "/databases/"+b.cfg.TasksDB+"/query", raw)
	if err != nil {
		return nil, err
	}

	var tasks []assistant.Task
	gjson.GetBytes(resp, "results").ForEach(func(_, page gjson.Result) bool {
		id := page.Get("id").String()
		if id == "" {
			return true
		}
		tasks = append(tasks, assistant.Task{
			ID:          id,
			Title:       strings.TrimSpace(page.Get("properties.Title.title.0.plain_text").String()),
			Description: strings.TrimSpace(page.Get("properties.Description.rich_text.0.plain_text").String()),
			Status:      page.Get("properties.Status.select.name").String(),
			Due:         page.Get("properties.Due.date.start").String(),
		})
		return true
	})
	return tasks, nil
}

// MarkTaskDone sets Status=done and stamps Completed At.
func (b *Backend) MarkTaskDone(ctx context.Context, _ int64, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	payload := map[string]any{
		"properties": map[string]any{
			"Status":       map[string]any{"select": map[string]any{"name": "done"}},
			"Completed At": map[string]any{"date": map[string]any{"start": b.now().UTC().Format(time.RFC3339)}},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("notion: encode mark done: %w", err)
	}
	if _, err := b.doJSON(ctx, "PATCH", "/pages/"+id, raw); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateTaskTitle replaces the page title.
func (b *Backend) UpdateTaskTitle(ctx context.Context, id, title string) (bool, error) {
	id = strings.TrimSpace(id)
	title = strings.TrimSpace(title)
	if id == "" || title == "" {
		return false, nil
	}
	payload := map[string]any{
		"properties": map[string]any{
			"Title": map[string]any{"title": []any{textSpan(title)}},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("notion: encode title update: %w", err)
	}
	if _, err := b.doJSON(ctx, "PATCH", "/pages/"+id, raw); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateTaskDescription writes the Description rich text, falling back to
// the legacy Details property name when the workspace rejects it. An empty
// description clears the field.
func (b *Backend) UpdateTaskDescription(ctx context.Context, id, description string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	var spans []any
	if d := strings.TrimSpace(description); d != "" {
		spans = []any{textSpan(d)}
	} else {
		spans = []any{}
	}
	payload := map[string]any{
		"properties": map[string]any{
			"Description": map[string]any{"rich_text": spans},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("notion: encode description update: %w", err)
	}

	_, err = b.doJSON(ctx, "PATCH", "/pages/"+id, raw)
	if IsBadRequest(err) {
		logger.Debug(ctx, "notion", "description property rejected, retrying as details")
		retry, serr := descriptionAsDetails(raw)
		if serr != nil {
			return false, serr
		}
		_, err = b.doJSON(ctx, "PATCH", "/pages/"+id, retry)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListUniqueTaskTitles collects open-task titles across all result pages,
// normalizes legacy "Title | Description" values down to the title part,
// dedupes case-insensitively and returns them sorted.
func (b *Backend) ListUniqueTaskTitles(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	seen := make(map[string]string)
	cursor := ""
	for {
		payload := map[string]any{
			"page_size": 100,
			"filter": map[string]any{
				"property": "Status",
				"select":   map[string]any{"does_not_equal": "done"},
			},
		}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("notion: encode query: %w", err)
		}
		resp, err := b.doJSON(ctx, "POST", "/databases/"+b.cfg.TasksDB+"/query", raw)
		if err != nil {
			return nil, err
		}

		gjson.GetBytes(resp, "results").ForEach(func(_, page gjson.Result) bool {
			title := strings.TrimSpace(page.Get("properties.Title.title.0.plain_text").String())
			if before, _, found := strings.Cut(title, "|"); found {
				title = strings.TrimSpace(before)
			}
			if title == "" {
				return true
			}
			key := strings.ToLower(title)
			if _, ok := seen[key]; !ok {
				seen[key] = title
			}
			return true
		})

		if !gjson.GetBytes(resp, "has_more").Bool() {
			break
		}
		cursor = gjson.GetBytes(resp, "next_cursor").String()
		if cursor == "" {
			break
		}
	}

	titles := make([]string, 0, len(seen))
	for _, t := range seen {
		titles = append(titles, t)
	}
	sort.Slice(titles, func(i, j int) bool {
		return strings.ToLower(titles[i]) < strings.ToLower(titles[j])
	})
	if len(titles) > limit {
		titles = titles[:limit]
	}
	return titles, nil
}

// Search matches page titles in the tasks and notes databases.
func (b *Backend) Search(ctx context.Context, _ int64, query string, limit int) ([]assistant.SearchHit, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var hits []assistant.SearchHit
	taskHits, err := b.queryTitleContains(ctx, b.cfg.TasksDB, q, limit)
	if err != nil {
		return nil, err
	}
	for _, page := range taskHits {
		hits = append(hits, assistant.SearchHit{
			Kind: "task",
			ID:   page.Get("id").String(),
			Text: strings.TrimSpace(page.Get("properties.Title.title.0.plain_text").String()),
			Done: page.Get("properties.Status.select.name").String() == "done",
		})
	}
	if len(hits) < limit {
		noteHits, err := b.queryTitleContains(ctx, b.cfg.NotesDB, q, limit-len(hits))
		if err != nil {
			return nil, err
		}
		for _, page := range noteHits {
			hits = append(hits, assistant.SearchHit{
				Kind: "note",
				ID:   page.Get("id").String(),
				Text: strings.TrimSpace(page.Get("properties.Title.title.0.plain_text").String()),
			})
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (b *Backend) queryTitleContains(ctx context.Context, dbID, q string, limit int) ([]gjson.Result, error) {
	payload := map[string]any{
		"page_size": limit,
		"filter": map[string]any{
			"property": "Title",
			"title":    map[string]any{"contains": q},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notion: encode query: %w", err)
	}
	resp, err := b.doJSON(ctx, "POST", "/databases/"+dbID+"/query", raw)
	if err != nil {
		return nil, err
	}
	return gjson.GetBytes(resp, "results").Array(), nil
}

// GetSetting delegates to the settings store.
func (b *Backend) GetSetting(ctx context.Context, key, def string) (string, error) {
	return b.settings.GetSetting(ctx, key, def)
}

// SetSetting delegates to the settings store.
func (b *Backend) SetSetting(ctx context.Context, key, value string) error {
	return b.settings.SetSetting(ctx, key, value)
}

// PageURL builds the public page link from a page id.
func (b *Backend) PageURL(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return "https://www.notion.so/" + strings.ReplaceAll(id, "-", "")
}

func textSpan(content string) map[string]any {
	return map[string]any{
		"type": "text",
		"text": map[string]any{"content": content},
	}
}

func noteTitle(text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if len(line) > noteTitleLimit {
		line = line[:noteTitleLimit]
	}
	return line
}

func chunkText(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > size {
		chunks = append(chunks, text[:size])
		text = text[size:]
	}
	return append(chunks, text)
}

// statusAsSelect rewrites the Status property of an encoded page payload
// from the status shape to the select shape.
func statusAsSelect(raw []byte, name string) ([]byte, error) {
	out, err := sjson.DeleteBytes(raw, "properties.Status.status")
	if err != nil {
		return nil, fmt.Errorf("notion: rewrite status: %w", err)
	}
	out, err = sjson.SetBytes(out, "properties.Status.select.name", name)
	if err != nil {
		return nil, fmt.Errorf("notion: rewrite status: %w", err)
	}
	return out, nil
}

// descriptionAsDetails moves the Description rich text of an encoded page
// payload under the legacy Details property name.
func descriptionAsDetails(raw []byte) ([]byte, error) {
	spans := gjson.GetBytes(raw, "properties.Description.rich_text")
	out, err := sjson.DeleteBytes(raw, "properties.Description")
	if err != nil {
		return nil, fmt.Errorf("notion: rewrite description: %w", err)
	}
	out, err = sjson.SetRawBytes(out, "properties.Details.rich_text", []byte(spans.Raw))
	if err != nil {
		return nil, fmt.Errorf("notion: rewrite description: %w", err)
	}
	return out, nil
}

type memorySettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memorySettings) GetSetting(_ context.Context, key, def string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *memorySettings) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}
