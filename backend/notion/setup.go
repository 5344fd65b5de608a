package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultLabels are the label options provisioned on fresh databases; the
// relational store seeds the same set so both backends agree on the taxonomy.
var DefaultLabels = []string{
	"Personal",
	"Finance",
	"Admin",
	"Projects",
	"LG Admin",
	"LG Client",
	"TDT Admin",
	"TDT Projects",
	"SAFEhaven",
}

// SetupResult carries the ids of the freshly provisioned databases.
type SetupResult struct {
	NotesDB string `json:"notes_db_id"`
	TasksDB string `json:"tasks_db_id"`
}

// SetupDatabases provisions the workspace once: a notes database and a
// tasks database under the given parent page, seeded label options and a
// dual relation between them (Tasks "Source Notes" synced to Notes
// "Related Tasks").
func (c *Client) SetupDatabases(ctx context.Context, parentPageID string) (SetupResult, error) {
	parentPageID = strings.TrimSpace(parentPageID)
	if parentPageID == "" {
		return SetupResult{}, fmt.Errorf("notion: parent page id must be non-empty")
	}

	notesDB, err := c.createDatabase(ctx, parentPageID, "KC Notes", notesProperties())
	if err != nil {
		return SetupResult{}, err
	}
	tasksDB, err := c.createDatabase(ctx, parentPageID, "KC Tasks", tasksProperties())
	if err != nil {
		return SetupResult{}, err
	}

	if err := c.createRelation(ctx, notesDB, tasksDB); err != nil {
		return SetupResult{}, err
	}
	return SetupResult{NotesDB: notesDB.id, TasksDB: tasksDB.id}, nil
}

type createdDB struct {
	id           string
	dataSourceID string
}

func (c *Client) createDatabase(ctx context.Context, parentPageID, title string, properties map[string]any) (createdDB, error) {
	payload := map[string]any{
		"parent": map[string]any{"type": "page_id", "page_id": parentPageID},
		"title": []any{
			map[string]any{"type": "text", "text": map[string]any{"content": title}},
		},
		"properties": properties,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return createdDB{}, fmt.Errorf("notion: encode database: %w", err)
	}
	resp, err := c.doJSON(ctx, "POST", "/databases", raw)
	if err != nil {
		return createdDB{}, err
	}

	db := createdDB{id: gjson.GetBytes(resp, "id").String()}
	if db.id == "" {
		return createdDB{}, fmt.Errorf("notion: create database response missing id for %q", title)
	}
	// Newer API versions expose the data source separately from the
	// database container; older versions do not have one at all.
	if ds := gjson.GetBytes(resp, "data_sources.0.id").String(); ds != "" {
		db.dataSourceID = ds
	} else if ds := gjson.GetBytes(resp, "initial_data_source.id").String(); ds != "" {
		db.dataSourceID = ds
	}
	return db, nil
}

// createRelation adds Tasks "Source Notes" pointing at the notes database
// with the synced "Related Tasks" property on the notes side. The data
// source endpoint is used when the API version exposes one, the database
// endpoint otherwise.
func (c *Client) createRelation(ctx context.Context, notes, tasks createdDB) error {
	var path string
	var relation map[string]any
	if tasks.dataSourceID != "" && notes.dataSourceID != "" {
		path = "/data_sources/" + tasks.dataSourceID
		relation = map[string]any{
			"data_source_id": notes.dataSourceID,
			"dual_property":  map[string]any{"synced_property_name": "Related Tasks"},
		}
	} else {
		path = "/databases/" + tasks.id
		relation = map[string]any{
			"database_id":   notes.id,
			"dual_property": map[string]any{"synced_property_name": "Related Tasks"},
		}
	}

	payload := map[string]any{
		"properties": map[string]any{
			"Source Notes": map[string]any{
				"type":     "relation",
				"relation": relation,
			},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notion: encode relation: %w", err)
	}
	if _, err := c.doJSON(ctx, "PATCH", path, raw); err != nil {
		return err
	}
	return nil
}

func selectOptions(names ...string) map[string]any {
	opts := make([]any, 0, len(names))
	for _, n := range names {
		opts = append(opts, map[string]any{"name": n, "color": "default"})
	}
	return map[string]any{"options": opts}
}

func notesProperties() map[string]any {
	return map[string]any{
		"Title":                 map[string]any{"title": map[string]any{}},
		"Type":                  map[string]any{"select": selectOptions("meeting", "research", "receipt", "tech", "personal", "other")},
		"Tags":                  map[string]any{"multi_select": selectOptions()},
		"Labels":                map[string]any{"multi_select": selectOptions(DefaultLabels...)},
		"Source":                map[string]any{"select": selectOptions("telegram", "web")},
		"Telegram Message Link": map[string]any{"url": map[string]any{}},
		"AI Structured":         map[string]any{"checkbox": map[string]any{}},
		"AI Summary":            map[string]any{"rich_text": map[string]any{}},
		"AI Bullets":            map[string]any{"rich_text": map[string]any{}},
	}
}

func tasksProperties() map[string]any {
	return map[string]any{
		"Title":        map[string]any{"title": map[string]any{}},
		"Status":       map[string]any{"select": selectOptions("todo", "doing", "done")},
		"Due":          map[string]any{"date": map[string]any{}},
		"Priority":     map[string]any{"select": selectOptions("low", "med", "high")},
		"Labels":       map[string]any{"multi_select": selectOptions(DefaultLabels...)},
		"Source":       map[string]any{"select": selectOptions("telegram", "note_extraction", "web")},
		"Completed At": map[string]any{"date": map[string]any{}},
		"Description":  map[string]any{"rich_text": map[string]any{}},
		"Confidence":   map[string]any{"number": map[string]any{}},
		"Needs Review": map[string]any{"checkbox": map[string]any{}},
	}
}
