package notion

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{Token: "secret", BaseURL: srv.URL})
}

func TestSetupDatabasesWithDataSources(t *testing.T) {
	var createBodies []gjson.Result
	var relationPath string
	var relationBody gjson.Result
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/databases":
			body := readBody(t, r)
			createBodies = append(createBodies, body)
			if len(createBodies) == 1 {
				io.WriteString(w, `{"id":"notes-id","data_sources":[{"id":"notes-ds"}]}`)
			} else {
				io.WriteString(w, `{"id":"tasks-id","data_sources":[{"id":"tasks-ds"}]}`)
			}
		case r.Method == http.MethodPatch:
			relationPath = r.URL.Path
			relationBody = readBody(t, r)
			io.WriteString(w, `{}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	res, err := c.SetupDatabases(context.Background(), "parent-page")
	if err != nil {
		t.Fatalf("SetupDatabases: %v", err)
	}
	if res.NotesDB != "notes-id" || res.TasksDB != "tasks-id" {
		t.Fatalf("result = %#v", res)
	}

	if len(createBodies) != 2 {
		t.Fatalf("create calls = %d", len(createBodies))
	}
	notes := createBodies[0]
	if got := notes.Get("parent.page_id").String(); got != "parent-page" {
		t.Fatalf("parent = %q", got)
	}
	if got := notes.Get("title.0.text.content").String(); got != "KC Notes" {
		t.Fatalf("notes title = %q", got)
	}
	tasks := createBodies[1]
	if got := tasks.Get("title.0.text.content").String(); got != "KC Tasks" {
		t.Fatalf("tasks title = %q", got)
	}
	if got := tasks.Get("properties.Status.select.options.#").Int(); got != 3 {
		t.Fatalf("status options = %d", got)
	}
	labels := tasks.Get("properties.Labels.multi_select.options.#.name").Array()
	if len(labels) != len(DefaultLabels) || labels[0].String() != "Personal" {
		t.Fatalf("labels = %v", labels)
	}

	if relationPath != "/v1/data_sources/tasks-ds" {
		t.Fatalf("relation path = %q", relationPath)
	}
	rel := relationBody.Get("properties.Source Notes.relation")
	if got := rel.Get("data_source_id").String(); got != "notes-ds" {
		t.Fatalf("relation target = %q", got)
	}
	if got := rel.Get("dual_property.synced_property_name").String(); got != "Related Tasks" {
		t.Fatalf("synced name = %q", got)
	}
}

func TestSetupDatabasesLegacyRelationFallback(t *testing.T) {
	var dbCount int
	var relationPath string
	var relationBody gjson.Result
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/databases":
			dbCount++
			if dbCount == 1 {
				io.WriteString(w, `{"id":"notes-id"}`)
			} else {
				io.WriteString(w, `{"id":"tasks-id"}`)
			}
		case r.Method == http.MethodPatch:
			relationPath = r.URL.Path
			relationBody = readBody(t, r)
			io.WriteString(w, `{}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	if _, err := c.SetupDatabases(context.Background(), "parent-page"); err != nil {
		t.Fatalf("SetupDatabases: %v", err)
	}
	// Without data sources the relation goes through the database endpoint.
	if relationPath != "/v1/databases/tasks-id" {
		t.Fatalf("relation path = %q", relationPath)
	}
	if got := relationBody.Get("properties.Source Notes.relation.database_id").String(); got != "notes-id" {
		t.Fatalf("relation target = %q", got)
	}
}

func TestSetupDatabasesRequiresParent(t *testing.T) {
	c := New(Config{Token: "secret"})
	if _, err := c.SetupDatabases(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank parent page id")
	}
}
