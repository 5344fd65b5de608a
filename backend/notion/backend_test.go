package notion

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		Token:   "secret-token",
		NotesDB: "notes-db",
		TasksDB: "tasks-db",
		BaseURL: srv.URL,
	})
	return NewBackend(c, nil)
}

func readBody(t *testing.T, r *http.Request) gjson.Result {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read request body: %v", err)
	}
	return gjson.ParseBytes(data)
}

func TestRequestHeadersAndTokenSanitizing(t *testing.T) {
	var gotAuth, gotVersion string
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Notion-Version")
		io.WriteString(w, `{"id":"page-1"}`)
	})
	// Tokens pasted from env files carry stray whitespace.
	b.cfg.Token = sanitizeToken("  secret-token\n\r")

	if _, err := b.CreateNote(context.Background(), 1, "hello"); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotVersion != "2022-06-28" {
		t.Fatalf("Notion-Version = %q", gotVersion)
	}
}

func TestCreateNotePayload(t *testing.T) {
	long := strings.Repeat("x", 2000)
	text := "Shopping plan\n" + long

	var body gjson.Result
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body = readBody(t, r)
		io.WriteString(w, `{"id":"page-1"}`)
	})

	id, err := b.CreateNote(context.Background(), 1, text)
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if id != "page-1" {
		t.Fatalf("id = %q", id)
	}
	if got := body.Get("parent.database_id").String(); got != "notes-db" {
		t.Fatalf("parent = %q", got)
	}
	if got := body.Get("properties.Title.title.0.text.content").String(); got != "Shopping plan" {
		t.Fatalf("title = %q", got)
	}
	if got := body.Get("properties.Source.select.name").String(); got != "telegram" {
		t.Fatalf("source = %q", got)
	}
	// 2014 chars of body text split in 1800-char paragraphs.
	children := body.Get("children").Array()
	if len(children) != 2 {
		t.Fatalf("children = %d", len(children))
	}
	first := children[0].Get("paragraph.rich_text.0.text.content").String()
	if len(first) != 1800 {
		t.Fatalf("first chunk len = %d", len(first))
	}
}

func TestNoteTitleCapped(t *testing.T) {
	long := strings.Repeat("t", 150)
	if got := noteTitle(long); len(got) != 100 {
		t.Fatalf("title len = %d", len(got))
	}
	if got := noteTitle("  first line  \nsecond"); got != "first line" {
		t.Fatalf("title = %q", got)
	}
}

func TestCreateTaskStatusSelectFallback(t *testing.T) {
	var calls int
	var second gjson.Result
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		body := readBody(t, r)
		if calls == 1 {
			if got := body.Get("properties.Status.status.name").String(); got != "todo" {
				t.Errorf("first call status = %q", got)
			}
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"message":"Status is expected to be select"}`)
			return
		}
		second = body
		io.WriteString(w, `{"id":"page-2"}`)
	})

	id, err := b.CreateTask(context.Background(), 1, "Grocery", "Buy milk")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if id != "page-2" || calls != 2 {
		t.Fatalf("id = %q, calls = %d", id, calls)
	}
	if got := second.Get("properties.Status.select.name").String(); got != "todo" {
		t.Fatalf("retry status = %q", got)
	}
	if second.Get("properties.Status.status").Exists() {
		t.Fatal("retry still carries the status shape")
	}
	if got := second.Get("properties.Description.rich_text.0.text.content").String(); got != "Buy milk" {
		t.Fatalf("description = %q", got)
	}
}

func TestCreateTaskOmitsEmptyDescription(t *testing.T) {
	var body gjson.Result
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		body = readBody(t, r)
		io.WriteString(w, `{"id":"page-1"}`)
	})
	if _, err := b.CreateTask(context.Background(), 1, "Grocery", "  "); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if body.Get("properties.Description").Exists() {
		t.Fatal("blank description should be omitted")
	}
}

func TestListOpenTasksParsing(t *testing.T) {
	var body gjson.Result
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/databases/tasks-db/query" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body = readBody(t, r)
		io.WriteString(w, `{"results":[
			{"id":"p1","properties":{
				"Title":{"title":[{"plain_text":" Grocery "}]},
				"Description":{"rich_text":[{"plain_text":"Buy milk"}]},
				"Status":{"select":{"name":"todo"}},
				"Due":{"date":{"start":"2026-03-01"}}}},
			{"id":"p2","properties":{"Title":{"title":[]}}}
		]}`)
	})

	tasks, err := b.ListOpenTasks(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("ListOpenTasks: %v", err)
	}
	if got := body.Get("page_size").Int(); got != 5 {
		t.Fatalf("page_size = %d", got)
	}
	if got := body.Get("filter.and.0.select.does_not_equal").String(); got != "done" {
		t.Fatalf("filter = %q", got)
	}
	if got := body.Get("sorts.0.property").String(); got != "Due" {
		t.Fatalf("sort = %q", got)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %#v", tasks)
	}
	want := tasks[0]
	if want.ID != "p1" || want.Title != "Grocery" || want.Description != "Buy milk" ||
		want.Status != "todo" || want.Due != "2026-03-01" {
		t.Fatalf("task = %#v", want)
	}
	if tasks[1].Title != "" {
		t.Fatalf("empty-title page = %#v", tasks[1])
	}
}

func TestMarkTaskDonePayload(t *testing.T) {
	var body gjson.Result
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/v1/pages/p1" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		body = readBody(t, r)
		io.WriteString(w, `{"id":"p1"}`)
	})
	b.now = func() time.Time {
		return time.Date(2026, 3, 1, 2, 30, 0, 0, time.FixedZone("SGT", 8*3600))
	}

	ok, err := b.MarkTaskDone(context.Background(), 1, "p1")
	if err != nil || !ok {
		t.Fatalf("MarkTaskDone = (%v, %v)", ok, err)
	}
	if got := body.Get("properties.Status.select.name").String(); got != "done" {
		t.Fatalf("status = %q", got)
	}
	// Timestamps go out in UTC.
	if got := body.Get("properties.Completed At.date.start").String(); got != "2026-02-28T18:30:00Z" {
		t.Fatalf("completed at = %q", got)
	}

	if ok, err := b.MarkTaskDone(context.Background(), 1, "  "); ok || err != nil {
		t.Fatalf("blank id = (%v, %v)", ok, err)
	}
}

func TestUpdateTaskDescriptionDetailsFallback(t *testing.T) {
	var calls int
	var second gjson.Result
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		body := readBody(t, r)
		if calls == 1 {
			if !body.Get("properties.Description").Exists() {
				t.Error("first call should try Description")
			}
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"message":"Description is not a property"}`)
			return
		}
		second = body
		io.WriteString(w, `{"id":"p1"}`)
	})

	ok, err := b.UpdateTaskDescription(context.Background(), "p1", "Buy milk")
	if err != nil || !ok {
		t.Fatalf("UpdateTaskDescription = (%v, %v)", ok, err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
	if second.Get("properties.Description").Exists() {
		t.Fatal("retry still carries Description")
	}
	if got := second.Get("properties.Details.rich_text.0.text.content").String(); got != "Buy milk" {
		t.Fatalf("details = %q", got)
	}
}

func TestListUniqueTaskTitles(t *testing.T) {
	var calls int
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		body := readBody(t, r)
		if calls == 1 {
			if body.Get("start_cursor").Exists() {
				t.Error("first page should carry no cursor")
			}
			io.WriteString(w, `{"has_more":true,"next_cursor":"cur-2","results":[
				{"properties":{"Title":{"title":[{"plain_text":"Grocery | old style desc"}]}}},
				{"properties":{"Title":{"title":[{"plain_text":"Work"}]}}}
			]}`)
			return
		}
		if got := body.Get("start_cursor").String(); got != "cur-2" {
			t.Errorf("cursor = %q", got)
		}
		io.WriteString(w, `{"has_more":false,"results":[
			{"properties":{"Title":{"title":[{"plain_text":"grocery"}]}}},
			{"properties":{"Title":{"title":[{"plain_text":"Bills"}]}}},
			{"properties":{"Title":{"title":[]}}}
		]}`)
	})

	titles, err := b.ListUniqueTaskTitles(context.Background(), 20)
	if err != nil {
		t.Fatalf("ListUniqueTaskTitles: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
	want := []string{"Bills", "Grocery", "Work"}
	if len(titles) != len(want) {
		t.Fatalf("titles = %#v", titles)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("titles = %#v, want %#v", titles, want)
		}
	}
}

func TestSearchQueriesBothDatabases(t *testing.T) {
	var paths []string
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.Contains(r.URL.Path, "tasks-db") {
			io.WriteString(w, `{"results":[
				{"id":"t1","properties":{
					"Title":{"title":[{"plain_text":"Grocery run"}]},
					"Status":{"select":{"name":"done"}}}}
			]}`)
			return
		}
		io.WriteString(w, `{"results":[
			{"id":"n1","properties":{"Title":{"title":[{"plain_text":"grocery list"}]}}}
		]}`)
	})

	hits, err := b.Search(context.Background(), 1, "grocery", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(paths) != 2 || !strings.Contains(paths[0], "tasks-db") || !strings.Contains(paths[1], "notes-db") {
		t.Fatalf("paths = %v", paths)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %#v", hits)
	}
	if hits[0].Kind != "task" || !hits[0].Done || hits[0].Text != "Grocery run" {
		t.Fatalf("task hit = %#v", hits[0])
	}
	if hits[1].Kind != "note" || hits[1].ID != "n1" {
		t.Fatalf("note hit = %#v", hits[1])
	}

	if hits, err := b.Search(context.Background(), 1, "  ", 10); err != nil || hits != nil {
		t.Fatalf("blank query = (%#v, %v)", hits, err)
	}
}

func TestAPIErrorSnippetBounded(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, strings.Repeat("e", 2000))
	})

	_, err := b.ListOpenTasks(context.Background(), 1, 5)
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if len(apiErr.Snippet) != 500 {
		t.Fatalf("snippet len = %d", len(apiErr.Snippet))
	}
	if IsBadRequest(err) {
		t.Fatal("500 misread as bad request")
	}
}

func TestPageURL(t *testing.T) {
	b := NewBackend(New(Config{Token: "x"}), nil)
	got := b.PageURL("2f3a-4b5c-6d7e")
	if got != "https://www.notion.so/2f3a4b5c6d7e" {
		t.Fatalf("url = %q", got)
	}
	if b.PageURL("  ") != "" {
		t.Fatal("blank id should yield no url")
	}
}

func TestConfigured(t *testing.T) {
	if New(Config{Token: "x"}).Configured() {
		t.Fatal("missing db ids should not be configured")
	}
	if !New(Config{Token: "x", NotesDB: "n", TasksDB: "t"}).Configured() {
		t.Fatal("full config should be configured")
	}
	var nilClient *Client
	if nilClient.Configured() {
		t.Fatal("nil client should not be configured")
	}
}
