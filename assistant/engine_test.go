package assistant

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
)

// fakeBackend is an in-process Backend with adjustable kind, so engine flows
// can be driven without real storage.
type fakeBackend struct {
	kind     string
	nextID   int
	notes    []Note
	tasks    []Task
	titles   []string
	settings map[string]string

	failCreateTask bool
	failMarkDone   bool
}

func newFakeBackend(kind string) *fakeBackend {
	return &fakeBackend{kind: kind, settings: make(map[string]string)}
}

func (f *fakeBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeBackend) Kind() string { return f.kind }

func (f *fakeBackend) CreateNote(_ context.Context, _ int64, text string) (string, error) {
	id := f.id("note")
	f.notes = append(f.notes, Note{ID: id, Text: text})
	return id, nil
}

func (f *fakeBackend) CreateTask(_ context.Context, _ int64, title, description string) (string, error) {
	if f.failCreateTask {
		return "", fmt.Errorf("create failed")
	}
	id := f.id("task")
	f.tasks = append(f.tasks, Task{ID: id, Title: title, Description: description})
	return id, nil
}

func (f *fakeBackend) ListOpenTasks(_ context.Context, _ int64, limit int) ([]Task, error) {
	var open []Task
	for _, t := range f.tasks {
		if !t.Done {
			open = append(open, t)
		}
	}
	if limit > 0 && len(open) > limit {
		open = open[len(open)-limit:]
	}
	return open, nil
}

func (f *fakeBackend) MarkTaskDone(_ context.Context, _ int64, id string) (bool, error) {
	if f.failMarkDone {
		return false, fmt.Errorf("mark done failed")
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id && !f.tasks[i].Done {
			f.tasks[i].Done = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackend) UpdateTaskTitle(_ context.Context, id, title string) (bool, error) {
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Title = title
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackend) UpdateTaskDescription(_ context.Context, id, description string) (bool, error) {
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Description = description
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackend) Search(_ context.Context, _ int64, query string, limit int) ([]SearchHit, error) {
	q := strings.ToLower(query)
	var hits []SearchHit
	for _, t := range f.tasks {
		if strings.Contains(strings.ToLower(t.Title), q) && len(hits) < limit {
			hits = append(hits, SearchHit{Kind: "task", ID: t.ID, Text: t.Title, Done: t.Done})
		}
	}
	for _, n := range f.notes {
		if strings.Contains(strings.ToLower(n.Text), q) && len(hits) < limit {
			hits = append(hits, SearchHit{Kind: "note", ID: n.ID, Text: n.Text})
		}
	}
	return hits, nil
}

func (f *fakeBackend) GetSetting(_ context.Context, key, def string) (string, error) {
	if v, ok := f.settings[key]; ok {
		return v, nil
	}
	return def, nil
}

func (f *fakeBackend) SetSetting(_ context.Context, key, value string) error {
	f.settings[key] = value
	return nil
}

func (f *fakeBackend) ListUniqueTaskTitles(_ context.Context, limit int) ([]string, error) {
	if limit > 0 && len(f.titles) > limit {
		return f.titles[:limit], nil
	}
	return f.titles, nil
}

func (f *fakeBackend) PageURL(id string) string {
	if f.kind != BackendNotion {
		return ""
	}
	return "https://www.notion.so/" + id
}

func newTestEngine(kind string) (*Engine, *fakeBackend, *Store) {
	f := newFakeBackend(kind)
	store := NewStore(0)
	e := NewEngine(store, func(context.Context) Backend { return f })
	return e, f, store
}

func msgEvent(chatID int64, messageID int, text string) Event {
	return Event{Type: EventMessage, ChatID: chatID, MessageID: messageID, Text: text}
}

func cbEvent(chatID int64, messageID int, action string) Event {
	return Event{
		Type:      EventCallback,
		ChatID:    chatID,
		MessageID: messageID,
		Callback:  &Callback{Action: action},
	}
}

func singleReply(t *testing.T, intents []Intent) Reply {
	t.Helper()
	if len(intents) != 1 {
		t.Fatalf("expected 1 intent, got %d: %#v", len(intents), intents)
	}
	r, ok := intents[0].(Reply)
	if !ok {
		t.Fatalf("expected Reply, got %#v", intents[0])
	}
	return r
}

func TestIllTypedEvents(t *testing.T) {
	e, _, _ := newTestEngine(BackendMemory)
	ctx := context.Background()

	if got := e.Handle(ctx, Event{Type: EventMessage, Text: "hi"}); got != nil {
		t.Fatalf("zero chat id: %#v", got)
	}
	if got := e.Handle(ctx, Event{Type: "unknown", ChatID: 1, Text: "hi"}); got != nil {
		t.Fatalf("unknown type: %#v", got)
	}
	if got := e.Handle(ctx, Event{Type: EventCallback, ChatID: 1}); got != nil {
		t.Fatalf("callback without payload: %#v", got)
	}
}

func TestPlainTextSavesNote(t *testing.T) {
	e, f, _ := newTestEngine(BackendMemory)

	r := singleReply(t, e.Handle(context.Background(), msgEvent(1, 10, "remember the milk")))
	if r.Text != "Saved note: note-1" {
		t.Fatalf("reply = %q", r.Text)
	}
	if len(f.notes) != 1 || f.notes[0].Text != "remember the milk" {
		t.Fatalf("notes = %#v", f.notes)
	}
}

func TestNoteCommandNotion(t *testing.T) {
	e, _, _ := newTestEngine(BackendNotion)

	intents := e.Handle(context.Background(), msgEvent(1, 10, "/note buy milk"))
	r := singleReply(t, intents)
	if r.Text != "Saved note (Notion): note-1" {
		t.Fatalf("reply = %q", r.Text)
	}
	if r.Markup == nil || len(r.Markup.Rows) != 1 {
		t.Fatalf("markup = %#v", r.Markup)
	}
	btn := r.Markup.Rows[0][0]
	if btn.Text != "Open in Notion" || !strings.Contains(btn.URL, "notion.so") {
		t.Fatalf("button = %#v", btn)
	}
}

func TestDoneCommand(t *testing.T) {
	e, f, _ := newTestEngine(BackendMemory)
	ctx := context.Background()
	id, _ := f.CreateTask(ctx, 1, "Grocery", "")

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/done "+id)))
	if r.Text != "Marked done: "+id {
		t.Fatalf("reply = %q", r.Text)
	}

	// Done twice is reported as not found.
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 11, "/done "+id)))
	if r.Text != "Task not found (or already done): "+id {
		t.Fatalf("repeat reply = %q", r.Text)
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 12, "/done nope")))
	if r.Text != "Task not found (or already done): nope" {
		t.Fatalf("missing reply = %q", r.Text)
	}
}

func TestTodayGroupedNotion(t *testing.T) {
	e, f, _ := newTestEngine(BackendNotion)
	ctx := context.Background()
	_, _ = f.CreateTask(ctx, 1, "Grocery", "Buy milk")
	_, _ = f.CreateTask(ctx, 1, "bills", "")
	_, _ = f.CreateTask(ctx, 1, "Grocery", "buy eggs")

	intents := e.Handle(ctx, msgEvent(1, 10, "/today"))
	if len(intents) != 2 {
		t.Fatalf("expected Reply+Cache, got %#v", intents)
	}
	r, ok := intents[0].(Reply)
	if !ok {
		t.Fatalf("first intent = %#v", intents[0])
	}
	want := "Open tasks: 3\n1. bills\n2. Grocery | buy eggs\n3. Grocery | Buy milk"
	if r.Text != want {
		t.Fatalf("text = %q, want %q", r.Text, want)
	}
	if r.Markup == nil || len(r.Markup.Rows) != 1 || len(r.Markup.Rows[0]) != 2 {
		t.Fatalf("markup = %#v", r.Markup)
	}
	if r.Markup.Rows[0][0].Action != ActionPickDone || r.Markup.Rows[0][1].Action != ActionPickEdit {
		t.Fatalf("buttons = %#v", r.Markup.Rows[0])
	}

	cache, ok := intents[1].(CacheTaskList)
	if !ok {
		t.Fatalf("second intent = %#v", intents[1])
	}
	if cache.ListKind != ListToday || len(cache.Tasks) != 3 {
		t.Fatalf("cache = %#v", cache)
	}
	if cache.Tasks[0].Title != "bills" {
		t.Fatalf("cache order = %#v", cache.Tasks)
	}
}

func TestTodayFlatMemory(t *testing.T) {
	e, f, _ := newTestEngine(BackendMemory)
	ctx := context.Background()
	id, _ := f.CreateTask(ctx, 1, "Grocery", "")

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/today")))
	want := "Open tasks: 1\n- " + id + ": Grocery"
	if r.Text != want {
		t.Fatalf("text = %q, want %q", r.Text, want)
	}
	if r.Markup != nil {
		t.Fatalf("flat list should have no buttons: %#v", r.Markup)
	}
}

func TestTodayFlatCountsAllOpenTasks(t *testing.T) {
	e, f, _ := newTestEngine(BackendMemory)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		_, _ = f.CreateTask(ctx, 1, "Task "+strconv.Itoa(i), "")
	}

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/today")))
	if !strings.HasPrefix(r.Text, "Open tasks: 7\n") {
		t.Fatalf("header = %q, want total count of 7", r.Text)
	}
	lines := strings.Split(r.Text, "\n")
	if len(lines) != 6 {
		t.Fatalf("preview lines = %d, want 5: %q", len(lines)-1, r.Text)
	}
	if !strings.HasSuffix(lines[1], "Task 3") || !strings.HasSuffix(lines[5], "Task 7") {
		t.Fatalf("preview should show the newest tasks: %q", r.Text)
	}
}

func TestEmptyLists(t *testing.T) {
	e, _, _ := newTestEngine(BackendNotion)
	ctx := context.Background()

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/today")))
	if r.Text != "No open tasks. Go touch grass 🌱" {
		t.Fatalf("today = %q", r.Text)
	}
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 11, "/inbox")))
	if r.Text != "Inbox is empty" {
		t.Fatalf("inbox = %q", r.Text)
	}
}

// driveList runs /today and plants the cache snapshot under messageID, the
// way the transport does after sending the list message.
func driveList(t *testing.T, e *Engine, store *Store, chatID int64, messageID int) CacheTaskList {
	t.Helper()
	intents := e.Handle(context.Background(), msgEvent(chatID, 1, "/today"))
	if len(intents) != 2 {
		t.Fatalf("expected Reply+Cache, got %#v", intents)
	}
	cache, ok := intents[1].(CacheTaskList)
	if !ok {
		t.Fatalf("second intent = %#v", intents[1])
	}
	store.CacheList(chatID, messageID, CachedList{Kind: cache.ListKind, Tasks: cache.Tasks, Text: cache.Text})
	return cache
}

func TestDoneButtonFlow(t *testing.T) {
	e, f, store := newTestEngine(BackendNotion)
	ctx := context.Background()
	_, _ = f.CreateTask(ctx, 1, "Grocery", "Buy milk")
	_, _ = f.CreateTask(ctx, 1, "Work", "Report")
	driveList(t, e, store, 1, 99)

	r := singleReply(t, e.Handle(ctx, cbEvent(1, 99, ActionPickDone)))
	if r.Text != "Which item number to mark done? Reply with the number (1-2)." {
		t.Fatalf("prompt = %q", r.Text)
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 100, "abc")))
	if r.Text != "Reply with the item number from the list." {
		t.Fatalf("non-numeric = %q", r.Text)
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 101, "0")))
	if r.Text != "Out of range. Reply with a number between 1 and 2." {
		t.Fatalf("zero = %q", r.Text)
	}
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 102, "5")))
	if r.Text != "Out of range. Reply with a number between 1 and 2." {
		t.Fatalf("overflow = %q", r.Text)
	}

	intents := e.Handle(ctx, msgEvent(1, 103, "1"))
	if len(intents) != 1 {
		t.Fatalf("intents = %#v", intents)
	}
	edit, ok := intents[0].(Edit)
	if !ok {
		t.Fatalf("expected Edit, got %#v", intents[0])
	}
	if edit.MessageID != 99 || edit.RemoveTaskID == "" {
		t.Fatalf("edit = %#v", edit)
	}
	// Item 1 in display order is "Grocery | Buy milk".
	if edit.RemoveTaskID != "task-1" {
		t.Fatalf("removed %q", edit.RemoveTaskID)
	}
	if !f.tasks[0].Done {
		t.Fatal("task not marked done in backend")
	}
	if !strings.Contains(edit.Text, "1. Work | Report") {
		t.Fatalf("re-rendered text = %q", edit.Text)
	}
	if edit.Markup == nil {
		t.Fatal("edited list lost its buttons")
	}

	// Pending consumed: the next number is just a note.
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 104, "2")))
	if !strings.HasPrefix(r.Text, "Saved note") {
		t.Fatalf("follow-up = %q", r.Text)
	}
}

func TestDoneButtonLastItemClearsList(t *testing.T) {
	e, f, store := newTestEngine(BackendNotion)
	ctx := context.Background()
	_, _ = f.CreateTask(ctx, 1, "Grocery", "")
	driveList(t, e, store, 1, 99)

	_ = e.Handle(ctx, cbEvent(1, 99, ActionPickDone))
	intents := e.Handle(ctx, msgEvent(1, 100, "1"))
	edit, ok := intents[0].(Edit)
	if !ok {
		t.Fatalf("expected Edit, got %#v", intents[0])
	}
	if edit.Text != "No open tasks. Go touch grass 🌱" {
		t.Fatalf("empty text = %q", edit.Text)
	}
	if edit.Markup != nil {
		t.Fatalf("empty list keeps markup: %#v", edit.Markup)
	}
	if _, ok := store.CachedList(1, 99); ok {
		t.Fatal("cache entry should be dropped")
	}
}

func TestEditButtonFlow(t *testing.T) {
	e, f, store := newTestEngine(BackendNotion)
	ctx := context.Background()
	_, _ = f.CreateTask(ctx, 1, "Grocery", "Buy milk")
	driveList(t, e, store, 1, 99)

	r := singleReply(t, e.Handle(ctx, cbEvent(1, 99, ActionPickEdit)))
	if r.Text != "Which item number to edit? Reply with the number (1-1)." {
		t.Fatalf("prompt = %q", r.Text)
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 100, "1")))
	want := "Send the new text as:\nNew Title | New Description\n(only a title, or \"| New Description\" to change just the description)"
	if r.Text != want {
		t.Fatalf("edit prompt = %q", r.Text)
	}

	intents := e.Handle(ctx, msgEvent(1, 101, "Groceries | Buy oat milk"))
	edit, ok := intents[0].(Edit)
	if !ok {
		t.Fatalf("expected Edit, got %#v", intents[0])
	}
	if edit.Update == nil || edit.Update.Title != "Groceries" || edit.Update.Description != "Buy oat milk" {
		t.Fatalf("update = %#v", edit.Update)
	}
	if f.tasks[0].Title != "Groceries" || f.tasks[0].Description != "Buy oat milk" {
		t.Fatalf("backend task = %#v", f.tasks[0])
	}
	if !strings.Contains(edit.Text, "1. Groceries | Buy oat milk") {
		t.Fatalf("re-rendered = %q", edit.Text)
	}
}

func TestEditDescriptionOnly(t *testing.T) {
	e, f, store := newTestEngine(BackendNotion)
	ctx := context.Background()
	_, _ = f.CreateTask(ctx, 1, "Grocery", "Buy milk")
	driveList(t, e, store, 1, 99)

	_ = e.Handle(ctx, cbEvent(1, 99, ActionPickEdit))
	_ = e.Handle(ctx, msgEvent(1, 100, "1"))
	intents := e.Handle(ctx, msgEvent(1, 101, "| Buy oat milk"))
	if _, ok := intents[0].(Edit); !ok {
		t.Fatalf("expected Edit, got %#v", intents[0])
	}
	if f.tasks[0].Title != "Grocery" || f.tasks[0].Description != "Buy oat milk" {
		t.Fatalf("backend task = %#v", f.tasks[0])
	}
}

func TestEditBlankSeparatorReprompts(t *testing.T) {
	e, f, store := newTestEngine(BackendNotion)
	ctx := context.Background()
	_, _ = f.CreateTask(ctx, 1, "Grocery", "Buy milk")
	driveList(t, e, store, 1, 99)

	_ = e.Handle(ctx, cbEvent(1, 99, ActionPickEdit))
	_ = e.Handle(ctx, msgEvent(1, 100, "1"))

	// A lone separator carries no title and no description.
	r := singleReply(t, e.Handle(ctx, msgEvent(1, 101, "|")))
	if r.Text != "Send the new text (it cannot be empty)." {
		t.Fatalf("reprompt = %q", r.Text)
	}
	if f.tasks[0].Title != "Grocery" || f.tasks[0].Description != "Buy milk" {
		t.Fatalf("task changed: %#v", f.tasks[0])
	}

	// The edit stays pending, so a valid follow-up still applies.
	intents := e.Handle(ctx, msgEvent(1, 102, "Groceries | Buy oat milk"))
	if _, ok := intents[0].(Edit); !ok {
		t.Fatalf("expected Edit, got %#v", intents[0])
	}
	if f.tasks[0].Title != "Groceries" || f.tasks[0].Description != "Buy oat milk" {
		t.Fatalf("backend task = %#v", f.tasks[0])
	}
}

func TestExpiredList(t *testing.T) {
	e, f, _ := newTestEngine(BackendNotion)
	ctx := context.Background()
	_, _ = f.CreateTask(ctx, 1, "Grocery", "")

	// Pending points at a message with no cache entry.
	_ = e.Handle(ctx, cbEvent(1, 555, ActionPickDone))
	r := singleReply(t, e.Handle(ctx, msgEvent(1, 100, "1")))
	if r.Text != "That list expired. Re-run /today or /inbox." {
		t.Fatalf("expired = %q", r.Text)
	}
	// Pending cleared: numbers fall back to note capture.
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 101, "1")))
	if !strings.HasPrefix(r.Text, "Saved note") {
		t.Fatalf("follow-up = %q", r.Text)
	}
}

func TestCommandCancelsPending(t *testing.T) {
	e, f, store := newTestEngine(BackendNotion)
	ctx := context.Background()
	_, _ = f.CreateTask(ctx, 1, "Grocery", "")
	driveList(t, e, store, 1, 99)

	_ = e.Handle(ctx, cbEvent(1, 99, ActionPickDone))
	intents := e.Handle(ctx, msgEvent(1, 100, "/today"))
	if len(intents) != 2 {
		t.Fatalf("command should run normally: %#v", intents)
	}
	if _, ok := store.Pending(1); ok {
		t.Fatal("pending should be cleared by a fresh command")
	}
}

func TestWizardTitlePicker(t *testing.T) {
	e, f, _ := newTestEngine(BackendNotion)
	f.titles = []string{"Bills", "Grocery"}
	ctx := context.Background()

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/todo")))
	if r.Text != "Pick a Title:\n0. New Title\n1. Bills\n2. Grocery" {
		t.Fatalf("picker = %q", r.Text)
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 11, "7")))
	if r.Text != "Reply with a number from the list (0 for a new title)." {
		t.Fatalf("out of range = %q", r.Text)
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 12, "2")))
	if r.Text != "Title: Grocery\nSend the Description" {
		t.Fatalf("bound title = %q", r.Text)
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 13, "Buy milk")))
	if r.Text != "Added: Grocery | Buy milk" {
		t.Fatalf("finalize = %q", r.Text)
	}
	if r.Markup == nil || r.Markup.Rows[0][0].Text != "Open in Notion" {
		t.Fatalf("markup = %#v", r.Markup)
	}
	if len(f.tasks) != 1 || f.tasks[0].Title != "Grocery" || f.tasks[0].Description != "Buy milk" {
		t.Fatalf("created = %#v", f.tasks)
	}
}

func TestWizardNewTitlePath(t *testing.T) {
	e, f, _ := newTestEngine(BackendNotion)
	f.titles = []string{"Bills"}
	ctx := context.Background()

	_ = e.Handle(ctx, msgEvent(1, 10, "/todo"))
	r := singleReply(t, e.Handle(ctx, msgEvent(1, 11, "0")))
	if r.Text != "Send the Title" {
		t.Fatalf("new title prompt = %q", r.Text)
	}
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 12, "Laundry")))
	if r.Text != "Title: Laundry\nSend the Description" {
		t.Fatalf("desc prompt = %q", r.Text)
	}
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 13, "Wash everything")))
	if r.Text != "Added: Laundry | Wash everything" {
		t.Fatalf("finalize = %q", r.Text)
	}
}

func TestWizardOneShotAndTitleOnly(t *testing.T) {
	e, f, _ := newTestEngine(BackendNotion)
	ctx := context.Background()

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/todo Grocery | Buy milk")))
	if r.Text != "Added: Grocery | Buy milk" {
		t.Fatalf("one-shot = %q", r.Text)
	}
	if len(f.tasks) != 1 {
		t.Fatalf("tasks = %#v", f.tasks)
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 11, "/todo buy milk")))
	if r.Text != "Title: buy milk\nSend the Description" {
		t.Fatalf("title-only = %q", r.Text)
	}
}

func TestWizardSurvivesFailedCreate(t *testing.T) {
	e, f, _ := newTestEngine(BackendNotion)
	ctx := context.Background()

	_ = e.Handle(ctx, msgEvent(1, 10, "/todo Grocery"))
	f.failCreateTask = true
	r := singleReply(t, e.Handle(ctx, msgEvent(1, 11, "Buy milk")))
	if r.Text != "Could not add the task, try again." {
		t.Fatalf("failure = %q", r.Text)
	}
	// The wizard is still live; a retry succeeds.
	f.failCreateTask = false
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 12, "Buy milk")))
	if r.Text != "Added: Grocery | Buy milk" {
		t.Fatalf("retry = %q", r.Text)
	}
}

func TestTodoMemoryImmediate(t *testing.T) {
	e, f, _ := newTestEngine(BackendMemory)
	ctx := context.Background()

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/todo buy milk")))
	if r.Text != "Added task: task-1" {
		t.Fatalf("reply = %q", r.Text)
	}
	if len(f.tasks) != 1 || f.tasks[0].Title != "buy milk" {
		t.Fatalf("tasks = %#v", f.tasks)
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 11, "/todo")))
	if r.Text != "Missing text. Usage: /todo <text>" {
		t.Fatalf("bare todo = %q", r.Text)
	}
}

func TestCancelClearsFlows(t *testing.T) {
	e, _, store := newTestEngine(BackendNotion)
	ctx := context.Background()

	_ = e.Handle(ctx, msgEvent(1, 10, "/todo Grocery"))
	if _, ok := store.Wizard(1); !ok {
		t.Fatal("wizard should be live")
	}
	r := singleReply(t, e.Handle(ctx, msgEvent(1, 11, "/cancel")))
	if r.Text != "Cancelled." {
		t.Fatalf("cancel = %q", r.Text)
	}
	if _, ok := store.Wizard(1); ok {
		t.Fatal("wizard should be cleared")
	}
	// Subsequent text is a plain note again.
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 12, "hello")))
	if !strings.HasPrefix(r.Text, "Saved note") {
		t.Fatalf("after cancel = %q", r.Text)
	}
}

func TestUnknownAndErrorRoutes(t *testing.T) {
	e, _, _ := newTestEngine(BackendMemory)
	ctx := context.Background()

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/frobnicate")))
	if r.Text != "Unknown command: /frobnicate (try /help)" {
		t.Fatalf("unknown = %q", r.Text)
	}
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 11, "/note")))
	if r.Text != "Missing text. Usage: /note <text>" {
		t.Fatalf("missing args = %q", r.Text)
	}
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 12, "   ")))
	if r.Text != "Empty message" {
		t.Fatalf("empty = %q", r.Text)
	}
}

func TestHelpText(t *testing.T) {
	e, _, _ := newTestEngine(BackendMemory)
	r := singleReply(t, e.Handle(context.Background(), msgEvent(1, 10, "/help")))
	for _, want := range []string{
		"/todo - (Notion mode) task wizard",
		"/todo Title | Description",
		"/today - list open tasks",
		"/cancel",
	} {
		if !strings.Contains(r.Text, want) {
			t.Errorf("help missing %q:\n%s", want, r.Text)
		}
	}

	r = singleReply(t, e.Handle(context.Background(), msgEvent(1, 11, "/start")))
	if !strings.Contains(r.Text, "Commands:") {
		t.Fatalf("/start should show help: %q", r.Text)
	}
}

func TestSettingsFlow(t *testing.T) {
	e, f, _ := newTestEngine(BackendMemory)
	ctx := context.Background()

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/settings")))
	for _, want := range []string{
		"Settings:",
		"- daily_brief_time: 07:30",
		"- timezone: Asia/Singapore",
		"- ai_enabled: false",
	} {
		if !strings.Contains(r.Text, want) {
			t.Errorf("settings missing %q:\n%s", want, r.Text)
		}
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 11, "/settings set ai_enabled maybe")))
	if r.Text != "ai_enabled must be true/false" {
		t.Fatalf("ai validation = %q", r.Text)
	}
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 12, "/settings set daily_brief_time 9am")))
	if r.Text != "daily_brief_time must be HH:MM" {
		t.Fatalf("time validation = %q", r.Text)
	}
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 13, "/settings set daily_brief_time 08:00")))
	if r.Text != "Updated daily_brief_time" {
		t.Fatalf("update = %q", r.Text)
	}
	if f.settings["daily_brief_time"] != "08:00" {
		t.Fatalf("stored = %q", f.settings["daily_brief_time"])
	}
	r = singleReply(t, e.Handle(ctx, msgEvent(1, 14, "/settings set volume 11")))
	if r.Text != "Unknown setting: volume" {
		t.Fatalf("unknown key = %q", r.Text)
	}
}

func TestSearchRendering(t *testing.T) {
	e, f, _ := newTestEngine(BackendMemory)
	ctx := context.Background()
	_, _ = f.CreateTask(ctx, 1, "Grocery run", "")
	longNote := "grocery " + strings.Repeat("x", 100)
	_, _ = f.CreateNote(ctx, 1, longNote)

	r := singleReply(t, e.Handle(ctx, msgEvent(1, 10, "/search grocery")))
	lines := strings.Split(r.Text, "\n")
	if lines[0] != `Results for: "grocery"` {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "- ☐ task-1: Grocery run") {
		t.Fatalf("task line = %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "...") {
		t.Fatalf("note line not truncated: %q", lines[2])
	}

	r = singleReply(t, e.Handle(ctx, msgEvent(1, 11, "/search zzz")))
	if r.Text != `No results for: "zzz"` {
		t.Fatalf("no results = %q", r.Text)
	}
}
