package assistant

import "testing"

func TestRouteTextCommands(t *testing.T) {
	cases := []struct {
		in      string
		kind    string
		command string
	}{
		{"/note buy milk", KindCommand, "note"},
		{"/todo", KindCommand, "todo"},
		{"/today", KindCommand, "today"},
		{"/inbox", KindCommand, "inbox"},
		{"/settings", KindCommand, "settings"},
		{"/cancel", KindCommand, "cancel"},
		{"/help", KindCommand, "help"},
		{"/start", KindCommand, "help"},
		{"/NOTE shouting", KindCommand, "note"},
		{"/note@MyBot hello", KindCommand, "note"},
		{"/frobnicate now", KindUnknownCommand, "frobnicate"},
	}
	for _, tc := range cases {
		r := RouteText(tc.in)
		if r.Kind != tc.kind {
			t.Errorf("RouteText(%q).Kind = %q, want %q", tc.in, r.Kind, tc.kind)
		}
		if r.Command != tc.command {
			t.Errorf("RouteText(%q).Command = %q, want %q", tc.in, r.Command, tc.command)
		}
	}
}

func TestRouteTextArgs(t *testing.T) {
	r := RouteText("/note  buy milk  ")
	if r.Text != "buy milk" {
		t.Errorf("note text = %q", r.Text)
	}

	r = RouteText("/search grocery list")
	if r.Query != "grocery list" {
		t.Errorf("search query = %q", r.Query)
	}

	r = RouteText("/done task_3 trailing junk")
	if r.TaskID != "task_3" {
		t.Errorf("done task id = %q", r.TaskID)
	}

	r = RouteText("/todo Grocery | Buy milk")
	if r.Text != "Grocery | Buy milk" {
		t.Errorf("todo text = %q", r.Text)
	}
}

func TestRouteTextErrors(t *testing.T) {
	cases := []struct {
		in      string
		errCode string
	}{
		{"", ErrEmptyText},
		{"   ", ErrEmptyText},
		{"/", ErrMissingCommand},
		{"/note", "missing_args_note"},
		{"/note   ", "missing_args_note"},
		{"/search", "missing_args_search"},
		{"/done", "missing_args_done"},
	}
	for _, tc := range cases {
		r := RouteText(tc.in)
		if r.Kind != KindError {
			t.Errorf("RouteText(%q).Kind = %q, want error", tc.in, r.Kind)
			continue
		}
		if r.ErrCode != tc.errCode {
			t.Errorf("RouteText(%q).ErrCode = %q, want %q", tc.in, r.ErrCode, tc.errCode)
		}
	}
}

func TestRouteTextPlain(t *testing.T) {
	r := RouteText("  remember the milk  ")
	if r.Kind != KindText {
		t.Fatalf("kind = %q", r.Kind)
	}
	if r.Text != "remember the milk" {
		t.Fatalf("text = %q", r.Text)
	}

	// A bare /todo must not be an error: it opens the wizard.
	r = RouteText("/todo")
	if r.Kind != KindCommand || r.Text != "" {
		t.Fatalf("bare /todo routed as %+v", r)
	}
}
