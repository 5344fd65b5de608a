package assistant

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const briefFetchLimit = 50

type briefBucket struct {
	label string
	lines []string
}

// BuildDailyBrief renders the daily digest for one chat. The document-store
// backend gets the bucketed view; other backends get a flat open-task list
// with a tip to connect Notion. today is interpreted in loc.
func BuildDailyBrief(ctx context.Context, b Backend, chatID int64, today time.Time, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	day := today.In(loc)
	header := "Daily Brief (" + day.Format("2006-01-02") + " " + zoneLabel(loc, day) + ")"

	tasks, err := b.ListOpenTasks(ctx, chatID, briefFetchLimit)
	if err != nil {
		return "", err
	}

	if b.Kind() != BackendNotion {
		var sb strings.Builder
		sb.WriteString(header)
		sb.WriteString("\nOpen tasks: ")
		sb.WriteString(strconv.Itoa(len(tasks)))
		for _, t := range tasks {
			sb.WriteString("\n- ")
			sb.WriteString(t.ID)
			sb.WriteString(": ")
			sb.WriteString(t.Title)
		}
		sb.WriteString("\n\nTip: connect Notion for a richer daily brief.")
		return sb.String(), nil
	}

	if len(tasks) == 0 {
		return header + "\nNo open tasks. Go touch grass 🌱", nil
	}

	todayStr := day.Format("2006-01-02")
	buckets := []briefBucket{
		{label: "⏰ Overdue"},
		{label: "📌 Due Today"},
		{label: "🛠️ Doing"},
		{label: "📥 No Due Date / Next Up"},
	}
	for _, t := range tasks {
		idx := bucketIndex(t, todayStr)
		buckets[idx].lines = append(buckets[idx].lines, briefLine(t))
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, bk := range buckets {
		if len(bk.lines) == 0 {
			continue
		}
		sb.WriteString("\n\n")
		sb.WriteString(bk.label)
		sb.WriteString(": ")
		sb.WriteString(strconv.Itoa(len(bk.lines)))
		shown := bk.lines
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, line := range shown {
			sb.WriteString("\n")
			sb.WriteString(line)
		}
		if rest := len(bk.lines) - len(shown); rest > 0 {
			sb.WriteString("\n+")
			sb.WriteString(strconv.Itoa(rest))
			sb.WriteString(" more")
		}
	}
	return sb.String(), nil
}

// bucketIndex partitions a task: overdue, due today, doing, then everything
// else (no due date or future-dated) falls through to next-up.
func bucketIndex(t Task, today string) int {
	doing := isDoingStatus(t.Status)
	due := dueDay(t.Due)
	switch {
	case due != "" && due < today && !doing:
		return 0
	case due == today && !doing:
		return 1
	case doing:
		return 2
	}
	return 3
}

// NormalizeStatus lowercases and maps "-" and spaces to "_" before bucket
// matching, so "In Progress" and "in-progress" compare equal.
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

func isDoingStatus(s string) bool {
	switch NormalizeStatus(s) {
	case "doing", "in_progress":
		return true
	}
	return false
}

// dueDay trims a due value to its date part so datetimes compare against a
// plain YYYY-MM-DD today.
func dueDay(due string) string {
	due = strings.TrimSpace(due)
	if len(due) > 10 {
		due = due[:10]
	}
	return due
}

func briefLine(t Task) string {
	title := t.Title
	if title == "" {
		title = "(untitled)"
	}
	line := "- " + t.ID + ": " + title
	if d := dueDay(t.Due); d != "" {
		line += " (due " + d + ")"
	}
	return line
}

// Zone abbreviations Go renders as raw offsets but users expect as names.
var zoneNames = map[string]string{
	"Asia/Singapore":    "SGT",
	"Asia/Kuala_Lumpur": "MYT",
	"Asia/Jakarta":      "WIB",
}

func zoneLabel(loc *time.Location, at time.Time) string {
	if name, ok := zoneNames[loc.String()]; ok {
		return name
	}
	abbrev := at.Format("MST")
	if abbrev == "" {
		return "UTC"
	}
	return abbrev
}
