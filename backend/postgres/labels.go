package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CanonicalizeLabelKey reduces a human label to its stable machine key:
// lowercased, hyphens treated as spaces, runs of whitespace collapsed to a
// single underscore, all other non [a-z0-9_] characters dropped.
func CanonicalizeLabelKey(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "-", " ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '_':
			b.WriteByte('_')
		}
	}
	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}

// UpsertLabel records a display name under its canonical key. The display
// name of an existing key is refreshed, so renames like "To-Do" vs "To Do"
// converge on one row.
func (s *Store) UpsertLabel(ctx context.Context, name string) (string, error) {
	key := CanonicalizeLabelKey(name)
	if key == "" {
		return "", errors.New("postgres: label reduces to empty key")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO labels (name, canonical_key)
		 VALUES ($1, $2)
		 ON CONFLICT (canonical_key) DO UPDATE SET name = EXCLUDED.name`,
		strings.TrimSpace(name), key,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: upsert label %q: %w", name, err)
	}
	return key, nil
}

// ListLabels returns all known display names ordered by canonical key.
func (s *Store) ListLabels(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		`SELECT name FROM labels ORDER BY canonical_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list labels: %w", err)
	}
	return names, nil
}
