package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveMessageMap links a Telegram (chat, message) pair to the external page
// it produced. Re-saving the same pair overwrites the page id, which keeps
// retried webhook deliveries idempotent.
func (s *Store) SaveMessageMap(ctx context.Context, chatID int64, messageID int, externalID string) error {
	if externalID == "" {
		return errors.New("postgres: message map requires an external id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telegram_message_map (chat_id, message_id, notion_page_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (chat_id, message_id) DO UPDATE
		   SET notion_page_id = EXCLUDED.notion_page_id`,
		chatID, messageID, externalID,
	)
	if err != nil {
		return fmt.Errorf("postgres: save message map: %w", err)
	}
	return nil
}

// LookupMessagePage resolves a previously saved (chat, message) pair to its
// external page id, or "" when the pair is unknown.
func (s *Store) LookupMessagePage(ctx context.Context, chatID int64, messageID int) (string, error) {
	var pageID string
	err := s.db.GetContext(ctx, &pageID,
		`SELECT notion_page_id FROM telegram_message_map
		  WHERE chat_id = $1 AND message_id = $2`,
		chatID, messageID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: lookup message page: %w", err)
	}
	return pageID, nil
}
