package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"draftforge/internal/pipeline"
)

// AppendEvent writes one immutable audit record for an article.
func (s *Store) AppendEvent(ctx context.Context, articleID string, evType pipeline.EventType, data map[string]any) error {
	return appendEvent(ctx, s.db, articleID, evType, data)
}

func appendEvent(ctx context.Context, db execer, articleID string, evType pipeline.EventType, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("append event: marshal data: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO events (article_id, event_type, data, created_at)
		VALUES (?, ?, ?, ?)
	`, articleID, string(evType), string(payload), utc(time.Now()))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns an article's audit trail in commit order.
func (s *Store) ListEvents(ctx context.Context, articleID string) ([]pipeline.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, article_id, event_type, data, created_at
		FROM events
		WHERE article_id = ?
		ORDER BY id ASC
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Event
	for rows.Next() {
		var ev pipeline.Event
		var evType, data string
		if err := rows.Scan(&ev.ID, &ev.ArticleID, &evType, &data, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = pipeline.EventType(evType)
		if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountEvents returns the total number of events across all articles.
// Used by tests to assert that no-op ticks write nothing.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
