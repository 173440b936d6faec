package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"draftforge/internal/pipeline"
)

const topicColumns = `id, title, keyword, approved, article_id, created_at`

// CreateTopic inserts a candidate subject awaiting approval.
func (s *Store) CreateTopic(ctx context.Context, title, keyword string) (pipeline.Topic, error) {
	id := uuid.Must(uuid.NewV7()).String()
	now := utc(time.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (id, title, keyword, created_at)
		VALUES (?, ?, ?, ?)
	`, id, title, keyword, now)
	if err != nil {
		return pipeline.Topic{}, fmt.Errorf("create topic: %w", err)
	}

	return s.GetTopic(ctx, id)
}

// GetTopic fetches one topic by id. Returns ErrNotFound if absent.
func (s *Store) GetTopic(ctx context.Context, id string) (pipeline.Topic, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id)
	t, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return pipeline.Topic{}, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return pipeline.Topic{}, fmt.Errorf("get topic %s: %w", id, err)
	}
	return t, nil
}

// ListTopics returns topics newest-first, optionally filtered by
// approval status.
func (s *Store) ListTopics(ctx context.Context, approved *bool) ([]pipeline.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics`
	var args []any
	if approved != nil {
		query += ` WHERE approved = ?`
		args = append(args, boolInt(*approved))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ApproveTopic marks a topic approved and atomically creates its
// article in the given start state, linking the two. Approving an
// already-approved topic is a deterministic no-op: the second call
// returns the article created by the first.
func (s *Store) ApproveTopic(ctx context.Context, topicID string, startState pipeline.State) (pipeline.Article, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pipeline.Article{}, fmt.Errorf("approve topic: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	row := tx.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, topicID)
	topic, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return pipeline.Article{}, fmt.Errorf("topic %s: %w", topicID, ErrNotFound)
	}
	if err != nil {
		return pipeline.Article{}, fmt.Errorf("approve topic %s: %w", topicID, err)
	}

	if topic.Approved && topic.ArticleID != "" {
		if err := tx.Commit(); err != nil {
			return pipeline.Article{}, fmt.Errorf("approve topic %s: commit: %w", topicID, err)
		}
		return s.GetArticle(ctx, topic.ArticleID)
	}

	now := utc(time.Now())
	articleID := uuid.Must(uuid.NewV7()).String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO articles (id, topic_id, title, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, articleID, topicID, topic.Title, string(startState), now, now)
	if err != nil {
		return pipeline.Article{}, fmt.Errorf("approve topic %s: create article: %w", topicID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE topics SET approved = 1, article_id = ? WHERE id = ?
	`, articleID, topicID)
	if err != nil {
		return pipeline.Article{}, fmt.Errorf("approve topic %s: mark approved: %w", topicID, err)
	}

	if err := tx.Commit(); err != nil {
		return pipeline.Article{}, fmt.Errorf("approve topic %s: commit: %w", topicID, err)
	}

	return s.GetArticle(ctx, articleID)
}

func scanTopic(row rowScanner) (pipeline.Topic, error) {
	var t pipeline.Topic
	var approved int
	err := row.Scan(&t.ID, &t.Title, &t.Keyword, &approved, &t.ArticleID, &t.CreatedAt)
	if err != nil {
		return pipeline.Topic{}, err
	}
	t.Approved = approved != 0
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
