package pipeline

import (
	"encoding/json"
	"time"
)

// Article is the unit of work. One row per in-flight or completed
// content item; the State field is the single source of truth for
// pipeline progress.
//
// Payload slots hold each completed stage's output. JSON bundles are
// kept as raw bytes: the engine treats them as opaque handler output
// and only validates which slot a handler is allowed to write.
type Article struct {
	ID      string
	TopicID string
	Title   string
	State   State

	// Payload slots, one per stage (see stageSlots in payload.go).
	Research          json.RawMessage
	Draft             string
	Enrichment        json.RawMessage
	RevisedDraft      string
	FactCheck         json.RawMessage
	SEO               json.RawMessage
	FinalContent      string
	LinkedContent     string
	Media             json.RawMessage
	WordPressContent  string
	WordPressMetadata json.RawMessage

	// Retry bookkeeping. RetryCount resets to zero on every successful
	// transition; LastError clears on success.
	RetryCount int
	LastError  string

	// Claim lease. A non-nil ClaimedAt means some engine tick is
	// currently executing this article's stage handler.
	ClaimedAt *time.Time
	ClaimedBy string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// Claimed reports whether the article currently holds a claim lease.
func (a *Article) Claimed() bool {
	return a.ClaimedAt != nil
}

// Topic is a candidate subject awaiting human approval. Approval
// creates exactly one Article and links it via ArticleID.
type Topic struct {
	ID        string
	Title     string
	Keyword   string
	Approved  bool
	ArticleID string
	CreatedAt time.Time
}

// EventType classifies audit-log entries.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventRetry        EventType = "retry"
	EventError        EventType = "error"
	EventRecovered    EventType = "recovered"
)

// Event is an immutable audit record, appended by the engine after
// every transition attempt. Events are never mutated or deleted; the
// auto-increment ID gives per-article commit order.
type Event struct {
	ID        int64
	ArticleID string
	Type      EventType
	Data      map[string]any
	CreatedAt time.Time
}
