package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"draftforge/internal/pipeline"
)

// articleColumns is the canonical select list; scanArticle must stay in
// step with it.
const articleColumns = `id, topic_id, title, state,
	research, draft, enrichment, revised_draft, fact_check, seo,
	final_content, linked_content, media, wordpress_content, wordpress_metadata,
	retry_count, last_error, claimed_at, claimed_by,
	created_at, updated_at, published_at`

// patchableColumns is the set of payload slots UpdateArticle accepts in
// a field patch. Bookkeeping columns (state, retry_count, ...) are set
// through the typed Patch fields, never through the open map.
var patchableColumns = func() map[string]bool {
	cols := make(map[string]bool)
	for _, st := range pipeline.States() {
		for _, slot := range pipeline.SlotsFor(st) {
			cols[slot] = true
		}
	}
	return cols
}()

// Patch describes an atomic merge of article fields. Fields carries
// payload-slot updates keyed by column name; the typed members carry
// the engine's bookkeeping. updated_at is always bumped.
type Patch struct {
	Fields      map[string]any
	State       *pipeline.State
	RetryCount  *int
	LastError   *string
	PublishedAt *time.Time
	ClearClaim  bool
}

// setMap validates the patch and renders it as column assignments.
func (p Patch) setMap(now time.Time) (map[string]any, error) {
	set := map[string]any{"updated_at": utc(now)}
	for col, val := range p.Fields {
		if !patchableColumns[col] {
			return nil, fmt.Errorf("column %q is not a payload slot", col)
		}
		rendered, err := renderField(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", col, err)
		}
		set[col] = rendered
	}
	if p.State != nil {
		set["state"] = string(*p.State)
	}
	if p.RetryCount != nil {
		set["retry_count"] = *p.RetryCount
	}
	if p.LastError != nil {
		set["last_error"] = *p.LastError
	}
	if p.PublishedAt != nil {
		set["published_at"] = utc(*p.PublishedAt)
	}
	if p.ClearClaim {
		set["claimed_at"] = nil
		set["claimed_by"] = ""
	}
	return set, nil
}

// renderField stores strings verbatim and everything else as JSON text,
// so structured handler output (research bundles, SEO metadata) lands
// in its slot as one opaque blob.
func renderField(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal payload: %w", err)
		}
		return string(data), nil
	}
}

// CreateArticle inserts a new article in the given start state.
func (s *Store) CreateArticle(ctx context.Context, topicID, title string, state pipeline.State) (pipeline.Article, error) {
	now := utc(time.Now())
	id := uuid.Must(uuid.NewV7()).String()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, topic_id, title, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, topicID, title, string(state), now, now)
	if err != nil {
		return pipeline.Article{}, fmt.Errorf("create article: %w", err)
	}

	return s.GetArticle(ctx, id)
}

// GetArticle fetches one article by id. Returns ErrNotFound if absent.
func (s *Store) GetArticle(ctx context.Context, id string) (pipeline.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return pipeline.Article{}, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return pipeline.Article{}, fmt.Errorf("get article %s: %w", id, err)
	}
	return a, nil
}

// Filter narrows ListArticles.
type Filter struct {
	States []pipeline.State
	Limit  uint64
}

// ListArticles returns articles newest-first, optionally filtered by
// state. Limit defaults to 50.
func (s *Store) ListArticles(ctx context.Context, f Filter) ([]pipeline.Article, error) {
	limit := f.Limit
	if limit == 0 {
		limit = 50
	}

	q := sq.Select(articleColumns).From("articles").
		OrderBy("created_at DESC", "id DESC").
		Limit(limit)
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, st := range f.States {
			states[i] = string(st)
		}
		q = q.Where(sq.Eq{"state": states})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// UpdateArticle applies an atomic field merge to one article and bumps
// updated_at. Returns the refreshed record.
func (s *Store) UpdateArticle(ctx context.Context, id string, patch Patch) (pipeline.Article, error) {
	if err := s.execPatch(ctx, s.db, id, patch); err != nil {
		return pipeline.Article{}, err
	}
	return s.GetArticle(ctx, id)
}

// ApplyTransition applies a patch and appends an audit event in a
// single transaction, so a crash can never record a transition without
// its event or vice versa. Per-article event order therefore matches
// commit order.
func (s *Store) ApplyTransition(ctx context.Context, id string, patch Patch, evType pipeline.EventType, evData map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply transition: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := s.execPatch(ctx, tx, id, patch); err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}

	if err := appendEvent(ctx, tx, id, evType, evData); err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply transition: commit: %w", err)
	}
	return nil
}

// execer abstracts *sql.DB and *sql.Tx for patch execution.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execPatch(ctx context.Context, db execer, id string, patch Patch) error {
	set, err := patch.setMap(time.Now())
	if err != nil {
		return fmt.Errorf("update article %s: %w", id, err)
	}

	query, args, err := sq.Update("articles").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("update article %s: build query: %w", id, err)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update article %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClaimNext atomically claims the oldest-updated unclaimed article in a
// runnable state and returns it. Returns (nil, nil) when nothing is
// eligible - a normal, frequent outcome.
//
// The claim is a single UPDATE with a sub-select, which SQLite executes
// atomically: concurrent callers race on the claimed_at IS NULL guard
// and exactly one wins.
func (s *Store) ClaimNext(ctx context.Context, claimToken string, now time.Time) (*pipeline.Article, error) {
	states := pipeline.RunnableStates()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")

	args := []any{utc(now), claimToken}
	for _, st := range states {
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE articles
		SET claimed_at = ?, claimed_by = ?
		WHERE id = (
			SELECT id FROM articles
			WHERE state IN (%s) AND claimed_at IS NULL
			ORDER BY updated_at ASC, id ASC
			LIMIT 1
		) AND claimed_at IS NULL
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("claim next: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim next: rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE claimed_by = ?`, claimToken)
	a, err := scanArticle(row)
	if err != nil {
		return nil, fmt.Errorf("claim next: fetch claimed: %w", err)
	}
	return &a, nil
}

// ReleaseClaim drops the claim lease if it is still held by claimToken.
// Releasing an already-released claim is a no-op.
func (s *Store) ReleaseClaim(ctx context.Context, id, claimToken string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET claimed_at = NULL, claimed_by = ''
		WHERE id = ? AND claimed_by = ?
	`, id, claimToken)
	if err != nil {
		return fmt.Errorf("release claim %s: %w", id, err)
	}
	return nil
}

// ReleaseExpiredClaims force-releases claims older than cutoff and
// returns the affected article ids. A claim this old means the process
// holding it died mid-handler; the article's stale updated_at then
// makes it visible to QueryStuck.
func (s *Store) ReleaseExpiredClaims(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM articles
		WHERE claimed_at IS NOT NULL AND claimed_at < ?
		ORDER BY claimed_at ASC, id ASC
	`, utc(cutoff))
	if err != nil {
		return nil, fmt.Errorf("query expired claims: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired claim: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate expired claims: %w", err)
	}
	rows.Close()

	released := make([]string, 0, len(ids))
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx, `
			UPDATE articles
			SET claimed_at = NULL, claimed_by = ''
			WHERE id = ? AND claimed_at IS NOT NULL AND claimed_at < ?
		`, id, utc(cutoff))
		if err != nil {
			return released, fmt.Errorf("release expired claim %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			released = append(released, id)
		}
	}
	return released, nil
}

// QueryStuck returns unclaimed articles in a recoverable state whose
// updated_at is older than cutoff, oldest first.
func (s *Store) QueryStuck(ctx context.Context, cutoff time.Time) ([]pipeline.Article, error) {
	states := make([]string, 0)
	for _, st := range pipeline.RecoverableStates() {
		states = append(states, string(st))
	}

	query, args, err := sq.Select(articleColumns).From("articles").
		Where(sq.Eq{"state": states}).
		Where(sq.Eq{"claimed_at": nil}).
		Where(sq.Lt{"updated_at": utc(cutoff)}).
		OrderBy("updated_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stuck query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stuck: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// StateCounts returns the number of articles in each state. States with
// no articles are present with a zero count.
func (s *Store) StateCounts(ctx context.Context) (map[pipeline.State]int, error) {
	counts := make(map[pipeline.State]int, len(pipeline.States()))
	for _, st := range pipeline.States() {
		counts[st] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM articles GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("state counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[pipeline.State(state)] = n
	}
	return counts, rows.Err()
}

// CountClaimed returns how many articles currently hold a claim lease.
func (s *Store) CountClaimed(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE claimed_at IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count claimed: %w", err)
	}
	return n, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (pipeline.Article, error) {
	var a pipeline.Article
	var state string
	var research, enrichment, factCheck, seo, media, wpMeta string
	var claimedAt, publishedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.TopicID, &a.Title, &state,
		&research, &a.Draft, &enrichment, &a.RevisedDraft, &factCheck, &seo,
		&a.FinalContent, &a.LinkedContent, &media, &a.WordPressContent, &wpMeta,
		&a.RetryCount, &a.LastError, &claimedAt, &a.ClaimedBy,
		&a.CreatedAt, &a.UpdatedAt, &publishedAt,
	)
	if err != nil {
		return pipeline.Article{}, err
	}

	a.State = pipeline.State(state)
	a.Research = rawJSON(research)
	a.Enrichment = rawJSON(enrichment)
	a.FactCheck = rawJSON(factCheck)
	a.SEO = rawJSON(seo)
	a.Media = rawJSON(media)
	a.WordPressMetadata = rawJSON(wpMeta)
	if claimedAt.Valid {
		t := claimedAt.Time
		a.ClaimedAt = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		a.PublishedAt = &t
	}
	return a, nil
}

func collectArticles(rows *sql.Rows) ([]pipeline.Article, error) {
	var out []pipeline.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

// utc normalizes timestamps before they hit SQLite so DATETIME string
// comparisons stay consistent.
func utc(t time.Time) time.Time {
	return t.UTC()
}
