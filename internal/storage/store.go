// Package storage is the durable home for groups, cards and review stats.
// A Store serializes all operations through a single SQLite connection; the
// backing store does not support concurrent writers.
package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/knowcards/knowcards/internal/apperr"
	"github.com/knowcards/knowcards/internal/cardhash"
	"github.com/knowcards/knowcards/internal/domain"
	"github.com/knowcards/knowcards/internal/sm2"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DefaultGroupCap is the maximum number of groups a store accepts unless
// configured otherwise.
const DefaultGroupCap = 16

// Store wraps a single SQLite connection. All operations are atomic with
// respect to each other; callers queue on the internal mutex.
type Store struct {
	mu       sync.Mutex
	conn     *sql.DB
	groupCap int
}

// Option configures a Store.
type Option func(*Store)

// WithGroupCap overrides the maximum group count.
func WithGroupCap(n int) Option {
	return func(s *Store) { s.groupCap = n }
}

// Open creates a new store connection, applies the schema and makes sure the
// reserved "Unsorted" group exists.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One pooled connection, so session pragmas apply to every query.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT OR IGNORE INTO groups (group_id, title, subtitle, created_at, updated_at)
		VALUES (?, ?, '', ?, ?)
	`, domain.ReservedGroupID, domain.ReservedGroupTitle, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create reserved group: %w", err)
	}

	s := &Store{conn: db, groupCap: DefaultGroupCap}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateGroup inserts a new group and returns its id.
func (s *Store) CreateGroup(title, subtitle string) (int64, error) {
	if title == "" {
		return 0, fmt.Errorf("group title must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM groups`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count groups: %w", err)
	}
	if count >= s.groupCap {
		return 0, fmt.Errorf("group limit of %d reached: %w", s.groupCap, apperr.ErrCapacityExceeded)
	}

	var existing int64
	err := s.conn.QueryRow(`SELECT group_id FROM groups WHERE title = ?`, title).Scan(&existing)
	if err == nil {
		return 0, fmt.Errorf("group %q: %w", title, apperr.ErrDuplicateTitle)
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to check group title %q: %w", title, err)
	}

	now := time.Now().UnixMilli()
	res, err := s.conn.Exec(`
		INSERT INTO groups (title, subtitle, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, title, subtitle, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert group %q: %w", title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get id for group %q: %w", title, err)
	}
	return id, nil
}

// CreateCard inserts a new card into the given group. The card starts in the
// new status with default SM-2 state and is immediately due for review.
func (s *Store) CreateCard(question, answer string, groupID int64) (int64, error) {
	if question == "" {
		return 0, fmt.Errorf("card question must not be empty")
	}
	if answer == "" {
		return 0, fmt.Errorf("card answer must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.groupExists(s.conn, groupID); err != nil {
		return 0, err
	}

	hash := cardhash.Hash(question, answer)
	var existing int64
	err := s.conn.QueryRow(`SELECT card_id FROM cards WHERE content_hash = ?`, hash).Scan(&existing)
	if err == nil {
		return 0, fmt.Errorf("card %d has identical content: %w", existing, apperr.ErrDuplicateCard)
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to check content hash: %w", err)
	}

	now := time.Now().UnixMilli()
	res, err := s.conn.Exec(`
		INSERT INTO cards (group_id, question, answer, content_hash,
			easiness, repetitions, interval_days, status,
			created_at, last_reviewed_at, next_review_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, NULL, ?)
	`, groupID, question, answer, hash, sm2.DefaultEasiness, domain.StatusNew, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get id for new card: %w", err)
	}
	return id, nil
}

// GetGroup returns the group with the given id.
func (s *Store) GetGroup(id int64) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.conn.QueryRow(`
		SELECT group_id, title, subtitle, created_at, updated_at
		FROM groups WHERE group_id = ?
	`, id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group %d: %w", id, err)
	}
	return g, nil
}

// GetCard returns the card with the given id.
func (s *Store) GetCard(id int64) (*domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCard(s.conn, id)
}

// ListGroups returns all groups ordered by id.
func (s *Store) ListGroups() ([]domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(`
		SELECT group_id, title, subtitle, created_at, updated_at
		FROM groups ORDER BY group_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// ListCards returns all cards ordered by id.
func (s *Store) ListCards() ([]domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryCards(`ORDER BY card_id`)
}

// ListCardsInGroup returns the cards of one group ordered by id.
func (s *Store) ListCardsInGroup(groupID int64) ([]domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.groupExists(s.conn, groupID); err != nil {
		return nil, err
	}
	return s.queryCards(`WHERE group_id = ? ORDER BY card_id`, groupID)
}

// ListDueCards returns cards due for review as of the given time, most
// overdue first. Mastered cards are never due. A limit <= 0 means no cap.
func (s *Store) ListDueCards(asOf time.Time, limit int) ([]domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clause := `WHERE status IN (?, ?) AND next_review_at <= ? ORDER BY next_review_at`
	args := []any{domain.StatusNew, domain.StatusLearning, asOf.UnixMilli()}
	if limit > 0 {
		clause += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryCards(clause, args...)
}

// ListNewCards returns cards that have never been reviewed, oldest first.
// A limit <= 0 means no cap.
func (s *Store) ListNewCards(limit int) ([]domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clause := `WHERE status = ? ORDER BY created_at`
	args := []any{domain.StatusNew}
	if limit > 0 {
		clause += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryCards(clause, args...)
}

// UpdateCard replaces a card's content and group, recomputing its content
// hash. The scheduling state is left untouched.
func (s *Store) UpdateCard(id int64, question, answer string, groupID int64) error {
	if question == "" {
		return fmt.Errorf("card question must not be empty")
	}
	if answer == "" {
		return fmt.Errorf("card answer must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getCard(s.conn, id); err != nil {
		return err
	}
	if err := s.groupExists(s.conn, groupID); err != nil {
		return err
	}

	hash := cardhash.Hash(question, answer)
	var other int64
	err := s.conn.QueryRow(`SELECT card_id FROM cards WHERE content_hash = ? AND card_id <> ?`, hash, id).Scan(&other)
	if err == nil {
		return fmt.Errorf("card %d has identical content: %w", other, apperr.ErrDuplicateCard)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check content hash: %w", err)
	}

	_, err = s.conn.Exec(`
		UPDATE cards SET question = ?, answer = ?, group_id = ?, content_hash = ?
		WHERE card_id = ?
	`, question, answer, groupID, hash, id)
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", id, err)
	}
	return nil
}

// UpdateGroup replaces a group's title and subtitle. Renaming the reserved
// group is not allowed.
func (s *Store) UpdateGroup(id int64, title, subtitle string) error {
	if title == "" {
		return fmt.Errorf("group title must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var currentTitle string
	err := s.conn.QueryRow(`SELECT title FROM groups WHERE group_id = ?`, id).Scan(&currentTitle)
	if err == sql.ErrNoRows {
		return fmt.Errorf("group %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get group %d: %w", id, err)
	}

	if id == domain.ReservedGroupID && title != currentTitle {
		return fmt.Errorf("cannot rename group %d: %w", id, apperr.ErrProtected)
	}

	var other int64
	err = s.conn.QueryRow(`SELECT group_id FROM groups WHERE title = ? AND group_id <> ?`, title, id).Scan(&other)
	if err == nil {
		return fmt.Errorf("group %q: %w", title, apperr.ErrDuplicateTitle)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check group title %q: %w", title, err)
	}

	_, err = s.conn.Exec(`
		UPDATE groups SET title = ?, subtitle = ?, updated_at = ?
		WHERE group_id = ?
	`, title, subtitle, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update group %d: %w", id, err)
	}
	return nil
}

// DeleteCard removes a card and its review stats.
func (s *Store) DeleteCard(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM review_stats WHERE card_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete review stats for card %d: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM cards WHERE card_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("card %d: %w", id, apperr.ErrNotFound)
	}
	return tx.Commit()
}

// DeleteGroup removes a group together with its cards and their review
// stats. The reserved group cannot be deleted.
func (s *Store) DeleteGroup(id int64) error {
	if id == domain.ReservedGroupID {
		return fmt.Errorf("cannot delete group %d: %w", id, apperr.ErrProtected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM review_stats WHERE card_id IN (SELECT card_id FROM cards WHERE group_id = ?)
	`, id); err != nil {
		return fmt.Errorf("failed to delete review stats for group %d: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM cards WHERE group_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cards for group %d: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM groups WHERE group_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete group %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("group %d: %w", id, apperr.ErrNotFound)
	}
	return tx.Commit()
}

// ApplyReview records a review of the card with the given score, persisting
// the next SM-2 state and appending a review stat row in one transaction.
// It returns the card as persisted.
func (s *Store) ApplyReview(id int64, score int, asOf time.Time) (*domain.Card, error) {
	if score < sm2.MinScore || score > sm2.MaxScore {
		return nil, fmt.Errorf("score %d: %w", score, apperr.ErrInvalidScore)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	card, err := s.getCard(tx, id)
	if err != nil {
		return nil, err
	}

	next, err := sm2.Next(sm2.StateOf(*card), score, asOf)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE cards
		SET easiness = ?, repetitions = ?, interval_days = ?, status = ?,
			last_reviewed_at = ?, next_review_at = ?
		WHERE card_id = ?
	`, next.Easiness, next.Repetitions, next.IntervalDays, next.Status,
		next.LastReviewedAt.UnixMilli(), next.NextReviewAt.UnixMilli(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update card %d: %w", id, err)
	}

	var count int
	var sum float64
	err = tx.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(score), 0) FROM review_stats WHERE card_id = ?
	`, id).Scan(&count, &sum)
	if err != nil {
		return nil, fmt.Errorf("failed to read review stats for card %d: %w", id, err)
	}
	avg := (sum + float64(score)) / float64(count+1)

	_, err = tx.Exec(`
		INSERT INTO review_stats (card_id, score, avg_score, reviewed_at)
		VALUES (?, ?, ?, ?)
	`, id, score, avg, asOf.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert review stat for card %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit review for card %d: %w", id, err)
	}

	card.Easiness = next.Easiness
	card.Repetitions = next.Repetitions
	card.IntervalDays = next.IntervalDays
	card.Status = next.Status
	reviewed := next.LastReviewedAt
	card.LastReviewedAt = &reviewed
	card.NextReviewAt = next.NextReviewAt
	return card, nil
}

// CountGroups returns the number of groups.
func (s *Store) CountGroups() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM groups`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count groups: %w", err)
	}
	return count, nil
}

// CountCards returns the number of cards.
func (s *Store) CountCards() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM cards`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return count, nil
}

// ListReviewStats returns all review stat rows in insertion order.
func (s *Store) ListReviewStats() ([]domain.ReviewStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(`
		SELECT card_id, score, avg_score, reviewed_at FROM review_stats ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list review stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.ReviewStat
	for rows.Next() {
		var st domain.ReviewStat
		var reviewedAt int64
		if err := rows.Scan(&st.CardID, &st.Score, &st.AvgScore, &reviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review stat row: %w", err)
		}
		st.ReviewedAt = time.UnixMilli(reviewedAt)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (s *Store) groupExists(q querier, groupID int64) error {
	var id int64
	err := q.QueryRow(`SELECT group_id FROM groups WHERE group_id = ?`, groupID).Scan(&id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("group %d: %w", groupID, apperr.ErrUnknownGroup)
	}
	if err != nil {
		return fmt.Errorf("failed to check group %d: %w", groupID, err)
	}
	return nil
}

func (s *Store) getCard(q querier, id int64) (*domain.Card, error) {
	row := q.QueryRow(`
		SELECT card_id, group_id, question, answer, content_hash,
			easiness, repetitions, interval_days, status,
			created_at, last_reviewed_at, next_review_at
		FROM cards WHERE card_id = ?
	`, id)
	c, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("card %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card %d: %w", id, err)
	}
	return c, nil
}

func (s *Store) queryCards(clause string, args ...any) ([]domain.Card, error) {
	rows, err := s.conn.Query(`
		SELECT card_id, group_id, question, answer, content_hash,
			easiness, repetitions, interval_days, status,
			created_at, last_reviewed_at, next_review_at
		FROM cards `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*domain.Group, error) {
	var g domain.Group
	var createdAt, updatedAt int64
	if err := row.Scan(&g.ID, &g.Title, &g.Subtitle, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	g.CreatedAt = time.UnixMilli(createdAt)
	g.UpdatedAt = time.UnixMilli(updatedAt)
	return &g, nil
}

func scanCard(row scanner) (*domain.Card, error) {
	var c domain.Card
	var status int
	var createdAt, nextReviewAt int64
	var lastReviewedAt sql.NullInt64
	err := row.Scan(&c.ID, &c.GroupID, &c.Question, &c.Answer, &c.ContentHash,
		&c.Easiness, &c.Repetitions, &c.IntervalDays, &status,
		&createdAt, &lastReviewedAt, &nextReviewAt)
	if err != nil {
		return nil, err
	}
	c.Status = domain.Status(status)
	c.CreatedAt = time.UnixMilli(createdAt)
	c.NextReviewAt = time.UnixMilli(nextReviewAt)
	if lastReviewedAt.Valid {
		t := time.UnixMilli(lastReviewedAt.Int64)
		c.LastReviewedAt = &t
	}
	return &c, nil
}
