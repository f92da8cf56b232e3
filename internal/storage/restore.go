package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/knowcards/knowcards/internal/apperr"
	"github.com/knowcards/knowcards/internal/domain"
)

// Snapshot is a consistent read of the whole store, taken under the store
// lock. It is the input to the dump exporter.
type Snapshot struct {
	Groups []domain.Group
	Cards  []domain.Card
	Stats  []domain.ReviewStat
}

// Snapshot reads all groups, cards and review stats under a single lock so
// that no mutation can interleave between the three reads.
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap Snapshot

	rows, err := s.conn.Query(`
		SELECT group_id, title, subtitle, created_at, updated_at
		FROM groups ORDER BY group_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		snap.Groups = append(snap.Groups, *g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	snap.Cards, err = s.queryCards(`ORDER BY card_id`)
	if err != nil {
		return nil, err
	}

	rows, err = s.conn.Query(`
		SELECT card_id, score, avg_score, reviewed_at FROM review_stats ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list review stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st domain.ReviewStat
		var reviewedAt int64
		if err := rows.Scan(&st.CardID, &st.Score, &st.AvgScore, &reviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review stat row: %w", err)
		}
		st.ReviewedAt = time.UnixMilli(reviewedAt)
		snap.Stats = append(snap.Stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &snap, nil
}

// Restore atomically replaces the whole store with the result of executing
// the given statements. Either the destructive clear and every statement
// commit together, or the store is left untouched. After the statements run,
// the reserved group is re-created if the dump did not contain it and the
// id sequences are re-synced to the restored maximum ids.
func (s *Store) Restore(stmts []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin restore transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"review_stats", "cards", "groups"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return 0, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	var changes int64
	for _, stmt := range stmts {
		res, err := tx.Exec(stmt)
		if err != nil {
			return 0, &apperr.ImportError{Statement: stmt, Err: err}
		}
		if n, err := res.RowsAffected(); err == nil {
			changes += n
		}
	}

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM groups WHERE group_id = ?`, domain.ReservedGroupID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to check reserved group: %w", err)
	}
	if count == 0 {
		now := time.Now().UnixMilli()
		_, err := tx.Exec(`
			INSERT INTO groups (group_id, title, subtitle, created_at, updated_at)
			VALUES (?, ?, '', ?, ?)
		`, domain.ReservedGroupID, domain.ReservedGroupTitle, now, now)
		if err != nil {
			return 0, fmt.Errorf("failed to re-create reserved group: %w", err)
		}
		changes++
	}

	if err := resyncSequences(tx); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit restore: %w", err)
	}
	return changes, nil
}

// resyncSequences points the AUTOINCREMENT counters at the restored maximum
// ids so that new rows do not collide with imported ones.
func resyncSequences(tx *sql.Tx) error {
	for _, t := range []struct{ table, idCol string }{
		{"groups", "group_id"},
		{"cards", "card_id"},
	} {
		if _, err := tx.Exec(`DELETE FROM sqlite_sequence WHERE name = ?`, t.table); err != nil {
			return fmt.Errorf("failed to reset sequence for %s: %w", t.table, err)
		}
		_, err := tx.Exec(fmt.Sprintf(
			`INSERT INTO sqlite_sequence (name, seq) SELECT '%s', COALESCE(MAX(%s), 0) FROM %s`,
			t.table, t.idCol, t.table))
		if err != nil {
			return fmt.Errorf("failed to resync sequence for %s: %w", t.table, err)
		}
	}
	return nil
}
