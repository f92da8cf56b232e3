// Package dump serializes the whole card store to a portable SQL script and
// restores a store from one. The script is the interchange format for
// backups and remote sync; its shape must stay stable across versions.
package dump

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/knowcards/knowcards/internal/apperr"
	"github.com/knowcards/knowcards/internal/storage"
)

// Export serializes every group, card and review stat to a newline-separated
// SQL script. Group and card rows use INSERT OR IGNORE so that re-applying a
// dump on top of identical data is harmless; review stat rows have no
// uniqueness constraint and use plain INSERT.
func Export(st *storage.Store) (string, error) {
	snap, err := st.Snapshot()
	if err != nil {
		return "", fmt.Errorf("failed to snapshot store: %w", err)
	}

	var b strings.Builder
	b.WriteString("-- knowcards dump\n")

	b.WriteString("-- groups\n")
	for _, g := range snap.Groups {
		fmt.Fprintf(&b,
			"INSERT OR IGNORE INTO groups (group_id, title, subtitle, created_at, updated_at) VALUES (%d, %s, %s, %d, %d);\n",
			g.ID, quote(g.Title), quote(g.Subtitle), g.CreatedAt.UnixMilli(), g.UpdatedAt.UnixMilli())
	}

	b.WriteString("-- cards\n")
	for _, c := range snap.Cards {
		lastReviewed := "NULL"
		if c.LastReviewedAt != nil {
			lastReviewed = strconv.FormatInt(c.LastReviewedAt.UnixMilli(), 10)
		}
		fmt.Fprintf(&b,
			"INSERT OR IGNORE INTO cards (card_id, group_id, question, answer, content_hash, easiness, repetitions, interval_days, status, created_at, last_reviewed_at, next_review_at) VALUES (%d, %d, %s, %s, %s, %s, %d, %d, %d, %d, %s, %d);\n",
			c.ID, c.GroupID, quote(c.Question), quote(c.Answer), quote(c.ContentHash),
			realLiteral(c.Easiness), c.Repetitions, c.IntervalDays, int(c.Status),
			c.CreatedAt.UnixMilli(), lastReviewed, c.NextReviewAt.UnixMilli())
	}

	b.WriteString("-- review_stats\n")
	for _, s := range snap.Stats {
		fmt.Fprintf(&b,
			"INSERT INTO review_stats (card_id, score, avg_score, reviewed_at) VALUES (%d, %d, %s, %d);\n",
			s.CardID, s.Score, realLiteral(s.AvgScore), s.ReviewedAt.UnixMilli())
	}

	return b.String(), nil
}

// quote renders a string as a SQL single-quoted literal with embedded single
// quotes doubled.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// realLiteral renders a float for the dump. Non-finite values cannot be
// expressed as SQL literals, so they degrade to NULL with a warning rather
// than producing a script that fails to import.
func realLiteral(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		slog.Warn("non-finite value in dump, substituting NULL", slog.Float64("value", f))
		return "NULL"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Result reports the outcome of an import.
type Result struct {
	Changes int64
	Message string
}

// Import transactionally replaces the store contents with the statements in
// the given script. Either the destructive clear and every statement apply,
// or the store is left exactly as it was.
func Import(st *storage.Store, text string) (*Result, error) {
	start := time.Now()

	stmts, err := Split(text)
	if err != nil {
		return nil, &apperr.ImportError{Err: err}
	}

	changes, err := st.Restore(stmts)
	if err != nil {
		return nil, err
	}

	slog.Info("dump imported",
		slog.Int("statements", len(stmts)),
		slog.Int64("changes", changes),
		slog.Duration("elapsed", time.Since(start)))

	return &Result{
		Changes: changes,
		Message: fmt.Sprintf("restored %d rows from %d statements", changes, len(stmts)),
	}, nil
}
