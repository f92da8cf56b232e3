package storage_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowcards/knowcards/internal/apperr"
	"github.com/knowcards/knowcards/internal/domain"
	"github.com/knowcards/knowcards/internal/storage"
	"github.com/knowcards/knowcards/internal/testutil"
)

func TestOpenCreatesReservedGroup(t *testing.T) {
	st := testutil.TestStore(t)

	g, err := st.GetGroup(domain.ReservedGroupID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservedGroupTitle, g.Title)
}

func TestCreateGroup(t *testing.T) {
	st := testutil.TestStore(t)

	id, err := st.CreateGroup("Go Basics", "Syntax and tooling")
	require.NoError(t, err)
	assert.Greater(t, id, domain.ReservedGroupID)

	g, err := st.GetGroup(id)
	require.NoError(t, err)
	assert.Equal(t, "Go Basics", g.Title)
	assert.Equal(t, "Syntax and tooling", g.Subtitle)
	assert.False(t, g.CreatedAt.IsZero())

	t.Run("duplicate title rejected", func(t *testing.T) {
		_, err := st.CreateGroup("Go Basics", "again")
		assert.ErrorIs(t, err, apperr.ErrDuplicateTitle)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		_, err := st.CreateGroup("", "")
		assert.Error(t, err)
	})
}

func TestGroupCapacity(t *testing.T) {
	st := testutil.TestStore(t) // default cap of 16, reserved group counts

	for i := 2; i <= 16; i++ {
		_, err := st.CreateGroup(fmt.Sprintf("Group %d", i), "")
		require.NoError(t, err)
	}

	_, err := st.CreateGroup("One too many", "")
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
}

func TestGroupCapIsConfigurable(t *testing.T) {
	st := testutil.TestStore(t, storage.WithGroupCap(2))

	_, err := st.CreateGroup("Second", "")
	require.NoError(t, err)
	_, err = st.CreateGroup("Third", "")
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
}

func TestCreateCard(t *testing.T) {
	st := testutil.TestStore(t)

	id, err := st.CreateCard("What is a goroutine?", "A lightweight thread managed by the runtime.", domain.ReservedGroupID)
	require.NoError(t, err)

	card, err := st.GetCard(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, card.Status)
	assert.Equal(t, 2.5, card.Easiness)
	assert.Equal(t, 0, card.Repetitions)
	assert.Equal(t, 0, card.IntervalDays)
	assert.Nil(t, card.LastReviewedAt)
	assert.NotEmpty(t, card.ContentHash)
	// New cards are immediately due.
	assert.False(t, card.NextReviewAt.After(time.Now().Add(time.Second)))

	t.Run("duplicate content rejected", func(t *testing.T) {
		_, err := st.CreateCard("What is a goroutine?", "A lightweight thread managed by the runtime.", domain.ReservedGroupID)
		assert.ErrorIs(t, err, apperr.ErrDuplicateCard)
	})

	t.Run("unknown group rejected", func(t *testing.T) {
		_, err := st.CreateCard("Q", "A", 999)
		assert.ErrorIs(t, err, apperr.ErrUnknownGroup)
	})

	t.Run("empty question rejected", func(t *testing.T) {
		_, err := st.CreateCard("", "A", domain.ReservedGroupID)
		assert.Error(t, err)
	})

	t.Run("empty answer rejected", func(t *testing.T) {
		_, err := st.CreateCard("Q", "", domain.ReservedGroupID)
		assert.Error(t, err)
	})
}

func TestGetMissingEntities(t *testing.T) {
	st := testutil.TestStore(t)

	_, err := st.GetCard(42)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = st.GetGroup(42)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListCardsInGroup(t *testing.T) {
	st := testutil.TestStore(t)

	groupID, err := st.CreateGroup("Databases", "")
	require.NoError(t, err)

	_, err = st.CreateCard("Q1", "A1", groupID)
	require.NoError(t, err)
	_, err = st.CreateCard("Q2", "A2", groupID)
	require.NoError(t, err)
	_, err = st.CreateCard("Elsewhere", "A", domain.ReservedGroupID)
	require.NoError(t, err)

	cards, err := st.ListCardsInGroup(groupID)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Less(t, cards[0].ID, cards[1].ID)

	_, err = st.ListCardsInGroup(999)
	assert.ErrorIs(t, err, apperr.ErrUnknownGroup)
}

func TestListDueCards(t *testing.T) {
	st := testutil.TestStore(t)
	now := time.Now()

	first, err := st.CreateCard("Q1", "A1", domain.ReservedGroupID)
	require.NoError(t, err)
	second, err := st.CreateCard("Q2", "A2", domain.ReservedGroupID)
	require.NoError(t, err)

	// New cards are due immediately.
	due, err := st.ListDueCards(now.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	// After a successful review the card is scheduled a day out.
	_, err = st.ApplyReview(first, 5, now)
	require.NoError(t, err)

	due, err = st.ListDueCards(now.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, second, due[0].ID)

	// A day later it is due again, most overdue first.
	due, err = st.ListDueCards(now.AddDate(0, 0, 2), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, second, due[0].ID)

	t.Run("limit caps the result", func(t *testing.T) {
		due, err := st.ListDueCards(now.AddDate(0, 0, 2), 1)
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})

	t.Run("mastered cards are never due", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, err := st.ApplyReview(first, 5, now)
			require.NoError(t, err)
		}
		card, err := st.GetCard(first)
		require.NoError(t, err)
		require.Equal(t, domain.StatusMastered, card.Status)

		due, err := st.ListDueCards(now.AddDate(10, 0, 0), 0)
		require.NoError(t, err)
		for _, c := range due {
			assert.NotEqual(t, domain.StatusMastered, c.Status)
		}
	})
}

func TestListNewCards(t *testing.T) {
	st := testutil.TestStore(t)

	first, err := st.CreateCard("Q1", "A1", domain.ReservedGroupID)
	require.NoError(t, err)
	_, err = st.CreateCard("Q2", "A2", domain.ReservedGroupID)
	require.NoError(t, err)

	_, err = st.ApplyReview(first, 4, time.Now())
	require.NoError(t, err)

	fresh, err := st.ListNewCards(0)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "Q2", fresh[0].Question)
}

func TestUpdateCard(t *testing.T) {
	st := testutil.TestStore(t)

	groupID, err := st.CreateGroup("Target", "")
	require.NoError(t, err)
	id, err := st.CreateCard("Old question", "Old answer", domain.ReservedGroupID)
	require.NoError(t, err)

	oldCard, err := st.GetCard(id)
	require.NoError(t, err)

	require.NoError(t, st.UpdateCard(id, "New question", "New answer", groupID))

	card, err := st.GetCard(id)
	require.NoError(t, err)
	assert.Equal(t, "New question", card.Question)
	assert.Equal(t, groupID, card.GroupID)
	assert.NotEqual(t, oldCard.ContentHash, card.ContentHash)

	t.Run("missing card", func(t *testing.T) {
		err := st.UpdateCard(999, "Q", "A", groupID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("unknown group", func(t *testing.T) {
		err := st.UpdateCard(id, "Q", "A", 999)
		assert.ErrorIs(t, err, apperr.ErrUnknownGroup)
	})

	t.Run("content collision with another card", func(t *testing.T) {
		otherID, err := st.CreateCard("Other question", "Other answer", domain.ReservedGroupID)
		require.NoError(t, err)
		err = st.UpdateCard(otherID, "New question", "New answer", domain.ReservedGroupID)
		assert.ErrorIs(t, err, apperr.ErrDuplicateCard)
	})
}

func TestUpdateGroup(t *testing.T) {
	st := testutil.TestStore(t)

	id, err := st.CreateGroup("Before", "old")
	require.NoError(t, err)
	require.NoError(t, st.UpdateGroup(id, "After", "new"))

	g, err := st.GetGroup(id)
	require.NoError(t, err)
	assert.Equal(t, "After", g.Title)
	assert.Equal(t, "new", g.Subtitle)

	t.Run("missing group", func(t *testing.T) {
		err := st.UpdateGroup(999, "X", "")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("renaming reserved group is protected", func(t *testing.T) {
		err := st.UpdateGroup(domain.ReservedGroupID, "Renamed", "")
		assert.ErrorIs(t, err, apperr.ErrProtected)
	})

	t.Run("reserved subtitle may change", func(t *testing.T) {
		err := st.UpdateGroup(domain.ReservedGroupID, domain.ReservedGroupTitle, "catch-all")
		assert.NoError(t, err)
	})

	t.Run("duplicate title", func(t *testing.T) {
		other, err := st.CreateGroup("Taken", "")
		require.NoError(t, err)
		err = st.UpdateGroup(other, "After", "")
		assert.ErrorIs(t, err, apperr.ErrDuplicateTitle)
	})
}

func TestDeleteCard(t *testing.T) {
	st := testutil.TestStore(t)

	id, err := st.CreateCard("Q", "A", domain.ReservedGroupID)
	require.NoError(t, err)
	require.NoError(t, st.DeleteCard(id))

	_, err = st.GetCard(id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, st.DeleteCard(id), apperr.ErrNotFound)
}

func TestDeleteGroupCascades(t *testing.T) {
	st := testutil.TestStore(t)

	groupID, err := st.CreateGroup("Doomed", "")
	require.NoError(t, err)
	cardID, err := st.CreateCard("Q", "A", groupID)
	require.NoError(t, err)
	_, err = st.ApplyReview(cardID, 3, time.Now())
	require.NoError(t, err)

	require.NoError(t, st.DeleteGroup(groupID))

	_, err = st.GetCard(cardID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	stats, err := st.ListReviewStats()
	require.NoError(t, err)
	assert.Empty(t, stats)

	t.Run("reserved group is protected", func(t *testing.T) {
		assert.ErrorIs(t, st.DeleteGroup(domain.ReservedGroupID), apperr.ErrProtected)
	})

	t.Run("missing group", func(t *testing.T) {
		assert.ErrorIs(t, st.DeleteGroup(999), apperr.ErrNotFound)
	})
}

func TestRestoreEnforcesForeignKeys(t *testing.T) {
	st := testutil.TestStore(t)

	id, err := st.CreateCard("Keep me", "Around", domain.ReservedGroupID)
	require.NoError(t, err)

	// group_id 99 has no groups row; the cards foreign key must refuse it
	// regardless of which pooled connection runs the transaction.
	_, err = st.Restore([]string{
		"INSERT INTO cards (card_id, group_id, question, answer, content_hash, easiness, repetitions, interval_days, status, created_at, last_reviewed_at, next_review_at) " +
			"VALUES (1, 99, 'orphan', 'card', 'hash', 2.5, 0, 0, 0, 0, NULL, 0)",
	})
	require.Error(t, err)

	var impErr *apperr.ImportError
	require.ErrorAs(t, err, &impErr)

	card, err := st.GetCard(id)
	require.NoError(t, err)
	assert.Equal(t, "Keep me", card.Question)
}

func TestApplyReview(t *testing.T) {
	st := testutil.TestStore(t)
	now := time.Now()

	id, err := st.CreateCard("Q", "A", domain.ReservedGroupID)
	require.NoError(t, err)

	card, err := st.ApplyReview(id, 4, now)
	require.NoError(t, err)
	assert.Equal(t, 1, card.Repetitions)
	assert.Equal(t, 1, card.IntervalDays)
	assert.Equal(t, domain.StatusLearning, card.Status)
	require.NotNil(t, card.LastReviewedAt)

	// The persisted row matches what was returned.
	stored, err := st.GetCard(id)
	require.NoError(t, err)
	assert.Equal(t, card.Repetitions, stored.Repetitions)
	assert.Equal(t, card.Status, stored.Status)
	assert.True(t, card.NextReviewAt.Equal(stored.NextReviewAt))

	t.Run("review stat appended with rolling average", func(t *testing.T) {
		_, err := st.ApplyReview(id, 2, now)
		require.NoError(t, err)

		stats, err := st.ListReviewStats()
		require.NoError(t, err)
		require.Len(t, stats, 2)
		assert.Equal(t, 4, stats[0].Score)
		assert.InDelta(t, 4.0, stats[0].AvgScore, 1e-9)
		assert.Equal(t, 2, stats[1].Score)
		assert.InDelta(t, 3.0, stats[1].AvgScore, 1e-9)
	})

	t.Run("invalid score", func(t *testing.T) {
		_, err := st.ApplyReview(id, 6, now)
		assert.ErrorIs(t, err, apperr.ErrInvalidScore)
	})

	t.Run("missing card", func(t *testing.T) {
		_, err := st.ApplyReview(999, 3, now)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestCounts(t *testing.T) {
	st := testutil.TestStore(t)

	_, err := st.CreateGroup("Extra", "")
	require.NoError(t, err)
	_, err = st.CreateCard("Q", "A", domain.ReservedGroupID)
	require.NoError(t, err)

	groups, err := st.CountGroups()
	require.NoError(t, err)
	assert.Equal(t, 2, groups)

	cards, err := st.CountCards()
	require.NoError(t, err)
	assert.Equal(t, 1, cards)
}
