// Package sm2 implements the SM-2 spaced-repetition algorithm used to
// schedule card reviews. The package is pure: it computes the next
// scheduling state from the current one and never touches storage.
package sm2

import (
	"math"
	"time"

	"github.com/knowcards/knowcards/internal/apperr"
	"github.com/knowcards/knowcards/internal/domain"
)

const (
	// MinScore and MaxScore bound the recall-quality scale.
	MinScore = 0
	MaxScore = 5

	// PassThreshold is the lowest score counted as a successful recall.
	PassThreshold = 3

	// MinEasiness is the floor for the easiness factor.
	MinEasiness = 1.3

	// DefaultEasiness is the easiness factor assigned to a new card.
	DefaultEasiness = 2.5

	// masteryRepetitions and masteryIntervalDays gate the promotion from
	// learning to mastered.
	masteryRepetitions  = 5
	masteryIntervalDays = 60
)

// State is the scheduling state of a card.
type State struct {
	Easiness       float64
	Repetitions    int
	IntervalDays   int
	Status         domain.Status
	LastReviewedAt time.Time
	NextReviewAt   time.Time
}

// StateOf extracts the scheduling state from a card.
func StateOf(card domain.Card) State {
	s := State{
		Easiness:     card.Easiness,
		Repetitions:  card.Repetitions,
		IntervalDays: card.IntervalDays,
		Status:       card.Status,
		NextReviewAt: card.NextReviewAt,
	}
	if card.LastReviewedAt != nil {
		s.LastReviewedAt = *card.LastReviewedAt
	}
	return s
}

// Next computes the state after reviewing with the given score at the given
// time. Interval growth rounds half away from zero (math.Round), so an
// interval of 2.5 days becomes 3, not 2.
func Next(state State, score int, now time.Time) (State, error) {
	if score < MinScore || score > MaxScore {
		return State{}, apperr.ErrInvalidScore
	}

	next := state

	if score >= PassThreshold {
		switch state.Repetitions {
		case 0:
			next.IntervalDays = 1
		case 1:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Round(float64(state.IntervalDays) * state.Easiness))
		}
		next.Repetitions = state.Repetitions + 1

		q := float64(score)
		next.Easiness = state.Easiness + (0.1 - (5-q)*(0.08+(5-q)*0.02))
		if next.Easiness < MinEasiness {
			next.Easiness = MinEasiness
		}
	} else {
		next.Repetitions = 0
		next.IntervalDays = 1
		next.Easiness = math.Max(MinEasiness, state.Easiness-0.2)
	}

	next.LastReviewedAt = now
	next.NextReviewAt = now.AddDate(0, 0, next.IntervalDays)
	next.Status = nextStatus(state.Status, score, next.Repetitions, next.IntervalDays)

	return next, nil
}

// nextStatus applies the lifecycle transitions: a new card always enters
// learning on its first review, a mastered card is demoted on failure, and a
// learning card is promoted once it has enough consecutive successes and a
// long enough interval.
func nextStatus(current domain.Status, score, repetitions, intervalDays int) domain.Status {
	switch current {
	case domain.StatusNew:
		return domain.StatusLearning
	case domain.StatusMastered:
		if score < PassThreshold {
			return domain.StatusLearning
		}
		return domain.StatusMastered
	case domain.StatusLearning:
		if repetitions >= masteryRepetitions && intervalDays >= masteryIntervalDays {
			return domain.StatusMastered
		}
		return domain.StatusLearning
	default:
		return current
	}
}
