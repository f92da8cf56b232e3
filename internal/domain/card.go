package domain

import "time"

// Status is a card's position in the learning lifecycle.
type Status int

const (
	StatusNew      Status = 0
	StatusLearning Status = 1
	StatusMastered Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusLearning:
		return "learning"
	case StatusMastered:
		return "mastered"
	default:
		return "unknown"
	}
}

// Card is a single question-answer entry together with its SM-2 scheduling
// state. LastReviewedAt is nil for a card that has never been reviewed.
type Card struct {
	ID             int64
	GroupID        int64
	Question       string
	Answer         string
	ContentHash    string
	Easiness       float64
	Repetitions    int
	IntervalDays   int
	Status         Status
	CreatedAt      time.Time
	LastReviewedAt *time.Time
	NextReviewAt   time.Time
}

// ReviewStat records a single review event for a card together with the
// rolling average score at the time of the review.
type ReviewStat struct {
	CardID     int64
	Score      int
	AvgScore   float64
	ReviewedAt time.Time
}
