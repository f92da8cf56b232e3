package domain

import "time"

// ReservedGroupID is the id of the built-in "Unsorted" group. The group is
// created when the store opens and can never be deleted or renamed.
const ReservedGroupID int64 = 1

// ReservedGroupTitle is the title of the built-in group.
const ReservedGroupTitle = "Unsorted"

// Group is a named collection of cards.
type Group struct {
	ID        int64
	Title     string
	Subtitle  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
