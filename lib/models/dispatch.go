package models

import "time"

// TriggerCounter is the single shared row backing the manual trigger
// limiter. Date is a calendar date in the home zone; when it lags behind
// "today" the count reads as zero.
type TriggerCounter struct {
	ID    uint `gorm:"primaryKey"`
	Date  string
	Count int
}

// DispatchLock is the single-row mutual exclusion token guarding dispatch
// runs. A lock past its Deadline may be stolen.
type DispatchLock struct {
	ID       uint `gorm:"primaryKey"`
	Token    string
	Deadline time.Time
}
