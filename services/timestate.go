package services

import "time"

// TimeState - состояние окна записи проекта в момент now.
type TimeState string

const (
	TimeStateScheduled TimeState = "scheduled"
	TimeStateOpened    TimeState = "opened"
	TimeStateClosed    TimeState = "closed"
)

// TimeStateAt classifies the enrollment window. An end date at or before now
// wins over a start date still in the future, so exactly one state holds for
// any input.
func TimeStateAt(start, end *time.Time, now time.Time) TimeState {
	if end != nil && !end.After(now) {
		return TimeStateClosed
	}
	if start != nil && start.After(now) {
		return TimeStateScheduled
	}
	return TimeStateOpened
}
