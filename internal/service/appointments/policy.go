package appointments

import (
	"fmt"
	"strings"
	"time"

	"carelink/backend/internal/domain"
)

type ConflictMode string

const (
	// ConflictAdvisory logs the conflict and reports it with the check-in
	// result without blocking the transition.
	ConflictAdvisory ConflictMode = "advisory"
	ConflictBlocking ConflictMode = "blocking"
)

func ParseConflictMode(s string) (ConflictMode, error) {
	switch m := ConflictMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ConflictAdvisory, nil
	case ConflictAdvisory, ConflictBlocking:
		return m, nil
	default:
		return "", fmt.Errorf("unknown conflict mode %q", s)
	}
}

type Policy struct {
	// ResponseWindowDays is how many days before the start date a new
	// request stops accepting a response.
	ResponseWindowDays int
	// CancelWindowDays is the minimum number of calendar days between today
	// and the start date for a cancellation.
	CancelWindowDays int
	ConflictMode     ConflictMode
	Location         *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		ResponseWindowDays: 3,
		CancelWindowDays:   3,
		ConflictMode:       ConflictAdvisory,
		Location:           time.UTC,
	}
}

// ResponseDeadline is 23:59:59 on the day ResponseWindowDays
// before startDate, in the policy location.
func (p Policy) ResponseDeadline(startDate string) (time.Time, error) {
	day, err := domain.ParseDate(startDate, p.Location)
	if err != nil {
		return time.Time{}, err
	}
	cutoff := day.AddDate(0, 0, -p.ResponseWindowDays)
	return time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 23, 59, 59, 0, cutoff.Location()), nil
}

// CanCancel compares dates only; the time of day of now is ignored.
func (p Policy) CanCancel(startDate string, now time.Time) (bool, error) {
	day, err := domain.ParseDate(startDate, p.Location)
	if err != nil {
		return false, err
	}
	return domain.CalendarDaysBetween(now, day, p.Location) >= p.CancelWindowDays, nil
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.ResponseWindowDays <= 0 {
		p.ResponseWindowDays = d.ResponseWindowDays
	}
	if p.CancelWindowDays < 0 {
		p.CancelWindowDays = d.CancelWindowDays
	}
	if p.ConflictMode == "" {
		p.ConflictMode = d.ConflictMode
	}
	if p.Location == nil {
		p.Location = d.Location
	}
	return p
}
