package domain

import "time"

type EntryType string

const (
	EntryAppointment EntryType = "appointment"
	EntryBreak       EntryType = "break"
	EntryBlocked     EntryType = "blocked"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryAppointment, EntryBreak, EntryBlocked:
		return true
	}
	return false
}

// ScheduleEntry marks an interval on a caregiver's calendar as taken.
type ScheduleEntry struct {
	Record

	CaregiverID   string    `json:"caregiver_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Type          EntryType `json:"type"`
	Notes         string    `json:"notes,omitempty"`
}

func (e ScheduleEntry) Interval() (Interval, error) {
	return ParseInterval(e.StartTime, e.EndTime)
}

// AvailabilityWindow is a recurring weekly interval during which a
// caregiver accepts bookings. DayOfWeek follows time.Weekday (0 = Sunday).
type AvailabilityWindow struct {
	Record

	CaregiverID string `json:"caregiver_id"`
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsActive    bool   `json:"is_active"`
}

func (w AvailabilityWindow) Interval() (Interval, error) {
	return ParseInterval(w.StartTime, w.EndTime)
}

func (w AvailabilityWindow) AppliesTo(day time.Weekday) bool {
	return w.IsActive && w.DayOfWeek == int(day)
}
