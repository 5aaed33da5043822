package domain

import (
	"strings"
	"time"
)

type AppointmentStatus string

const (
	StatusNew        AppointmentStatus = "new"
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusRejected   AppointmentStatus = "rejected"
)

// Statuses lists every status in lifecycle order.
var Statuses = []AppointmentStatus{
	StatusNew,
	StatusPending,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusRejected,
}

func (s AppointmentStatus) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further status mutation is allowed.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

type BookingType string

const (
	BookingImmediate BookingType = "immediate"
	BookingScheduled BookingType = "schedule"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Task struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	Time        string `json:"time,omitempty"`
	Required    bool   `json:"required"`
}

// Contact identifies the household a booking is served at.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// SameAs compares by phone when both sides have one, otherwise by name.
// Both comparisons are exact.
func (c Contact) SameAs(o Contact) bool {
	if c.Phone != "" && o.Phone != "" {
		return c.Phone == o.Phone
	}
	return c.Name == o.Name
}

// NormalizeAddress trims and case-folds an address for equality checks.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

type Note struct {
	ID        string    `json:"id"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Appointment struct {
	Record

	UserID           string            `json:"user_id"`
	CaregiverID      string            `json:"caregiver_id"`
	ElderlyProfileID string            `json:"elderly_profile_id"`
	BookingType      BookingType       `json:"booking_type"`
	Status           AppointmentStatus `json:"status"`
	PackageType      string            `json:"package_type,omitempty"`
	StartDate        string            `json:"start_date"`
	EndDate          string            `json:"end_date,omitempty"`
	StartTime        string            `json:"start_time"`
	EndTime          string            `json:"end_time,omitempty"`
	Duration         string            `json:"duration,omitempty"`
	WorkLocation     string            `json:"work_location,omitempty"`
	Contact          Contact           `json:"contact"`
	Tasks            []Task            `json:"tasks,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	NoteEntries      []Note            `json:"note_entries,omitempty"`
	TotalAmount      float64           `json:"total_amount"`
	PaymentStatus    PaymentStatus     `json:"payment_status"`
	PaymentMethod    string            `json:"payment_method,omitempty"`
	ResponseDeadline *time.Time        `json:"response_deadline,omitempty"`
	CancelReason     string            `json:"cancel_reason,omitempty"`
	RejectReason     string            `json:"reject_reason,omitempty"`
	CheckedInAt      *time.Time        `json:"checked_in_at,omitempty"`
	CheckInImageURI  string            `json:"check_in_image_uri,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	HasFeedback      bool              `json:"has_feedback,omitempty"`
}

// HasSlot reports whether the booking carries enough scheduling data to
// occupy an interval on the caregiver's calendar.
func (a Appointment) HasSlot() bool {
	return a.CaregiverID != "" && a.StartDate != "" && a.StartTime != "" && a.EndTime != ""
}

// IncompleteRequiredTasks returns the required tasks not yet completed, in
// task order.
func (a Appointment) IncompleteRequiredTasks() []Task {
	var out []Task
	for _, t := range a.Tasks {
		if t.Required && !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

type Actor string

const (
	ActorRequester Actor = "requester"
	ActorCaregiver Actor = "caregiver"
	ActorSystem    Actor = "system"
)

// StatusChange is published after every persisted status mutation.
type StatusChange struct {
	AppointmentID string            `json:"appointment_id"`
	CaregiverID   string            `json:"caregiver_id,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	From          AppointmentStatus `json:"from"`
	To            AppointmentStatus `json:"to"`
	Actor         Actor             `json:"actor"`
	At            time.Time         `json:"at"`
}
