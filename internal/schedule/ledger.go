package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"carelink/backend/internal/domain"
	"carelink/backend/internal/store"
)

const (
	EntriesCollection      = "caregiver_schedules"
	AvailabilityCollection = "caregiver_availability"
)

var ErrInvalidEntry = errors.New("invalid schedule entry")

// OverlapError reports the existing entry that blocks an insertion.
type OverlapError struct {
	Entry domain.ScheduleEntry
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlaps %s entry %s on %s %s-%s",
		e.Entry.Type, e.Entry.ID, e.Entry.Date, e.Entry.StartTime, e.Entry.EndTime)
}

func (e *OverlapError) Unwrap() error {
	return store.ErrConflict
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEntry, fmt.Sprintf(format, args...))
}

// Ledger keeps one-off calendar entries and recurring availability windows
// per caregiver.
type Ledger struct {
	entries *store.Collection[domain.ScheduleEntry, *domain.ScheduleEntry]
	windows *store.Collection[domain.AvailabilityWindow, *domain.AvailabilityWindow]
	loc     *time.Location
}

func NewLedger(backend store.Backend, loc *time.Location, opts ...store.Option) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{
		entries: store.NewCollection[domain.ScheduleEntry, *domain.ScheduleEntry](backend, EntriesCollection, opts...),
		windows: store.NewCollection[domain.AvailabilityWindow, *domain.AvailabilityWindow](backend, AvailabilityCollection, opts...),
		loc:     loc,
	}
}

func (l *Ledger) Location() *time.Location {
	return l.loc
}

type EntryInput struct {
	CaregiverID   string
	AppointmentID string
	Date          string
	StartTime     string
	EndTime       string
	Type          domain.EntryType
	Notes         string
}

func (l *Ledger) normalizeEntry(in EntryInput) (domain.ScheduleEntry, domain.Interval, error) {
	caregiverID := strings.TrimSpace(in.CaregiverID)
	if caregiverID == "" {
		return domain.ScheduleEntry{}, domain.Interval{}, invalid("caregiver_id is required")
	}
	day, err := domain.ParseDate(in.Date, l.loc)
	if err != nil {
		return domain.ScheduleEntry{}, domain.Interval{}, invalid("%v", err)
	}
	iv, err := domain.ParseInterval(in.StartTime, in.EndTime)
	if err != nil {
		return domain.ScheduleEntry{}, domain.Interval{}, invalid("%v", err)
	}
	if iv.End <= iv.Start {
		return domain.ScheduleEntry{}, domain.Interval{}, invalid("end_time must be after start_time")
	}
	if !in.Type.Valid() {
		return domain.ScheduleEntry{}, domain.Interval{}, invalid("unknown entry type %q", in.Type)
	}
	return domain.ScheduleEntry{
		CaregiverID:   caregiverID,
		AppointmentID: strings.TrimSpace(in.AppointmentID),
		Date:          domain.FormatDate(day),
		StartTime:     domain.FormatClock(iv.Start),
		EndTime:       domain.FormatClock(iv.End),
		Type:          in.Type,
		Notes:         in.Notes,
	}, iv, nil
}

// CreateEntry inserts an entry unless it overlaps another entry of the
// same caregiver on the same date, in which case an *OverlapError names
// the first blocking entry.
func (l *Ledger) CreateEntry(ctx context.Context, in EntryInput) (string, error) {
	entry, iv, err := l.normalizeEntry(in)
	if err != nil {
		return "", err
	}
	created, err := l.entries.CreateIf(ctx, entry, func(existing []domain.ScheduleEntry) error {
		for _, e := range sortEntries(existing) {
			if e.CaregiverID != entry.CaregiverID || e.Date != entry.Date {
				continue
			}
			eiv, err := e.Interval()
			if err != nil {
				continue
			}
			if eiv.Overlaps(iv) {
				return &OverlapError{Entry: e}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// RestoreEntry re-inserts a previously removed entry under its original
// id, skipping the overlap check.
func (l *Ledger) RestoreEntry(ctx context.Context, entry domain.ScheduleEntry) error {
	_, err := l.entries.Create(ctx, entry)
	return err
}

func (l *Ledger) GetEntry(ctx context.Context, id string) (domain.ScheduleEntry, bool, error) {
	return l.entries.GetByID(ctx, id)
}

func (l *Ledger) DeleteEntry(ctx context.Context, id string) (bool, error) {
	return l.entries.Delete(ctx, id)
}

// DeleteEntryByAppointment reports whether an entry linked to
// appointmentID was removed. No linked entry is not an error.
func (l *Ledger) DeleteEntryByAppointment(ctx context.Context, appointmentID string) (bool, error) {
	removed, err := l.DetachAppointment(ctx, appointmentID)
	return len(removed) > 0, err
}

// DetachAppointment removes and returns the entries linked to
// appointmentID, so a caller can restore them if its own write fails.
func (l *Ledger) DetachAppointment(ctx context.Context, appointmentID string) ([]domain.ScheduleEntry, error) {
	if appointmentID == "" {
		return nil, nil
	}
	return l.entries.DeleteWhere(ctx, func(e domain.ScheduleEntry) bool {
		return e.AppointmentID == appointmentID
	})
}

func (l *Ledger) ListByCaregiverAndDate(ctx context.Context, caregiverID, date string) ([]domain.ScheduleEntry, error) {
	day, err := domain.ParseDate(date, l.loc)
	if err != nil {
		return nil, invalid("%v", err)
	}
	want := domain.FormatDate(day)
	out, err := l.entries.Query(ctx, func(e domain.ScheduleEntry) bool {
		return e.CaregiverID == caregiverID && e.Date == want
	})
	if err != nil {
		return nil, err
	}
	return sortEntries(out), nil
}

func (l *Ledger) ListByCaregiver(ctx context.Context, caregiverID string) ([]domain.ScheduleEntry, error) {
	out, err := l.entries.GetByField(ctx, "caregiver_id", caregiverID)
	if err != nil {
		return nil, err
	}
	return sortEntries(out), nil
}

func (l *Ledger) ListByAppointment(ctx context.Context, appointmentID string) ([]domain.ScheduleEntry, error) {
	if appointmentID == "" {
		return nil, nil
	}
	out, err := l.entries.GetByField(ctx, "appointment_id", appointmentID)
	if err != nil {
		return nil, err
	}
	return sortEntries(out), nil
}

func (l *Ledger) BlockTime(ctx context.Context, caregiverID, date, start, end, reason string) (string, error) {
	return l.CreateEntry(ctx, EntryInput{
		CaregiverID: caregiverID,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		Type:        domain.EntryBlocked,
		Notes:       reason,
	})
}

func (l *Ledger) AddBreak(ctx context.Context, caregiverID, date, start, end string) (string, error) {
	return l.CreateEntry(ctx, EntryInput{
		CaregiverID: caregiverID,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		Type:        domain.EntryBreak,
		Notes:       "Break",
	})
}

// sortEntries orders by date then start time. Dates and clocks are stored
// zero-padded, so string order is chronological.
func sortEntries(in []domain.ScheduleEntry) []domain.ScheduleEntry {
	out := append([]domain.ScheduleEntry(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
