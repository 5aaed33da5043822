// Package booking persists appointments and keeps each one's calendar
// entry in the schedule ledger in step with it.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"carelink/backend/internal/domain"
	"carelink/backend/internal/schedule"
	"carelink/backend/internal/store"
)

const Collection = "appointments"

const ledgerEntryNote = "Auto-created from appointment"

// ErrTerminalStatus is returned when a write would change the status of a
// completed, cancelled or rejected appointment.
var ErrTerminalStatus = errors.New("appointment status is terminal")

func refuseTerminal(a *domain.Appointment) error {
	if a.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalStatus, a.ID, a.Status)
	}
	return nil
}

type Option func(*Repository)

// WithClock sets the clock used for record stamps and for the upcoming,
// past and today listings.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
			r.storeOpts = append(r.storeOpts, store.WithClock(now))
		}
	}
}

func WithIDGenerator(fn func() (string, error)) Option {
	return func(r *Repository) {
		r.storeOpts = append(r.storeOpts, store.WithIDGenerator(fn))
	}
}

type Repository struct {
	appts     *store.Collection[domain.Appointment, *domain.Appointment]
	ledger    *schedule.Ledger
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
	storeOpts []store.Option
}

func NewRepository(backend store.Backend, ledger *schedule.Ledger, logger *slog.Logger, opts ...Option) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{
		ledger: ledger,
		loc:    ledger.Location(),
		now:    time.Now,
		logger: logger.With(slog.String("component", "booking_repository")),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.appts = store.NewCollection[domain.Appointment, *domain.Appointment](backend, Collection, r.storeOpts...)
	return r
}

func (r *Repository) Ledger() *schedule.Ledger {
	return r.ledger
}

// fail logs storage failures once, at the repository boundary.
func (r *Repository) fail(ctx context.Context, op, id string, err error) error {
	if errors.Is(err, store.ErrStorage) {
		r.logger.ErrorContext(ctx, "storage failure",
			slog.String("op", op),
			slog.String("appointment_id", id),
			slog.Any("err", err),
		)
	}
	return err
}

// Create stores appt and, when it carries a caregiver slot, the linked
// appointment entry. If the entry cannot be registered the appointment is
// removed again and the ledger error is returned.
func (r *Repository) Create(ctx context.Context, appt domain.Appointment) (string, error) {
	created, err := r.appts.Create(ctx, appt)
	if err != nil {
		return "", r.fail(ctx, "create", appt.ID, err)
	}
	if !created.HasSlot() {
		return created.ID, nil
	}

	_, err = r.ledger.CreateEntry(ctx, schedule.EntryInput{
		CaregiverID:   created.CaregiverID,
		AppointmentID: created.ID,
		Date:          created.StartDate,
		StartTime:     created.StartTime,
		EndTime:       created.EndTime,
		Type:          domain.EntryAppointment,
		Notes:         ledgerEntryNote,
	})
	if err == nil {
		return created.ID, nil
	}

	if _, delErr := r.appts.Delete(ctx, created.ID); delErr != nil {
		r.logger.ErrorContext(ctx, "rollback of appointment create failed",
			slog.String("appointment_id", created.ID),
			slog.Any("err", delErr),
		)
		return "", r.fail(ctx, "create", created.ID, errors.Join(err, delErr))
	}
	return "", r.fail(ctx, "create", created.ID, fmt.Errorf("register schedule entry: %w", err))
}

func (r *Repository) GetByID(ctx context.Context, id string) (domain.Appointment, bool, error) {
	appt, ok, err := r.appts.GetByID(ctx, id)
	if err != nil {
		return domain.Appointment{}, false, r.fail(ctx, "get", id, err)
	}
	return appt, ok, nil
}

// Update applies fn to the stored appointment under a version check. A zero
// expectedVersion skips the check.
func (r *Repository) Update(ctx context.Context, id string, expectedVersion int64, fn func(*domain.Appointment) error) (domain.Appointment, bool, error) {
	appt, ok, err := r.appts.UpdateFunc(ctx, id, expectedVersion, fn)
	if err != nil {
		return domain.Appointment{}, false, r.fail(ctx, "update", id, err)
	}
	return appt, ok, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.AppointmentStatus) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("unknown status %q", status)
	}
	_, ok, err := r.Update(ctx, id, 0, func(a *domain.Appointment) error {
		if err := refuseTerminal(a); err != nil {
			return err
		}
		a.Status = status
		return nil
	})
	return ok, err
}

// Release applies fn, which moves the appointment into a state that no
// longer occupies the caregiver's calendar, then removes the linked
// ledger entries. Terminal appointments are refused with
// ErrTerminalStatus. When the ledger write fails the appointment is put
// back as it was and the error is returned.
func (r *Repository) Release(ctx context.Context, id string, expectedVersion int64, fn func(*domain.Appointment) error) (domain.Appointment, bool, error) {
	var prev domain.Appointment
	appt, ok, err := r.appts.UpdateFunc(ctx, id, expectedVersion, func(a *domain.Appointment) error {
		if err := refuseTerminal(a); err != nil {
			return err
		}
		prev = *a
		return fn(a)
	})
	if err != nil || !ok {
		return domain.Appointment{}, ok, r.fail(ctx, "release", id, err)
	}

	if _, err := r.ledger.DetachAppointment(ctx, id); err != nil {
		_, _, restoreErr := r.appts.UpdateFunc(ctx, id, appt.Version, func(a *domain.Appointment) error {
			rec := a.Record
			*a = prev
			a.Record = rec
			return nil
		})
		if restoreErr != nil {
			r.logger.ErrorContext(ctx, "rollback of appointment release failed",
				slog.String("appointment_id", id),
				slog.Any("err", restoreErr),
			)
			err = errors.Join(err, restoreErr)
		}
		return domain.Appointment{}, false, r.fail(ctx, "release", id, fmt.Errorf("release schedule entry: %w", err))
	}
	return appt, true, nil
}

func (r *Repository) Cancel(ctx context.Context, id, reason string) (bool, error) {
	_, ok, err := r.Release(ctx, id, 0, func(a *domain.Appointment) error {
		a.Status = domain.StatusCancelled
		a.CancelReason = reason
		return nil
	})
	return ok, err
}

// Delete removes the linked ledger entries and then the appointment. If
// the appointment cannot be removed the entries are restored.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := r.ledger.DetachAppointment(ctx, id)
	if err != nil {
		return false, r.fail(ctx, "delete", id, err)
	}

	ok, err := r.appts.Delete(ctx, id)
	if err == nil {
		return ok, nil
	}
	for _, e := range removed {
		if restoreErr := r.ledger.RestoreEntry(ctx, e); restoreErr != nil {
			r.logger.ErrorContext(ctx, "rollback of schedule entry delete failed",
				slog.String("appointment_id", id),
				slog.String("entry_id", e.ID),
				slog.Any("err", restoreErr),
			)
			err = errors.Join(err, restoreErr)
		}
	}
	return false, r.fail(ctx, "delete", id, err)
}

func (r *Repository) MarkFeedbackComplete(ctx context.Context, id string) (bool, error) {
	_, ok, err := r.Update(ctx, id, 0, func(a *domain.Appointment) error {
		a.HasFeedback = true
		return nil
	})
	return ok, err
}

func (r *Repository) query(ctx context.Context, op string, pred func(domain.Appointment) bool) ([]domain.Appointment, error) {
	out, err := r.appts.Query(ctx, pred)
	if err != nil {
		return nil, r.fail(ctx, op, "", err)
	}
	return out, nil
}

func (r *Repository) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	out, err := r.query(ctx, "list_all", func(domain.Appointment) bool { return true })
	if err != nil {
		return nil, err
	}
	return sortByStart(out, false), nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Appointment, error) {
	out, err := r.query(ctx, "list_by_user", func(a domain.Appointment) bool {
		return a.UserID == userID
	})
	if err != nil {
		return nil, err
	}
	return sortByStart(out, false), nil
}

func (r *Repository) ListByCaregiver(ctx context.Context, caregiverID string) ([]domain.Appointment, error) {
	out, err := r.query(ctx, "list_by_caregiver", func(a domain.Appointment) bool {
		return a.CaregiverID == caregiverID
	})
	if err != nil {
		return nil, err
	}
	return sortByStart(out, false), nil
}

func (r *Repository) ListByStatus(ctx context.Context, userID string, status domain.AppointmentStatus) ([]domain.Appointment, error) {
	out, err := r.query(ctx, "list_by_status", func(a domain.Appointment) bool {
		return a.UserID == userID && a.Status == status
	})
	if err != nil {
		return nil, err
	}
	return sortByStart(out, false), nil
}

// ListByDateRange returns the user's appointments whose start date falls in
// [startDate, endDate], both YYYY-MM-DD.
func (r *Repository) ListByDateRange(ctx context.Context, userID, startDate, endDate string) ([]domain.Appointment, error) {
	from, err := domain.ParseDate(startDate, r.loc)
	if err != nil {
		return nil, err
	}
	to, err := domain.ParseDate(endDate, r.loc)
	if err != nil {
		return nil, err
	}
	lo, hi := domain.FormatDate(from), domain.FormatDate(to)
	out, err := r.query(ctx, "list_by_date_range", func(a domain.Appointment) bool {
		return a.UserID == userID && a.StartDate >= lo && a.StartDate <= hi
	})
	if err != nil {
		return nil, err
	}
	return sortByStart(out, false), nil
}

// ListUpcoming returns the user's open appointments that start after now,
// soonest first.
func (r *Repository) ListUpcoming(ctx context.Context, userID string) ([]domain.Appointment, error) {
	now := r.now()
	out, err := r.query(ctx, "list_upcoming", func(a domain.Appointment) bool {
		if a.UserID != userID {
			return false
		}
		switch a.Status {
		case domain.StatusNew, domain.StatusPending, domain.StatusConfirmed:
		default:
			return false
		}
		start, ok := r.startOf(a)
		return ok && start.After(now)
	})
	if err != nil {
		return nil, err
	}
	return sortByStart(out, false), nil
}

// ListPast returns the user's appointments that already started or were
// completed, most recent first.
func (r *Repository) ListPast(ctx context.Context, userID string) ([]domain.Appointment, error) {
	now := r.now()
	out, err := r.query(ctx, "list_past", func(a domain.Appointment) bool {
		if a.UserID != userID {
			return false
		}
		if a.Status == domain.StatusCompleted {
			return true
		}
		start, ok := r.startOf(a)
		return ok && !start.After(now)
	})
	if err != nil {
		return nil, err
	}
	return sortByStart(out, true), nil
}

func (r *Repository) ListToday(ctx context.Context, userID string) ([]domain.Appointment, error) {
	today := domain.FormatDate(r.now().In(r.loc))
	out, err := r.query(ctx, "list_today", func(a domain.Appointment) bool {
		return a.UserID == userID && a.StartDate == today
	})
	if err != nil {
		return nil, err
	}
	return sortByStart(out, false), nil
}

// ListExpiredNew returns every new appointment whose response deadline
// passed before now.
func (r *Repository) ListExpiredNew(ctx context.Context, now time.Time) ([]domain.Appointment, error) {
	return r.query(ctx, "list_expired_new", func(a domain.Appointment) bool {
		return a.Status == domain.StatusNew && a.ResponseDeadline != nil && now.After(*a.ResponseDeadline)
	})
}

func (r *Repository) CountByStatus(ctx context.Context, userID string) (map[domain.AppointmentStatus]int, error) {
	appts, err := r.query(ctx, "count_by_status", func(a domain.Appointment) bool {
		return a.UserID == userID
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.AppointmentStatus]int, len(domain.Statuses))
	for _, s := range domain.Statuses {
		counts[s] = 0
	}
	for _, a := range appts {
		counts[a.Status]++
	}
	return counts, nil
}

// startOf returns the appointment's start instant in the repository's
// location. A missing start time counts as midnight.
func (r *Repository) startOf(a domain.Appointment) (time.Time, bool) {
	day, err := domain.ParseDate(a.StartDate, r.loc)
	if err != nil {
		return time.Time{}, false
	}
	if a.StartTime == "" {
		return day, true
	}
	minutes, err := domain.ParseClock(a.StartTime)
	if err != nil {
		return time.Time{}, false
	}
	return day.Add(time.Duration(minutes) * time.Minute), true
}

func sortByStart(in []domain.Appointment, desc bool) []domain.Appointment {
	sort.SliceStable(in, func(i, j int) bool {
		a, b := in[i], in[j]
		if a.StartDate != b.StartDate {
			return (a.StartDate < b.StartDate) != desc
		}
		if a.StartTime != b.StartTime {
			return (a.StartTime < b.StartTime) != desc
		}
		return false
	})
	return in
}
