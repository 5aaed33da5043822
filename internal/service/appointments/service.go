// Package appointments is the booking lifecycle engine: it validates every
// status transition, persists it and then announces it.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"carelink/backend/internal/domain"
	"carelink/backend/internal/notify"
	"carelink/backend/internal/store"
)

type Repository interface {
	Create(ctx context.Context, appt domain.Appointment) (string, error)
	GetByID(ctx context.Context, id string) (domain.Appointment, bool, error)
	Update(ctx context.Context, id string, expectedVersion int64, fn func(*domain.Appointment) error) (domain.Appointment, bool, error)
	Release(ctx context.Context, id string, expectedVersion int64, fn func(*domain.Appointment) error) (domain.Appointment, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Appointment, error)
	ListByCaregiver(ctx context.Context, caregiverID string) ([]domain.Appointment, error)
	ListByStatus(ctx context.Context, userID string, status domain.AppointmentStatus) ([]domain.Appointment, error)
	ListByDateRange(ctx context.Context, userID, startDate, endDate string) ([]domain.Appointment, error)
	ListUpcoming(ctx context.Context, userID string) ([]domain.Appointment, error)
	ListPast(ctx context.Context, userID string) ([]domain.Appointment, error)
	ListToday(ctx context.Context, userID string) ([]domain.Appointment, error)
	ListExpiredNew(ctx context.Context, now time.Time) ([]domain.Appointment, error)
	CountByStatus(ctx context.Context, userID string) (map[domain.AppointmentStatus]int, error)
}

const expiredReason = "response deadline expired"

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type Service struct {
	repo     Repository
	notifier *notify.Notifier
	policy   Policy
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(repo Repository, notifier *notify.Notifier, policy Policy, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: notifier,
		policy:   policy.withDefaults(),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "appointments"))
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

type CreateInput struct {
	UserID           string
	CaregiverID      string
	ElderlyProfileID string
	BookingType      domain.BookingType
	PackageType      string
	StartDate        string
	EndDate          string
	StartTime        string
	EndTime          string
	Duration         string
	WorkLocation     string
	Contact          domain.Contact
	Tasks            []domain.Task
	Notes            string
	TotalAmount      float64
	PaymentMethod    string
	IdempotencyKey   string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	appt, err := s.buildAppointment(in)
	if err != nil {
		return domain.Appointment{}, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Appointment{}, validationError(RuleInvalidValue, "idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("carelink:create_appointment:"+appt.UserID+":"+key)).String()
		if existing, ok, err := s.repo.GetByID(ctx, appt.ID); err != nil {
			return domain.Appointment{}, err
		} else if ok {
			return replay(existing, appt)
		}
	}

	id, err := s.repo.Create(ctx, appt)
	if err != nil {
		if key != "" && errors.Is(err, store.ErrConflict) {
			if existing, ok, getErr := s.repo.GetByID(ctx, appt.ID); getErr == nil && ok {
				return replay(existing, appt)
			}
		}
		return domain.Appointment{}, err
	}

	created, ok, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !ok {
		return domain.Appointment{}, fmt.Errorf("%w: appointment %s vanished after create", store.ErrNotFound, id)
	}
	s.logger.InfoContext(ctx, "appointment created",
		slog.String("appointment_id", created.ID),
		slog.String("caregiver_id", created.CaregiverID),
		slog.String("status", string(created.Status)),
	)
	return created, nil
}

// replay returns the stored appointment when a retried create carries the
// same request, and ErrIdempotencyConflict when the key was reused for a
// different one.
func replay(existing, requested domain.Appointment) (domain.Appointment, error) {
	if existing.UserID != requested.UserID ||
		existing.CaregiverID != requested.CaregiverID ||
		existing.BookingType != requested.BookingType ||
		existing.StartDate != requested.StartDate ||
		existing.StartTime != requested.StartTime ||
		existing.EndTime != requested.EndTime {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (s *Service) buildAppointment(in CreateInput) (domain.Appointment, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.Appointment{}, validationError(RuleRequiredField, "user_id is required")
	}
	if strings.TrimSpace(in.CaregiverID) == "" {
		return domain.Appointment{}, validationError(RuleRequiredField, "caregiver_id is required")
	}

	bookingType := in.BookingType
	if bookingType == "" {
		bookingType = domain.BookingScheduled
	}
	if bookingType != domain.BookingScheduled && bookingType != domain.BookingImmediate {
		return domain.Appointment{}, validationError(RuleInvalidValue, "unknown booking_type")
	}

	startDay, err := domain.ParseDate(in.StartDate, s.policy.Location)
	if err != nil {
		return domain.Appointment{}, validationError(RuleInvalidValue, "start_date must be YYYY-MM-DD")
	}
	endDate := ""
	if strings.TrimSpace(in.EndDate) != "" {
		endDay, err := domain.ParseDate(in.EndDate, s.policy.Location)
		if err != nil {
			return domain.Appointment{}, validationError(RuleInvalidValue, "end_date must be YYYY-MM-DD")
		}
		if endDay.Before(startDay) {
			return domain.Appointment{}, validationError(RuleInvalidValue, "end_date must not be before start_date")
		}
		endDate = domain.FormatDate(endDay)
	}

	if strings.TrimSpace(in.StartTime) == "" {
		return domain.Appointment{}, validationError(RuleRequiredField, "start_time is required")
	}
	start, err := domain.ParseClock(in.StartTime)
	if err != nil {
		return domain.Appointment{}, validationError(RuleInvalidValue, "start_time must be HH:MM")
	}
	endTime := ""
	if strings.TrimSpace(in.EndTime) != "" {
		end, err := domain.ParseClock(in.EndTime)
		if err != nil {
			return domain.Appointment{}, validationError(RuleInvalidValue, "end_time must be HH:MM")
		}
		if end <= start {
			return domain.Appointment{}, validationError(RuleInvalidValue, "end_time must be after start_time")
		}
		endTime = domain.FormatClock(end)
	}

	tasks := make([]domain.Task, 0, len(in.Tasks))
	for _, t := range in.Tasks {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return domain.Appointment{}, validationError(RuleRequiredField, "task name is required")
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		tasks = append(tasks, t)
	}

	appt := domain.Appointment{
		UserID:           strings.TrimSpace(in.UserID),
		CaregiverID:      strings.TrimSpace(in.CaregiverID),
		ElderlyProfileID: in.ElderlyProfileID,
		BookingType:      bookingType,
		PackageType:      in.PackageType,
		StartDate:        domain.FormatDate(startDay),
		EndDate:          endDate,
		StartTime:        domain.FormatClock(start),
		EndTime:          endTime,
		Duration:         in.Duration,
		WorkLocation:     in.WorkLocation,
		Contact:          in.Contact,
		Tasks:            tasks,
		Notes:            in.Notes,
		TotalAmount:      in.TotalAmount,
		PaymentStatus:    domain.PaymentPending,
		PaymentMethod:    in.PaymentMethod,
	}

	if bookingType == domain.BookingImmediate {
		appt.Status = domain.StatusConfirmed
		return appt, nil
	}

	deadline, err := s.policy.ResponseDeadline(appt.StartDate)
	if err != nil {
		return domain.Appointment{}, validationError(RuleInvalidValue, "start_date must be YYYY-MM-DD")
	}
	if s.now().After(deadline) {
		return domain.Appointment{}, validationError(RuleResponseDeadlineExpired,
			fmt.Sprintf("scheduled requests must start at least %d days after today", s.policy.ResponseWindowDays))
	}
	appt.Status = domain.StatusNew
	appt.ResponseDeadline = &deadline
	return appt, nil
}

func (s *Service) load(ctx context.Context, id string) (domain.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Appointment{}, validationError(RuleRequiredField, "appointment_id is required")
	}
	appt, ok, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !ok {
		return domain.Appointment{}, fmt.Errorf("%w: appointment %s", store.ErrNotFound, id)
	}
	return appt, nil
}

func (s *Service) expired(appt domain.Appointment, now time.Time) bool {
	return appt.Status == domain.StatusNew && appt.ResponseDeadline != nil && now.After(*appt.ResponseDeadline)
}

// Get returns the appointment, cancelling it first when its response
// deadline has passed.
func (s *Service) Get(ctx context.Context, id string) (domain.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if s.expired(appt, s.now()) {
		return s.expire(ctx, appt)
	}
	return appt, nil
}

// expire system-cancels a new appointment whose deadline passed. A
// concurrent writer that got there first wins; its state is returned.
func (s *Service) expire(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	updated, ok, err := s.repo.Release(ctx, appt.ID, appt.Version, func(a *domain.Appointment) error {
		a.Status = domain.StatusCancelled
		a.CancelReason = expiredReason
		return nil
	})
	if errors.Is(err, store.ErrVersionConflict) {
		return s.load(ctx, appt.ID)
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	if !ok {
		return domain.Appointment{}, fmt.Errorf("%w: appointment %s", store.ErrNotFound, appt.ID)
	}
	s.logger.InfoContext(ctx, "appointment expired",
		slog.String("appointment_id", appt.ID),
		slog.Time("response_deadline", *appt.ResponseDeadline),
	)
	s.publish(appt, updated, domain.ActorSystem)
	return updated, nil
}

// ExpireOverdue cancels every new appointment past its response deadline
// and returns how many it cancelled.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.repo.ListExpiredNew(ctx, now)
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, appt := range overdue {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		updated, err := s.expire(ctx, appt)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", appt.ID, err))
			continue
		}
		if updated.Status == domain.StatusCancelled && updated.CancelReason == expiredReason {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// expireOverdueFor cancels the overdue new appointments that match before a
// read, so listings never show a request whose deadline already passed.
func (s *Service) expireOverdueFor(ctx context.Context, match func(domain.Appointment) bool) error {
	overdue, err := s.repo.ListExpiredNew(ctx, s.now())
	if err != nil {
		return err
	}
	for _, appt := range overdue {
		if !match(appt) {
			continue
		}
		if _, err := s.expire(ctx, appt); err != nil {
			return fmt.Errorf("expire %s: %w", appt.ID, err)
		}
	}
	return nil
}

func forUser(userID string) func(domain.Appointment) bool {
	return func(a domain.Appointment) bool { return a.UserID == userID }
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Appointment, error) {
	if err := s.expireOverdueFor(ctx, forUser(userID)); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListByCaregiver(ctx context.Context, caregiverID string) ([]domain.Appointment, error) {
	match := func(a domain.Appointment) bool { return a.CaregiverID == caregiverID }
	if err := s.expireOverdueFor(ctx, match); err != nil {
		return nil, err
	}
	return s.repo.ListByCaregiver(ctx, caregiverID)
}

func (s *Service) ListByStatus(ctx context.Context, userID string, status domain.AppointmentStatus) ([]domain.Appointment, error) {
	if err := s.expireOverdueFor(ctx, forUser(userID)); err != nil {
		return nil, err
	}
	return s.repo.ListByStatus(ctx, userID, status)
}

func (s *Service) ListByDateRange(ctx context.Context, userID, startDate, endDate string) ([]domain.Appointment, error) {
	if err := s.expireOverdueFor(ctx, forUser(userID)); err != nil {
		return nil, err
	}
	return s.repo.ListByDateRange(ctx, userID, startDate, endDate)
}

func (s *Service) ListUpcoming(ctx context.Context, userID string) ([]domain.Appointment, error) {
	if err := s.expireOverdueFor(ctx, forUser(userID)); err != nil {
		return nil, err
	}
	return s.repo.ListUpcoming(ctx, userID)
}

func (s *Service) ListPast(ctx context.Context, userID string) ([]domain.Appointment, error) {
	if err := s.expireOverdueFor(ctx, forUser(userID)); err != nil {
		return nil, err
	}
	return s.repo.ListPast(ctx, userID)
}

func (s *Service) ListToday(ctx context.Context, userID string) ([]domain.Appointment, error) {
	if err := s.expireOverdueFor(ctx, forUser(userID)); err != nil {
		return nil, err
	}
	return s.repo.ListToday(ctx, userID)
}

// CountByStatus counts a user's appointments per status after expiring the
// overdue ones.
func (s *Service) CountByStatus(ctx context.Context, userID string) (map[domain.AppointmentStatus]int, error) {
	if err := s.expireOverdueFor(ctx, forUser(userID)); err != nil {
		return nil, err
	}
	return s.repo.CountByStatus(ctx, userID)
}

func requireOpen(appt domain.Appointment) error {
	if appt.Status.Terminal() {
		return validationError(RuleTerminalStatus, fmt.Sprintf("appointment is %s", appt.Status))
	}
	return nil
}

func invalidTransition(appt domain.Appointment, event string) error {
	return validationError(RuleInvalidTransition, fmt.Sprintf("cannot %s an appointment that is %s", event, appt.Status))
}

// respond checks the shared preconditions of accept and reject. An expired
// request is cancelled on the way out.
func (s *Service) respond(ctx context.Context, id, event string) (domain.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := requireOpen(appt); err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status != domain.StatusNew {
		return domain.Appointment{}, invalidTransition(appt, event)
	}
	if s.expired(appt, s.now()) {
		if _, err := s.expire(ctx, appt); err != nil {
			return domain.Appointment{}, err
		}
		return domain.Appointment{}, validationError(RuleResponseDeadlineExpired,
			"response deadline has passed; the request has been cancelled")
	}
	return appt, nil
}

func (s *Service) Accept(ctx context.Context, id string) (domain.Appointment, error) {
	appt, err := s.respond(ctx, id, "accept")
	if err != nil {
		return domain.Appointment{}, err
	}
	updated, err := s.update(ctx, appt, func(a *domain.Appointment) error {
		a.Status = domain.StatusPending
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.publish(appt, updated, domain.ActorCaregiver)
	return updated, nil
}

func (s *Service) Reject(ctx context.Context, id, reason string) (domain.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Appointment{}, validationError(RuleReasonRequired, "reason is required")
	}
	appt, err := s.respond(ctx, id, "reject")
	if err != nil {
		return domain.Appointment{}, err
	}
	updated, err := s.release(ctx, appt, func(a *domain.Appointment) error {
		a.Status = domain.StatusRejected
		a.RejectReason = reason
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.publish(appt, updated, domain.ActorCaregiver)
	return updated, nil
}

type CheckInInput struct {
	AppointmentID string
	ImageURI      string
	CapturedAt    time.Time
}

type CheckInResult struct {
	Appointment domain.Appointment
	// Conflict is set when the check-in went ahead in advisory mode next to
	// another household's in-progress appointment.
	Conflict *ConflictError
}

func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (CheckInResult, error) {
	if strings.TrimSpace(in.ImageURI) == "" || in.CapturedAt.IsZero() {
		return CheckInResult{}, validationError(RuleCheckInEvidence, "check-in requires a photo and its capture time")
	}
	appt, err := s.load(ctx, in.AppointmentID)
	if err != nil {
		return CheckInResult{}, err
	}
	if err := requireOpen(appt); err != nil {
		return CheckInResult{}, err
	}
	if appt.Status != domain.StatusPending && appt.Status != domain.StatusConfirmed {
		return CheckInResult{}, invalidTransition(appt, "check in")
	}

	conflict, err := s.startConflict(ctx, appt)
	if err != nil {
		return CheckInResult{}, err
	}
	if conflict != nil {
		if s.policy.ConflictMode == ConflictBlocking {
			return CheckInResult{}, conflict
		}
		s.logger.WarnContext(ctx, "check-in alongside another household",
			slog.String("appointment_id", appt.ID),
			slog.String("caregiver_id", appt.CaregiverID),
			slog.String("conflicting_appointment_id", conflict.AppointmentID),
		)
	}

	capturedAt := in.CapturedAt.UTC()
	updated, err := s.update(ctx, appt, func(a *domain.Appointment) error {
		a.Status = domain.StatusInProgress
		a.CheckedInAt = &capturedAt
		a.CheckInImageURI = strings.TrimSpace(in.ImageURI)
		return nil
	})
	if err != nil {
		return CheckInResult{}, err
	}
	s.publish(appt, updated, domain.ActorCaregiver)
	return CheckInResult{Appointment: updated, Conflict: conflict}, nil
}

// CheckStartConflict reports the in-progress appointment, if any, that
// starting id would run alongside for a different household.
func (s *Service) CheckStartConflict(ctx context.Context, id string) (*ConflictError, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.startConflict(ctx, appt)
}

func (s *Service) startConflict(ctx context.Context, appt domain.Appointment) (*ConflictError, error) {
	if appt.CaregiverID == "" {
		return nil, nil
	}
	others, err := s.repo.ListByCaregiver(ctx, appt.CaregiverID)
	if err != nil {
		return nil, err
	}
	address := domain.NormalizeAddress(appt.WorkLocation)
	for _, other := range others {
		if other.ID == appt.ID || other.Status != domain.StatusInProgress {
			continue
		}
		if other.Contact.SameAs(appt.Contact) && domain.NormalizeAddress(other.WorkLocation) == address {
			continue
		}
		return &ConflictError{
			AppointmentID: other.ID,
			ContactName:   other.Contact.Name,
			Address:       other.WorkLocation,
		}, nil
	}
	return nil, nil
}

// Complete finishes an in-progress appointment. confirmed carries the
// caller's explicit confirmation.
func (s *Service) Complete(ctx context.Context, id string, confirmed bool) (domain.Appointment, error) {
	if !confirmed {
		return domain.Appointment{}, validationError(RuleConfirmationRequired, "completion must be confirmed")
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := requireOpen(appt); err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status != domain.StatusInProgress {
		return domain.Appointment{}, invalidTransition(appt, "complete")
	}
	if missing := appt.IncompleteRequiredTasks(); len(missing) > 0 {
		return domain.Appointment{}, &IncompleteTasksError{Tasks: missing}
	}

	now := s.now().UTC()
	updated, err := s.update(ctx, appt, func(a *domain.Appointment) error {
		a.Status = domain.StatusCompleted
		a.CompletedAt = &now
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.publish(appt, updated, domain.ActorCaregiver)
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id, reason string, actor domain.Actor) (domain.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Appointment{}, validationError(RuleReasonRequired, "reason is required")
	}
	if actor == "" {
		actor = domain.ActorRequester
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := requireOpen(appt); err != nil {
		return domain.Appointment{}, err
	}
	switch appt.Status {
	case domain.StatusPending, domain.StatusConfirmed, domain.StatusInProgress:
	default:
		return domain.Appointment{}, invalidTransition(appt, "cancel")
	}
	ok, err := s.policy.CanCancel(appt.StartDate, s.now())
	if err != nil {
		return domain.Appointment{}, validationError(RuleInvalidValue, "appointment has no valid start_date")
	}
	if !ok {
		return domain.Appointment{}, validationError(RuleCancellationWindow,
			fmt.Sprintf("appointments can only be cancelled at least %d days before the start date", s.policy.CancelWindowDays))
	}

	updated, err := s.release(ctx, appt, func(a *domain.Appointment) error {
		a.Status = domain.StatusCancelled
		a.CancelReason = reason
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.publish(appt, updated, actor)
	return updated, nil
}

// Delete removes the appointment and its calendar entry. Deletion is not a
// status change and is not published.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationError(RuleRequiredField, "appointment_id is required")
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: appointment %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *Service) AddNote(ctx context.Context, id, author, content string) (domain.Appointment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Appointment{}, validationError(RuleRequiredField, "note content is required")
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	note := domain.Note{
		ID:        uuid.NewString(),
		Author:    strings.TrimSpace(author),
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	return s.update(ctx, appt, func(a *domain.Appointment) error {
		a.NoteEntries = append(a.NoteEntries, note)
		return nil
	})
}

// ToggleTask flips the completion flag of one task. Tasks of a closed
// appointment are frozen.
func (s *Service) ToggleTask(ctx context.Context, id, taskID string) (domain.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := requireOpen(appt); err != nil {
		return domain.Appointment{}, err
	}
	idx := -1
	for i, t := range appt.Tasks {
		if t.ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Appointment{}, fmt.Errorf("%w: task %s on appointment %s", store.ErrNotFound, taskID, id)
	}
	return s.update(ctx, appt, func(a *domain.Appointment) error {
		a.Tasks = append([]domain.Task(nil), a.Tasks...)
		a.Tasks[idx].Completed = !a.Tasks[idx].Completed
		return nil
	})
}

// update writes fn against the version appt was read at.
func (s *Service) update(ctx context.Context, appt domain.Appointment, fn func(*domain.Appointment) error) (domain.Appointment, error) {
	updated, ok, err := s.repo.Update(ctx, appt.ID, appt.Version, fn)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !ok {
		return domain.Appointment{}, fmt.Errorf("%w: appointment %s", store.ErrNotFound, appt.ID)
	}
	return updated, nil
}

func (s *Service) release(ctx context.Context, appt domain.Appointment, fn func(*domain.Appointment) error) (domain.Appointment, error) {
	updated, ok, err := s.repo.Release(ctx, appt.ID, appt.Version, fn)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !ok {
		return domain.Appointment{}, fmt.Errorf("%w: appointment %s", store.ErrNotFound, appt.ID)
	}
	return updated, nil
}

func (s *Service) publish(before, after domain.Appointment, actor domain.Actor) {
	if s.notifier == nil || before.Status == after.Status {
		return
	}
	s.notifier.Publish(domain.StatusChange{
		AppointmentID: after.ID,
		CaregiverID:   after.CaregiverID,
		UserID:        after.UserID,
		From:          before.Status,
		To:            after.Status,
		Actor:         actor,
		At:            after.UpdatedAt,
	})
}
