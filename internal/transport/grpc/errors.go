package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"carelink/backend/internal/booking"
	"carelink/backend/internal/domain"
	"carelink/backend/internal/schedule"
	"carelink/backend/internal/service/appointments"
	"carelink/backend/internal/store"
)

const errorDomain = "carelink.app"

func withInfo(code codes.Code, msg, reason string, md map[string]string) error {
	st := status.New(code, msg)
	if detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain, Metadata: md}); err == nil {
		return detailed.Err()
	}
	return st.Err()
}

// argumentRules are caller mistakes; every other rule is a state the
// booking is in.
var argumentRules = map[appointments.Rule]bool{
	appointments.RuleRequiredField:        true,
	appointments.RuleInvalidValue:         true,
	appointments.RuleReasonRequired:       true,
	appointments.RuleCheckInEvidence:      true,
	appointments.RuleConfirmationRequired: true,
}

// toStatus maps service and store errors onto gRPC codes. Structured
// failures carry an ErrorInfo naming the rule; storage failures only a
// retryable message.
func toStatus(ctx context.Context, log *slog.Logger, op string, err error) error {
	var vErr *appointments.ValidationError
	var tErr *appointments.IncompleteTasksError
	var cErr *appointments.ConflictError
	var oErr *schedule.OverlapError

	switch {
	case errors.As(err, &vErr):
		log.WarnContext(ctx, "rejected", slog.String("op", op), slog.String("rule", string(vErr.Rule)), slog.Any("err", err))
		code := codes.FailedPrecondition
		if argumentRules[vErr.Rule] {
			code = codes.InvalidArgument
		}
		return withInfo(code, vErr.Error(), string(vErr.Rule), nil)
	case errors.As(err, &tErr):
		ids := make([]string, 0, len(tErr.Tasks))
		for _, t := range tErr.Tasks {
			ids = append(ids, t.ID)
		}
		log.InfoContext(ctx, "completion blocked", slog.String("op", op), slog.Any("task_ids", ids))
		return withInfo(codes.FailedPrecondition, tErr.Error(), "required_tasks_incomplete",
			map[string]string{"task_ids": strings.Join(ids, ",")})
	case errors.As(err, &cErr):
		log.InfoContext(ctx, "check-in conflict", slog.String("op", op), slog.String("conflicting_appointment_id", cErr.AppointmentID))
		return withInfo(codes.Aborted, cErr.Error(), "in_progress_conflict", map[string]string{
			"appointment_id": cErr.AppointmentID,
			"contact_name":   cErr.ContactName,
			"address":        cErr.Address,
		})
	case errors.As(err, &oErr):
		log.InfoContext(ctx, "slot taken", slog.String("op", op), slog.String("entry_id", oErr.Entry.ID))
		return withInfo(codes.Aborted, "That time is already taken on the caregiver's calendar. Pick a different slot.",
			"slot_taken", map[string]string{"entry_id": oErr.Entry.ID, "entry_type": string(oErr.Entry.Type)})
	case errors.Is(err, booking.ErrTerminalStatus):
		log.InfoContext(ctx, "rejected", slog.String("op", op), slog.String("rule", "terminal_status"), slog.Any("err", err))
		return withInfo(codes.FailedPrecondition, "This booking is already closed and can no longer change.", "terminal_status", nil)
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.InfoContext(ctx, "idempotency conflict", slog.String("op", op))
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different booking. Try again.")
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrConflict):
		log.InfoContext(ctx, "write conflict", slog.String("op", op), slog.Any("err", err))
		return status.Error(codes.Aborted, "The booking changed while you were editing it. Reload and try again.")
	case errors.Is(err, schedule.ErrInvalidEntry), errors.Is(err, domain.ErrInvalidDate), errors.Is(err, domain.ErrInvalidClock):
		log.WarnContext(ctx, "invalid request", slog.String("op", op), slog.Any("err", err))
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		log.InfoContext(ctx, "not found", slog.String("op", op), slog.Any("err", err))
		return status.Error(codes.NotFound, "booking not found")
	case errors.Is(err, store.ErrStorage):
		log.ErrorContext(ctx, "storage unavailable", slog.String("op", op), slog.Any("err", err))
		return status.Error(codes.Unavailable, "Bookings are temporarily unavailable. Try again shortly.")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	default:
		log.ErrorContext(ctx, "request failed", slog.String("op", op), slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}
