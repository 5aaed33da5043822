package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"carelink/backend/internal/domain"
	"carelink/backend/internal/schedule"
	"carelink/backend/internal/service/appointments"
)

type bookingService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Get(ctx context.Context, id string) (domain.Appointment, error)
	Accept(ctx context.Context, id string) (domain.Appointment, error)
	Reject(ctx context.Context, id, reason string) (domain.Appointment, error)
	CheckIn(ctx context.Context, in appointments.CheckInInput) (appointments.CheckInResult, error)
	Complete(ctx context.Context, id string, confirmed bool) (domain.Appointment, error)
	Cancel(ctx context.Context, id, reason string, actor domain.Actor) (domain.Appointment, error)
	Delete(ctx context.Context, id string) error
	AddNote(ctx context.Context, id, author, content string) (domain.Appointment, error)
	ToggleTask(ctx context.Context, id, taskID string) (domain.Appointment, error)
}

type bookingQueries interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Appointment, error)
	ListByCaregiver(ctx context.Context, caregiverID string) ([]domain.Appointment, error)
	ListByStatus(ctx context.Context, userID string, status domain.AppointmentStatus) ([]domain.Appointment, error)
	ListByDateRange(ctx context.Context, userID, startDate, endDate string) ([]domain.Appointment, error)
	ListUpcoming(ctx context.Context, userID string) ([]domain.Appointment, error)
	ListPast(ctx context.Context, userID string) ([]domain.Appointment, error)
	ListToday(ctx context.Context, userID string) ([]domain.Appointment, error)
	CountByStatus(ctx context.Context, userID string) (map[domain.AppointmentStatus]int, error)
}

type slotFinder interface {
	AvailableSlots(ctx context.Context, caregiverID, from string, days int, slotLength time.Duration) ([]schedule.DaySlots, error)
}

type BookingsServer struct {
	svc     bookingService
	queries bookingQueries
	slots   slotFinder
	log     *slog.Logger
}

func NewBookingsServer(svc bookingService, queries bookingQueries, slots slotFinder, log *slog.Logger) *BookingsServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingsServer{
		svc:     svc,
		queries: queries,
		slots:   slots,
		log:     log.With(slog.String("component", "grpc.bookings")),
	}
}

// decode copies the Struct's JSON shape into dst.
func decode(req *structpb.Struct, dst any) error {
	if req == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	b, err := req.MarshalJSON()
	if err != nil {
		return status.Error(codes.InvalidArgument, "request is not valid JSON")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

type appointmentResponse struct {
	Appointment domain.Appointment `json:"appointment"`
}

type idRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (r idRequest) validate() error {
	if strings.TrimSpace(r.AppointmentID) == "" {
		return status.Error(codes.InvalidArgument, "appointment_id is required")
	}
	return nil
}

type createBookingRequest struct {
	UserID           string             `json:"user_id"`
	CaregiverID      string             `json:"caregiver_id"`
	ElderlyProfileID string             `json:"elderly_profile_id"`
	BookingType      domain.BookingType `json:"booking_type"`
	PackageType      string             `json:"package_type"`
	StartDate        string             `json:"start_date"`
	EndDate          string             `json:"end_date"`
	StartTime        string             `json:"start_time"`
	EndTime          string             `json:"end_time"`
	Duration         string             `json:"duration"`
	WorkLocation     string             `json:"work_location"`
	Contact          domain.Contact     `json:"contact"`
	Tasks            []domain.Task      `json:"tasks"`
	Notes            string             `json:"notes"`
	TotalAmount      float64            `json:"total_amount"`
	PaymentMethod    string             `json:"payment_method"`
}

func (s *BookingsServer) CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in createBookingRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	appt, err := s.svc.Create(ctx, appointments.CreateInput{
		UserID:           in.UserID,
		CaregiverID:      in.CaregiverID,
		ElderlyProfileID: in.ElderlyProfileID,
		BookingType:      in.BookingType,
		PackageType:      in.PackageType,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		Duration:         in.Duration,
		WorkLocation:     in.WorkLocation,
		Contact:          in.Contact,
		Tasks:            in.Tasks,
		Notes:            in.Notes,
		TotalAmount:      in.TotalAmount,
		PaymentMethod:    in.PaymentMethod,
		IdempotencyKey:   idempotencyKey(ctx),
	})
	if err != nil {
		return nil, toStatus(ctx, s.log, "CreateBooking", err)
	}
	s.log.InfoContext(ctx, "booking created",
		slog.String("appointment_id", appt.ID),
		slog.String("user_id", appt.UserID),
		slog.String("status", string(appt.Status)),
	)
	return encode(appointmentResponse{Appointment: appt})
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *BookingsServer) GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	appt, err := s.svc.Get(ctx, in.AppointmentID)
	if err != nil {
		return nil, toStatus(ctx, s.log, "GetBooking", err)
	}
	return encode(appointmentResponse{Appointment: appt})
}

type listBookingsRequest struct {
	UserID      string                   `json:"user_id"`
	CaregiverID string                   `json:"caregiver_id"`
	View        string                   `json:"view"`
	Status      domain.AppointmentStatus `json:"status"`
	StartDate   string                   `json:"start_date"`
	EndDate     string                   `json:"end_date"`
}

type listBookingsResponse struct {
	Appointments []domain.Appointment              `json:"appointments"`
	Counts       map[domain.AppointmentStatus]int `json:"counts,omitempty"`
}

// ListBookings lists by caregiver when only caregiver_id is given, and
// otherwise narrows the user's bookings by status, date range or view
// (upcoming, past, today).
func (s *BookingsServer) ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in listBookingsRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}

	if in.UserID == "" {
		if in.CaregiverID == "" {
			return nil, status.Error(codes.InvalidArgument, "user_id or caregiver_id is required")
		}
		appts, err := s.queries.ListByCaregiver(ctx, in.CaregiverID)
		if err != nil {
			return nil, toStatus(ctx, s.log, "ListBookings", err)
		}
		return encode(listBookingsResponse{Appointments: nonNil(appts)})
	}

	var appts []domain.Appointment
	var err error
	switch {
	case in.Status != "":
		if !in.Status.Valid() {
			return nil, status.Error(codes.InvalidArgument, "unknown status")
		}
		appts, err = s.queries.ListByStatus(ctx, in.UserID, in.Status)
	case in.StartDate != "" || in.EndDate != "":
		if in.StartDate == "" || in.EndDate == "" {
			return nil, status.Error(codes.InvalidArgument, "start_date and end_date are required together")
		}
		appts, err = s.queries.ListByDateRange(ctx, in.UserID, in.StartDate, in.EndDate)
	default:
		switch in.View {
		case "", "all":
			appts, err = s.queries.ListByUser(ctx, in.UserID)
		case "upcoming":
			appts, err = s.queries.ListUpcoming(ctx, in.UserID)
		case "past":
			appts, err = s.queries.ListPast(ctx, in.UserID)
		case "today":
			appts, err = s.queries.ListToday(ctx, in.UserID)
		default:
			return nil, status.Error(codes.InvalidArgument, "view must be one of all, upcoming, past, today")
		}
	}
	if err != nil {
		return nil, toStatus(ctx, s.log, "ListBookings", err)
	}

	counts, err := s.queries.CountByStatus(ctx, in.UserID)
	if err != nil {
		return nil, toStatus(ctx, s.log, "ListBookings", err)
	}

	s.log.DebugContext(ctx, "bookings listed",
		slog.String("user_id", in.UserID),
		slog.Int("count", len(appts)),
	)
	return encode(listBookingsResponse{Appointments: nonNil(appts), Counts: counts})
}

func nonNil(appts []domain.Appointment) []domain.Appointment {
	if appts == nil {
		return []domain.Appointment{}
	}
	return appts
}

func (s *BookingsServer) AcceptBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	appt, err := s.svc.Accept(ctx, in.AppointmentID)
	if err != nil {
		return nil, toStatus(ctx, s.log, "AcceptBooking", err)
	}
	return encode(appointmentResponse{Appointment: appt})
}

type reasonRequest struct {
	AppointmentID string       `json:"appointment_id"`
	Reason        string       `json:"reason"`
	Actor         domain.Actor `json:"actor"`
}

func (s *BookingsServer) RejectBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in reasonRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := (idRequest{AppointmentID: in.AppointmentID}).validate(); err != nil {
		return nil, err
	}
	appt, err := s.svc.Reject(ctx, in.AppointmentID, in.Reason)
	if err != nil {
		return nil, toStatus(ctx, s.log, "RejectBooking", err)
	}
	return encode(appointmentResponse{Appointment: appt})
}

type checkInRequest struct {
	AppointmentID string `json:"appointment_id"`
	ImageURI      string `json:"image_uri"`
	CapturedAt    string `json:"captured_at"`
}

type checkInResponse struct {
	Appointment domain.Appointment `json:"appointment"`
	Conflict    *conflictJSON      `json:"conflict,omitempty"`
}

type conflictJSON struct {
	AppointmentID string `json:"appointment_id"`
	ContactName   string `json:"contact_name"`
	Address       string `json:"address"`
}

func (s *BookingsServer) CheckInBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in checkInRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := (idRequest{AppointmentID: in.AppointmentID}).validate(); err != nil {
		return nil, err
	}
	var capturedAt time.Time
	if in.CapturedAt != "" {
		t, err := time.Parse(time.RFC3339, in.CapturedAt)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "captured_at must be RFC 3339")
		}
		capturedAt = t
	}

	res, err := s.svc.CheckIn(ctx, appointments.CheckInInput{
		AppointmentID: in.AppointmentID,
		ImageURI:      in.ImageURI,
		CapturedAt:    capturedAt,
	})
	if err != nil {
		return nil, toStatus(ctx, s.log, "CheckInBooking", err)
	}
	out := checkInResponse{Appointment: res.Appointment}
	if res.Conflict != nil {
		out.Conflict = &conflictJSON{
			AppointmentID: res.Conflict.AppointmentID,
			ContactName:   res.Conflict.ContactName,
			Address:       res.Conflict.Address,
		}
	}
	return encode(out)
}

type completeRequest struct {
	AppointmentID string `json:"appointment_id"`
	Confirmed     bool   `json:"confirmed"`
}

func (s *BookingsServer) CompleteBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in completeRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := (idRequest{AppointmentID: in.AppointmentID}).validate(); err != nil {
		return nil, err
	}
	appt, err := s.svc.Complete(ctx, in.AppointmentID, in.Confirmed)
	if err != nil {
		return nil, toStatus(ctx, s.log, "CompleteBooking", err)
	}
	return encode(appointmentResponse{Appointment: appt})
}

func (s *BookingsServer) CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in reasonRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := (idRequest{AppointmentID: in.AppointmentID}).validate(); err != nil {
		return nil, err
	}
	switch in.Actor {
	case "", domain.ActorRequester, domain.ActorCaregiver:
	default:
		return nil, status.Error(codes.InvalidArgument, "actor must be requester or caregiver")
	}
	appt, err := s.svc.Cancel(ctx, in.AppointmentID, in.Reason, in.Actor)
	if err != nil {
		return nil, toStatus(ctx, s.log, "CancelBooking", err)
	}
	return encode(appointmentResponse{Appointment: appt})
}

func (s *BookingsServer) DeleteBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.svc.Delete(ctx, in.AppointmentID); err != nil {
		return nil, toStatus(ctx, s.log, "DeleteBooking", err)
	}
	s.log.InfoContext(ctx, "booking deleted", slog.String("appointment_id", in.AppointmentID))
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

type addNoteRequest struct {
	AppointmentID string `json:"appointment_id"`
	Author        string `json:"author"`
	Content       string `json:"content"`
}

func (s *BookingsServer) AddNote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in addNoteRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := (idRequest{AppointmentID: in.AppointmentID}).validate(); err != nil {
		return nil, err
	}
	appt, err := s.svc.AddNote(ctx, in.AppointmentID, in.Author, in.Content)
	if err != nil {
		return nil, toStatus(ctx, s.log, "AddNote", err)
	}
	return encode(appointmentResponse{Appointment: appt})
}

type toggleTaskRequest struct {
	AppointmentID string `json:"appointment_id"`
	TaskID        string `json:"task_id"`
}

func (s *BookingsServer) ToggleTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in toggleTaskRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := (idRequest{AppointmentID: in.AppointmentID}).validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.TaskID) == "" {
		return nil, status.Error(codes.InvalidArgument, "task_id is required")
	}
	appt, err := s.svc.ToggleTask(ctx, in.AppointmentID, in.TaskID)
	if err != nil {
		return nil, toStatus(ctx, s.log, "ToggleTask", err)
	}
	return encode(appointmentResponse{Appointment: appt})
}

type freeSlotsRequest struct {
	CaregiverID string `json:"caregiver_id"`
	FromDate    string `json:"from_date"`
	Days        int    `json:"days"`
	SlotMinutes int    `json:"slot_minutes"`
}

type freeSlotsResponse struct {
	Days []schedule.DaySlots `json:"days"`
}

func (s *BookingsServer) FreeSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in freeSlotsRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.CaregiverID) == "" || strings.TrimSpace(in.FromDate) == "" {
		return nil, status.Error(codes.InvalidArgument, "caregiver_id and from_date are required")
	}
	if in.Days > 60 {
		return nil, status.Error(codes.InvalidArgument, "days must be at most 60")
	}
	days, err := s.slots.AvailableSlots(ctx, in.CaregiverID, in.FromDate, in.Days, time.Duration(in.SlotMinutes)*time.Minute)
	if err != nil {
		return nil, toStatus(ctx, s.log, "FreeSlots", err)
	}
	if days == nil {
		days = []schedule.DaySlots{}
	}
	return encode(freeSlotsResponse{Days: days})
}
