package schedule

import (
	"context"
	"sort"
	"strings"
	"time"

	"carelink/backend/internal/domain"
)

const (
	defaultDayStart = "09:00"
	defaultDayEnd   = "17:00"
)

type WindowInput struct {
	CaregiverID string
	DayOfWeek   int
	StartTime   string
	EndTime     string
	IsActive    bool
}

func normalizeWindow(in WindowInput) (domain.AvailabilityWindow, error) {
	caregiverID := strings.TrimSpace(in.CaregiverID)
	if caregiverID == "" {
		return domain.AvailabilityWindow{}, invalid("caregiver_id is required")
	}
	if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
		return domain.AvailabilityWindow{}, invalid("day_of_week must be between 0 and 6")
	}
	iv, err := domain.ParseInterval(in.StartTime, in.EndTime)
	if err != nil {
		return domain.AvailabilityWindow{}, invalid("%v", err)
	}
	if iv.End <= iv.Start {
		return domain.AvailabilityWindow{}, invalid("end_time must be after start_time")
	}
	return domain.AvailabilityWindow{
		CaregiverID: caregiverID,
		DayOfWeek:   in.DayOfWeek,
		StartTime:   domain.FormatClock(iv.Start),
		EndTime:     domain.FormatClock(iv.End),
		IsActive:    in.IsActive,
	}, nil
}

func (l *Ledger) CreateAvailability(ctx context.Context, in WindowInput) (domain.AvailabilityWindow, error) {
	w, err := normalizeWindow(in)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	return l.windows.Create(ctx, w)
}

// UpdateAvailability replaces the window's schedule fields. The caregiver
// of an existing window cannot change.
func (l *Ledger) UpdateAvailability(ctx context.Context, id string, in WindowInput) (domain.AvailabilityWindow, bool, error) {
	w, err := normalizeWindow(in)
	if err != nil {
		return domain.AvailabilityWindow{}, false, err
	}
	return l.windows.UpdateFunc(ctx, id, 0, func(cur *domain.AvailabilityWindow) error {
		if cur.CaregiverID != w.CaregiverID {
			return invalid("window %s belongs to another caregiver", id)
		}
		cur.DayOfWeek = w.DayOfWeek
		cur.StartTime = w.StartTime
		cur.EndTime = w.EndTime
		cur.IsActive = w.IsActive
		return nil
	})
}

func (l *Ledger) DeleteAvailability(ctx context.Context, id string) (bool, error) {
	return l.windows.Delete(ctx, id)
}

// ListAvailability returns the caregiver's active windows ordered by day
// and start time.
func (l *Ledger) ListAvailability(ctx context.Context, caregiverID string) ([]domain.AvailabilityWindow, error) {
	out, err := l.windows.Query(ctx, func(w domain.AvailabilityWindow) bool {
		return w.CaregiverID == caregiverID && w.IsActive
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

// SetDefaultAvailability replaces the caregiver's windows with Monday to
// Friday, 09:00 to 17:00.
func (l *Ledger) SetDefaultAvailability(ctx context.Context, caregiverID string) ([]domain.AvailabilityWindow, error) {
	caregiverID = strings.TrimSpace(caregiverID)
	if caregiverID == "" {
		return nil, invalid("caregiver_id is required")
	}
	defaults := make([]domain.AvailabilityWindow, 0, 5)
	for day := time.Monday; day <= time.Friday; day++ {
		defaults = append(defaults, domain.AvailabilityWindow{
			CaregiverID: caregiverID,
			DayOfWeek:   int(day),
			StartTime:   defaultDayStart,
			EndTime:     defaultDayEnd,
			IsActive:    true,
		})
	}
	return l.windows.ReplaceWhere(ctx, func(w domain.AvailabilityWindow) bool {
		return w.CaregiverID == caregiverID
	}, defaults)
}

func windowsFor(windows []domain.AvailabilityWindow, day time.Weekday) []domain.Interval {
	var out []domain.Interval
	for _, w := range windows {
		if !w.AppliesTo(day) {
			continue
		}
		iv, err := w.Interval()
		if err != nil || iv.End <= iv.Start {
			continue
		}
		out = append(out, iv)
	}
	return mergeIntervals(out)
}

// IsAvailable reports whether [start, end) on date lies inside one active
// window and overlaps no calendar entry.
func (l *Ledger) IsAvailable(ctx context.Context, caregiverID, date, start, end string) (bool, error) {
	day, err := domain.ParseDate(date, l.loc)
	if err != nil {
		return false, invalid("%v", err)
	}
	want, err := domain.ParseInterval(start, end)
	if err != nil {
		return false, invalid("%v", err)
	}
	if want.End <= want.Start {
		return false, invalid("end_time must be after start_time")
	}

	windows, err := l.ListAvailability(ctx, caregiverID)
	if err != nil {
		return false, err
	}
	inside := false
	for _, iv := range windowsFor(windows, day.Weekday()) {
		if iv.Contains(want) {
			inside = true
			break
		}
	}
	if !inside {
		return false, nil
	}

	entries, err := l.ListByCaregiverAndDate(ctx, caregiverID, date)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		iv, err := e.Interval()
		if err != nil {
			continue
		}
		if iv.Overlaps(want) {
			return false, nil
		}
	}
	return true, nil
}
