package schedule

import (
	"context"
	"sort"
	"time"

	"carelink/backend/internal/domain"
)

const (
	DefaultSlotDays   = 14
	DefaultSlotLength = 2 * time.Hour
)

// Slot is one fixed-length candidate booking interval. BlockedBy names the
// type of the first entry overlapping an unavailable slot.
type Slot struct {
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
	Available bool             `json:"available"`
	BlockedBy domain.EntryType `json:"blocked_by,omitempty"`
}

type DaySlots struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

// FreeIntervals returns the caregiver's availability windows for the
// weekday of date minus the union of that date's entries.
func (l *Ledger) FreeIntervals(ctx context.Context, caregiverID, date string) ([]domain.Interval, error) {
	day, err := domain.ParseDate(date, l.loc)
	if err != nil {
		return nil, invalid("%v", err)
	}
	windows, err := l.ListAvailability(ctx, caregiverID)
	if err != nil {
		return nil, err
	}
	entries, err := l.ListByCaregiverAndDate(ctx, caregiverID, date)
	if err != nil {
		return nil, err
	}
	return subtractIntervals(windowsFor(windows, day.Weekday()), entryIntervals(entries)), nil
}

// AvailableSlots lays fixed-length slots over each day's windows starting
// at from, flagging those an entry overlaps. Days without a window are
// omitted.
func (l *Ledger) AvailableSlots(ctx context.Context, caregiverID, from string, days int, slotLength time.Duration) ([]DaySlots, error) {
	start, err := domain.ParseDate(from, l.loc)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if days <= 0 {
		days = DefaultSlotDays
	}
	step := int(slotLength / time.Minute)
	if step <= 0 {
		step = int(DefaultSlotLength / time.Minute)
	}

	windows, err := l.ListAvailability(ctx, caregiverID)
	if err != nil {
		return nil, err
	}
	entries, err := l.ListByCaregiver(ctx, caregiverID)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string][]domain.ScheduleEntry)
	for _, e := range entries {
		byDate[e.Date] = append(byDate[e.Date], e)
	}

	var out []DaySlots
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		date := domain.FormatDate(day)
		var slots []Slot
		for _, w := range windowsFor(windows, day.Weekday()) {
			for s := w.Start; s+step <= w.End; s += step {
				slot := domain.Interval{Start: s, End: s + step}
				blocker, blocked := firstOverlap(byDate[date], slot)
				sl := Slot{
					StartTime: domain.FormatClock(slot.Start),
					EndTime:   domain.FormatClock(slot.End),
					Available: !blocked,
				}
				if blocked {
					sl.BlockedBy = blocker.Type
				}
				slots = append(slots, sl)
			}
		}
		if len(slots) > 0 {
			out = append(out, DaySlots{Date: date, Slots: slots})
		}
	}
	return out, nil
}

func firstOverlap(entries []domain.ScheduleEntry, iv domain.Interval) (domain.ScheduleEntry, bool) {
	for _, e := range entries {
		eiv, err := e.Interval()
		if err != nil {
			continue
		}
		if eiv.Overlaps(iv) {
			return e, true
		}
	}
	return domain.ScheduleEntry{}, false
}

func entryIntervals(entries []domain.ScheduleEntry) []domain.Interval {
	out := make([]domain.Interval, 0, len(entries))
	for _, e := range entries {
		iv, err := e.Interval()
		if err != nil || iv.End <= iv.Start {
			continue
		}
		out = append(out, iv)
	}
	return out
}

// mergeIntervals returns the sorted union of in. Touching intervals merge.
func mergeIntervals(in []domain.Interval) []domain.Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := append([]domain.Interval(nil), in...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := []domain.Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// subtractIntervals removes the union of busy from free.
func subtractIntervals(free, busy []domain.Interval) []domain.Interval {
	busy = mergeIntervals(busy)
	var out []domain.Interval
	for _, f := range mergeIntervals(free) {
		cur := f.Start
		for _, b := range busy {
			if b.End <= cur || b.Start >= f.End {
				continue
			}
			if b.Start > cur {
				out = append(out, domain.Interval{Start: cur, End: b.Start})
			}
			if b.End > cur {
				cur = b.End
			}
		}
		if cur < f.End {
			out = append(out, domain.Interval{Start: cur, End: f.End})
		}
	}
	return out
}
