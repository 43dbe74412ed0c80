// Package schedule spreads content items across future days and daily
// time slots.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidQuota      = errors.New("daily quota must be positive")
	ErrInsufficientSlots = errors.New("fewer daily time slots than the daily quota")
	ErrInvalidSlot       = errors.New("invalid daily time slot")
)

// Immediately is the sentinel used for items that are published right away.
var Immediately time.Time

// IsImmediate reports whether t is the publish-now sentinel.
func IsImmediate(t time.Time) bool { return t.IsZero() }

// Request describes how to distribute ItemCount items.
type Request struct {
	ItemCount      int
	DailyQuota     int
	DailyTimes     []string // "HH:MM", wall clock in now's location
	StartDayOffset int
}

// Slot is a parsed "HH:MM" wall-clock time.
type Slot struct {
	Hour, Minute int
}

func (s Slot) String() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

// ParseSlot parses "HH:MM" (a bare hour "H" is accepted as well).
func ParseSlot(v string) (Slot, error) {
	v = strings.TrimSpace(v)
	h, m, found := strings.Cut(v, ":")
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, v)
	}
	minute := 0
	if found {
		minute, err = strconv.Atoi(m)
		if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
			return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, v)
		}
	}
	return Slot{Hour: hour, Minute: minute}, nil
}

// Calculate returns ItemCount timestamps. Each day's first DailyQuota slots
// are filled in the order given before moving on to the next day; the first
// day is StartDayOffset days after now's calendar date.
//
// Slots are used in the given order, so unsorted slots yield a
// non-ascending sequence within a day.
func Calculate(now time.Time, req Request) ([]time.Time, error) {
	if req.ItemCount <= 0 {
		return nil, nil
	}
	if req.DailyQuota <= 0 {
		return nil, ErrInvalidQuota
	}
	if len(req.DailyTimes) < req.DailyQuota {
		return nil, fmt.Errorf("%w: quota %d, %d slots", ErrInsufficientSlots, req.DailyQuota, len(req.DailyTimes))
	}
	slots := make([]Slot, req.DailyQuota)
	for i := range slots {
		s, err := ParseSlot(req.DailyTimes[i])
		if err != nil {
			return nil, err
		}
		slots[i] = s
	}

	loc := now.Location()
	y, mo, d := now.Date()
	out := make([]time.Time, 0, req.ItemCount)
	for i := 0; i < req.ItemCount; i++ {
		day := req.StartDayOffset + i/req.DailyQuota
		s := slots[i%req.DailyQuota]
		out = append(out, time.Date(y, mo, d+day, s.Hour, s.Minute, 0, 0, loc))
	}
	return out, nil
}

// Plan is Calculate when enabled, otherwise ItemCount publish-now sentinels.
func Plan(enabled bool, now time.Time, req Request) ([]time.Time, error) {
	if !enabled {
		if req.ItemCount <= 0 {
			return nil, nil
		}
		return make([]time.Time, req.ItemCount), nil
	}
	return Calculate(now, req)
}
