package models

import (
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped moves from by n calendar months, landing on anchorDay or
// on the last day of the target month when it is shorter.
func AddMonthsClamped(from time.Time, n int, anchorDay int) time.Time {
	y, m, _ := from.Date()
	total := int(m) - 1 + n
	ty := y + total/12
	tm := total % 12
	if tm < 0 {
		tm += 12
		ty--
	}
	month := time.Month(tm + 1)
	day := anchorDay
	if last := daysIn(ty, month); day > last {
		day = last
	}
	return time.Date(ty, month, day, 0, 0, 0, 0, time.UTC)
}

// HoldingDays counts whole calendar days between two dates.
func HoldingDays(from, to time.Time) int {
	return int(DateOnly(to).Sub(DateOnly(from)).Hours() / 24)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(DateOnly(r.From)) && !d.After(DateOnly(r.To))
}

// ParseFinancialYear parses an Indian financial year label such as "2023-24"
// or "2023-2024" into April 1 .. March 31.
func ParseFinancialYear(label string) (DateRange, error) {
	parts := strings.Split(strings.TrimSpace(label), "-")
	if len(parts) != 2 {
		return DateRange{}, ValidationError(ErrInvalidFinancialYear, "%q", label)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil || start < 1900 || start > 9999 {
		return DateRange{}, ValidationError(ErrInvalidFinancialYear, "%q", label)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return DateRange{}, ValidationError(ErrInvalidFinancialYear, "%q", label)
	}
	switch len(parts[1]) {
	case 2:
		if end != (start+1)%100 {
			return DateRange{}, ValidationError(ErrInvalidFinancialYear, "%q", label)
		}
	case 4:
		if end != start+1 {
			return DateRange{}, ValidationError(ErrInvalidFinancialYear, "%q", label)
		}
	default:
		return DateRange{}, ValidationError(ErrInvalidFinancialYear, "%q", label)
	}
	return DateRange{
		From: time.Date(start, time.April, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(start+1, time.March, 31, 0, 0, 0, 0, time.UTC),
	}, nil
}
