package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/rta_backend/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonthsClamped(t *testing.T) {
	cases := []struct {
		from   time.Time
		n      int
		anchor int
		want   time.Time
	}{
		{day(2024, time.January, 31), 1, 31, day(2024, time.February, 29)},
		{day(2023, time.January, 31), 1, 31, day(2023, time.February, 28)},
		{day(2024, time.February, 29), 1, 31, day(2024, time.March, 31)},
		{day(2024, time.November, 30), 3, 30, day(2025, time.February, 28)},
		{day(2024, time.December, 15), 1, 15, day(2025, time.January, 15)},
		{day(2024, time.March, 31), -1, 31, day(2024, time.February, 29)},
	}
	for _, c := range cases {
		if got := models.AddMonthsClamped(c.from, c.n, c.anchor); !got.Equal(c.want) {
			t.Fatalf("AddMonthsClamped(%s, %d, %d) = %s, want %s", c.from.Format(models.DateLayout), c.n, c.anchor, got.Format(models.DateLayout), c.want.Format(models.DateLayout))
		}
	}
}

func TestParseFinancialYear(t *testing.T) {
	for _, label := range []string{"2023-24", "2023-2024", " 2023-24 "} {
		r, err := models.ParseFinancialYear(label)
		if err != nil {
			t.Fatalf("ParseFinancialYear(%q): %v", label, err)
		}
		if !r.From.Equal(day(2023, time.April, 1)) || !r.To.Equal(day(2024, time.March, 31)) {
			t.Fatalf("ParseFinancialYear(%q) = %s..%s", label, r.From, r.To)
		}
	}
	if r, err := models.ParseFinancialYear("1999-00"); err != nil || r.To.Year() != 2000 {
		t.Fatalf("century rollover: %v %v", r, err)
	}
	for _, label := range []string{"", "2023", "2023-25", "2023-2025", "abcd-ef", "2023-024"} {
		if _, err := models.ParseFinancialYear(label); !errors.Is(err, models.ErrInvalidFinancialYear) {
			t.Fatalf("ParseFinancialYear(%q) err = %v", label, err)
		}
	}
}

func TestDateRangeAndHoldingDays(t *testing.T) {
	r := models.DateRange{From: day(2023, time.April, 1), To: day(2024, time.March, 31)}
	if !r.Contains(time.Date(2024, time.March, 31, 18, 30, 0, 0, time.UTC)) {
		t.Fatalf("range should include the whole last day")
	}
	if r.Contains(day(2023, time.March, 31)) || r.Contains(day(2024, time.April, 1)) {
		t.Fatalf("range should exclude days outside it")
	}
	if got := models.HoldingDays(day(2023, time.January, 1), day(2024, time.January, 1)); got != 365 {
		t.Fatalf("HoldingDays = %d, want 365", got)
	}
	if got := models.HoldingDays(day(2024, time.January, 1), time.Date(2024, time.January, 2, 23, 0, 0, 0, time.UTC)); got != 1 {
		t.Fatalf("HoldingDays ignores time of day, got %d", got)
	}
}
