package timeseries

import "time"

// Granularity selects the bucket size of a stored or queried series
type Granularity int

const (
	Hourly Granularity = iota
	Daily
	Weekly
	Monthly
)

// String returns the string value of Granularity
func (g Granularity) String() string {
	switch g {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	}
	return "unknown"
}

// MonthStart truncates t to the first hour of its calendar month, UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonth returns the first hour of the following calendar month
func NextMonth(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}

// HoursInMonth returns the number of hours in t's calendar month
func HoursInMonth(t time.Time) int {
	start := MonthStart(t)
	return int(NextMonth(t).Sub(start) / time.Hour)
}

// DaysInMonth returns the number of days in t's calendar month
func DaysInMonth(t time.Time) int {
	return HoursInMonth(t) / 24
}

// YearStart truncates t to the first day of its calendar year, UTC
func YearStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
}

// WeekAnchor returns the Monday 00:00 UTC on or before t. Week buckets
// anchor to Monday everywhere in the system.
func WeekAnchor(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// MonthsBetween returns the whole months from start to t, both month starts
func MonthsBetween(start, t time.Time) int {
	s := MonthStart(start)
	m := MonthStart(t)
	return (m.Year()-s.Year())*12 + int(m.Month()) - int(s.Month())
}

// WeeksBetween returns the whole weeks from the anchor at start to t
func WeeksBetween(start, t time.Time) int {
	return int(WeekAnchor(t).Sub(WeekAnchor(start)) / (7 * 24 * time.Hour))
}

// ConsolidateDaily sums each calendar day's hours per key. Slot i covers
// day i of the month the hourly data belongs to.
func ConsolidateDaily(hourly *ReadWriteData) *ReadWriteData {
	out := New()
	for hour := 0; hour < hourly.NumHours(); hour++ {
		day := hour / 24
		for tg, v := range hourly.Hour(hour) {
			if v != 0 {
				out.Add(day, tg, v)
			}
		}
	}
	// keep a slot for every day even when the tail carried no data
	if hourly.NumHours() > 0 {
		out.grow((hourly.NumHours() - 1) / 24)
	}
	return out
}

// ConsolidateMonthly sums the whole month into a single slot per key
func ConsolidateMonthly(hourly *ReadWriteData) *ReadWriteData {
	out := New()
	out.grow(0)
	for hour := 0; hour < hourly.NumHours(); hour++ {
		for tg, v := range hourly.Hour(hour) {
			if v != 0 {
				out.Add(0, tg, v)
			}
		}
	}
	return out
}
