// =============================================================================
// Settlement Export - Date Range Utility
// =============================================================================
//
// Calendar helpers shared by the exchange-rate resolver, the report
// normalizer and the document writers.
//
// DATE KEY:
//   Every downstream join uses the day-month-year text key "dd-mm-yyyy"
//   (KeyLayout). Dates are always handled at day granularity in UTC.
//
// =============================================================================

package dateutil

import (
	"fmt"
	"strings"
	"time"
)

// KeyLayout is the canonical textual date key used for joins and file naming.
const KeyLayout = "02-01-2006"

// FormLayout is the ISO layout accepted from the CLI and the upload form.
const FormLayout = "2006-01-02"

// =============================================================================
// ERRORS
// =============================================================================

// InvalidRangeError is returned when a range starts after it ends.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

// Error implements the error interface.
func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: start %s is after end %s",
		e.Start.Format(FormLayout), e.End.Format(FormLayout))
}

// =============================================================================
// RANGE FUNCTIONS
// =============================================================================

// LastMonthBounds returns the first and last day of the month preceding now.
//
// PARAMETERS:
//   - now: The reference time. Callers pass time.Now(); tests pass fixed dates.
//
// RETURNS:
//   - The first day of the previous month (midnight UTC).
//   - The last day of the previous month (midnight UTC).
func LastMonthBounds(now time.Time) (time.Time, time.Time) {
	firstThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstThisMonth.AddDate(0, 0, -1)
	firstDay := time.Date(lastDay.Year(), lastDay.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstDay, lastDay
}

// ExpandRange returns every day from start to end inclusive, in order.
//
// RETURNS:
//   - The ordered daily sequence.
//   - An *InvalidRangeError if start is after end.
func ExpandRange(start, end time.Time) ([]time.Time, error) {
	start = Day(start)
	end = Day(end)
	if start.After(end) {
		return nil, &InvalidRangeError{Start: start, End: end}
	}

	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

// Day truncates t to midnight UTC on the same calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// KEY HELPERS
// =============================================================================

// Key formats a date as the canonical "dd-mm-yyyy" join key.
func Key(t time.Time) string {
	return t.Format(KeyLayout)
}

// Keys formats every date as a join key, preserving order.
func Keys(days []time.Time) []string {
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = Key(d)
	}
	return keys
}

// ParseKey parses a "dd-mm-yyyy" key back into a date.
func ParseKey(key string) (time.Time, error) {
	t, err := time.Parse(KeyLayout, strings.TrimSpace(key))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date key %q: %w", key, err)
	}
	return t, nil
}

// ParseFormDate parses a "yyyy-mm-dd" date from the CLI or the upload form.
func ParseFormDate(value string) (time.Time, error) {
	t, err := time.Parse(FormLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q (expected YYYY-MM-DD): %w", value, err)
	}
	return t, nil
}

// MonthAndYear returns the English month name and the four-digit year of a
// date key, used to name output files.
func MonthAndYear(key string) (string, string, error) {
	t, err := ParseKey(key)
	if err != nil {
		return "", "", err
	}
	return t.Month().String(), fmt.Sprintf("%04d", t.Year()), nil
}
