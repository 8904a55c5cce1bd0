// =============================================================================
// Settlement Export - Exchange Rate Resolver
// =============================================================================
//
// Fetches a currency's daily closing rate over a date range and fills the
// days the source does not quote (weekends, holidays).
//
// FILL POLICY:
//   For each required day in chronological order:
//     1. use the quoted rate when present
//     2. otherwise use the nearest preceding known rate
//     3. otherwise use the nearest following known rate
//     4. otherwise the day is absent from the result (never zero-filled)
//
// FAILURE POLICY:
//   Source errors are logged and surface as an empty table. An empty table
//   means "no exchange-rate data", never "rate zero".
//
// =============================================================================

package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ginjaninja78/settlement-export/internal/dateutil"
	"github.com/ginjaninja78/settlement-export/internal/logger"
)

// isoLayout is the date layout used by the rate source.
const isoLayout = "2006-01-02"

// RateTable maps a canonical date key ("dd-mm-yyyy") to a positive rate.
type RateTable map[string]float64

// Lookup returns the rate for a date key and whether it exists.
func (t RateTable) Lookup(key string) (float64, bool) {
	rate, ok := t[key]
	return rate, ok
}

// RateUnavailableError reports that the source produced nothing usable.
type RateUnavailableError struct {
	Base   string
	Target string
	Cause  error
}

// Error implements the error interface.
func (e *RateUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no exchange rates available for %s/%s: %v", e.Base, e.Target, e.Cause)
	}
	return fmt.Sprintf("no exchange rates available for %s/%s", e.Base, e.Target)
}

// Unwrap returns the underlying cause.
func (e *RateUnavailableError) Unwrap() error { return e.Cause }

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver combines a rate Source with the fill policy.
type Resolver struct {
	source Source
	logger logger.Logger
}

// NewResolver creates a Resolver. source may be nil when every organization
// uses a currency pegged to the target.
func NewResolver(source Source, log logger.Logger) *Resolver {
	return &Resolver{source: source, logger: log}
}

// FetchDailyRates returns the quoted closing rate for each requested day.
//
// PARAMETERS:
//   - base: The organization's currency (e.g. "CAD").
//   - target: The reporting currency (e.g. "USD").
//   - days: The requested days.
//
// RETURNS:
//   - A table keyed by "dd-mm-yyyy". Identical base and target give 1.0 for
//     every day without calling the source. Source failures give an empty table.
func (r *Resolver) FetchDailyRates(ctx context.Context, base, target string, days []time.Time) RateTable {
	rates, err := r.fetch(ctx, base, target, days)
	if err != nil {
		r.logger.Error("Failed to fetch %s/%s exchange rates: %v", base, target, err)
		return RateTable{}
	}
	return rates
}

// Resolve fetches rates for [start, end] and fills the gaps.
//
// RETURNS:
//   - The filled table.
//   - An *InvalidRangeError for a reversed range, or a *RateUnavailableError
//     (with an empty table) when the source gave nothing usable. Callers treat
//     the latter as non-fatal.
func (r *Resolver) Resolve(ctx context.Context, base, target string, start, end time.Time) (RateTable, error) {
	days, err := dateutil.ExpandRange(start, end)
	if err != nil {
		return nil, err
	}

	quoted, err := r.fetch(ctx, base, target, days)
	if err != nil {
		r.logger.Error("Failed to fetch %s/%s exchange rates: %v", base, target, err)
		return RateTable{}, &RateUnavailableError{Base: base, Target: target, Cause: err}
	}
	if len(quoted) == 0 {
		r.logger.Warn("Rate source returned no %s/%s quotes between %s and %s",
			base, target, dateutil.Key(start), dateutil.Key(end))
		return RateTable{}, &RateUnavailableError{Base: base, Target: target}
	}

	filled, missing := FillMissing(quoted, days)
	for _, key := range missing {
		r.logger.Warn("No available exchange rate for %s and no previous or next rate to use", key)
	}
	return filled, nil
}

func (r *Resolver) fetch(ctx context.Context, base, target string, days []time.Time) (RateTable, error) {
	rates := make(RateTable, len(days))
	if strings.EqualFold(base, target) {
		for _, d := range days {
			rates[dateutil.Key(d)] = 1.0
		}
		return rates, nil
	}

	if r.source == nil {
		return nil, fmt.Errorf("no rate source configured")
	}

	closes, err := r.source.DailyCloses(ctx, strings.ToUpper(base), strings.ToUpper(target))
	if err != nil {
		return nil, err
	}

	for _, d := range days {
		if rate, ok := closes[d.Format(isoLayout)]; ok {
			rates[dateutil.Key(d)] = rate
		}
	}
	return rates, nil
}

// =============================================================================
// FILL
// =============================================================================

// FillMissing assigns every required day a rate following the fill policy.
//
// PARAMETERS:
//   - rates: Known rates keyed by "dd-mm-yyyy".
//   - required: The days that need a rate, in any order.
//
// RETURNS:
//   - A new table; the input is not modified.
//   - The keys of days that received no rate, in chronological order.
func FillMissing(rates RateTable, required []time.Time) (RateTable, []string) {
	days := make([]time.Time, len(required))
	copy(days, required)
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	keys := dateutil.Keys(days)

	// Scan backward from each known day over the immediately prior gap.
	nextKnown := make(map[string]float64)
	for i, key := range keys {
		rate, ok := rates[key]
		if !ok {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if _, known := rates[keys[j]]; known {
				break
			}
			nextKnown[keys[j]] = rate
		}
	}

	filled := make(RateTable, len(keys))
	var missing []string
	var last float64
	haveLast := false

	for _, key := range keys {
		if rate, ok := rates[key]; ok {
			last, haveLast = rate, true
			filled[key] = rate
			continue
		}
		if haveLast {
			filled[key] = last
			continue
		}
		if rate, ok := nextKnown[key]; ok {
			filled[key] = rate
			continue
		}
		missing = append(missing, key)
	}
	return filled, missing
}
