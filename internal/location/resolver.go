// =============================================================================
// Settlement Export - Location Resolver
// =============================================================================
//
// Maps (order city, order state) pairs from the report to a country and a
// full state name.
//
// RESOLUTION ORDER:
//   1. Override table for cities the geocoder cannot place
//   2. Two-letter state codes: ISO 3166-2:US subdivision table
//   3. Geocoder query "{city}, {state}" (structured address first, then the
//      positional display-name heuristic)
//
// Lookups never fail the run. An unresolved pair yields an empty Location
// and an *UnresolvedError for the caller to log and count.
//
// =============================================================================

package location

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ginjaninja78/settlement-export/internal/logger"
	"github.com/ginjaninja78/settlement-export/internal/types"
)

// DefaultWorkers is the batch lookup concurrency.
const DefaultWorkers = 10

// UnresolvedError reports a (city, state) pair with no country or state.
type UnresolvedError struct {
	City  string
	State string
	Cause error
}

func (e *UnresolvedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("location %q, %q unresolved: %v", e.City, e.State, e.Cause)
	}
	return fmt.Sprintf("location %q, %q unresolved", e.City, e.State)
}

func (e *UnresolvedError) Unwrap() error { return e.Cause }

// Resolver resolves locations and caches results for the life of the value.
type Resolver struct {
	geocoder Geocoder
	log      logger.Logger
	workers  int
	timeout  time.Duration

	mu    sync.Mutex
	cache map[types.LocationKey]types.Location
}

// Options configures a Resolver.
type Options struct {
	// Geocoder is the network fallback. Nil disables it.
	Geocoder Geocoder

	// Workers bounds concurrent lookups in ResolveBatch. Default: 10
	Workers int

	// LookupTimeout is the deadline for a single geocoder call. Default: 10s
	LookupTimeout time.Duration
}

// NewResolver creates a resolver.
func NewResolver(opts Options, log logger.Logger) *Resolver {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}
	return &Resolver{
		geocoder: opts.Geocoder,
		log:      log,
		workers:  opts.Workers,
		timeout:  opts.LookupTimeout,
		cache:    make(map[types.LocationKey]types.Location),
	}
}

// Resolve returns the location of one (city, state code) pair.
func (r *Resolver) Resolve(ctx context.Context, city, state string) (types.Location, error) {
	key := types.LocationKey{City: city, State: state}

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		if !cached.Resolved {
			return cached, &UnresolvedError{City: city, State: state}
		}
		return cached, nil
	}

	loc, err := r.resolve(ctx, city, state)

	// Cancellation says nothing about the pair itself.
	if !errors.Is(err, context.Canceled) {
		r.mu.Lock()
		r.cache[key] = loc
		r.mu.Unlock()
	}
	return loc, err
}

func (r *Resolver) resolve(ctx context.Context, city, state string) (types.Location, error) {
	if country, name, ok := lookupOverride(city, state); ok {
		return types.Location{Country: country, State: name, Resolved: true}, nil
	}

	if city == "" && state == "" {
		return types.Location{}, &UnresolvedError{City: city, State: state}
	}

	twoLetter := len(state) == 2
	if twoLetter {
		if country, name, ok := lookupSubdivision(state); ok {
			return types.Location{Country: country, State: name, Resolved: true}, nil
		}
	}

	if r.geocoder == nil {
		return types.Location{}, &UnresolvedError{City: city, State: state}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	place, err := r.geocoder.Geocode(lookupCtx, city+", "+state)
	if err != nil {
		return types.Location{}, &UnresolvedError{City: city, State: state, Cause: err}
	}
	if place == nil {
		return types.Location{}, &UnresolvedError{City: city, State: state}
	}

	parsedState, parsedCountry := BestEffortParse(place.DisplayName)
	country := firstNonEmpty(place.Address.Country, parsedCountry)

	// A full state name in the report is kept as is; only codes are expanded.
	resolvedState := state
	if twoLetter {
		resolvedState = firstNonEmpty(place.Address.State, parsedState)
	}

	if country == "" && resolvedState == "" {
		return types.Location{}, &UnresolvedError{City: city, State: state}
	}
	return types.Location{Country: country, State: resolvedState, Resolved: true}, nil
}

// ResolveBatch resolves every distinct pair in keys using a bounded pool of
// workers. Duplicate pairs share one lookup. The returned map holds an entry
// for every distinct pair (empty Location when unresolved); unresolved pairs
// are also returned in sorted order.
func (r *Resolver) ResolveBatch(ctx context.Context, keys []types.LocationKey) (map[types.LocationKey]types.Location, []types.LocationKey) {
	unique := make([]types.LocationKey, 0, len(keys))
	seen := make(map[types.LocationKey]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			unique = append(unique, k)
		}
	}

	// Each worker writes only its own job's slot.
	results := make([]types.Location, len(unique))
	jobs := make(chan int)

	workers := r.workers
	if workers > len(unique) {
		workers = len(unique)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				k := unique[i]
				loc, err := r.Resolve(ctx, k.City, k.State)
				if err != nil {
					r.log.Warn("%v", err)
				}
				results[i] = loc
			}
		}()
	}

	for i := range unique {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	resolved := make(map[types.LocationKey]types.Location, len(unique))
	var unresolved []types.LocationKey
	for i, k := range unique {
		resolved[k] = results[i]
		if !results[i].Resolved {
			unresolved = append(unresolved, k)
		}
	}

	sort.Slice(unresolved, func(i, j int) bool {
		if unresolved[i].City != unresolved[j].City {
			return unresolved[i].City < unresolved[j].City
		}
		return unresolved[i].State < unresolved[j].State
	})

	r.log.Info("Resolved %d of %d distinct locations (%d workers)",
		len(unique)-len(unresolved), len(unique), workers)

	return resolved, unresolved
}

// Enrich sets Location on every row from a ResolveBatch result.
func Enrich(table *types.Table, resolved map[types.LocationKey]types.Location) {
	for i := range table.Rows {
		table.Rows[i].Location = resolved[KeyOf(table.Rows[i])]
	}
}

// KeyOf returns the location key of a record.
func KeyOf(r types.Record) types.LocationKey {
	return types.LocationKey{City: r.Value(types.ColOrderCity), State: r.Value(types.ColOrderState)}
}

// Keys returns the location key of every row.
func Keys(table *types.Table) []types.LocationKey {
	keys := make([]types.LocationKey, len(table.Rows))
	for i, r := range table.Rows {
		keys[i] = KeyOf(r)
	}
	return keys
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
