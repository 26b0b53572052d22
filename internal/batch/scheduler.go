// Package batch drives many leg/date searches against the upstream service
// with bounded concurrency, rotating proxies and session credentials across
// workers.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"farewatch/internal/fare"
	"farewatch/internal/proxypool"
	"farewatch/internal/sessionpool"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mazen160/go-random"
)

// SearchFunc runs a single leg query with the proxy and session its worker
// was assigned. Implemented by the avia client; injected so scheduler tests
// need no network.
type SearchFunc func(
	ctx context.Context,
	q fare.LegQuery,
	proxy *proxypool.Endpoint,
	session *sessionpool.Credential,
) (*fare.Offer, error)

type Options struct {
	// Concurrency is the size of each worker group. Defaults to 5.
	Concurrency int
	// SessionCount is how many credentials to acquire. Defaults to
	// Concurrency; workers share credentials when it is smaller.
	SessionCount int
	// PauseMin/PauseMax bound the randomized pause between groups, an
	// evasion of rate-based blocking. Zero PauseMax disables pausing.
	PauseMin time.Duration
	PauseMax time.Duration
	// QueryTimeout bounds each individual query.
	QueryTimeout time.Duration
	// ProbeTimeout bounds each proxy health probe.
	ProbeTimeout time.Duration
	// CacheTTL is how long identical leg/date lookups are answered from
	// cache instead of hitting the upstream again.
	CacheTTL time.Duration
}

// Stats summarizes one batch run for the reporting layer.
type Stats struct {
	Total     int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Scheduler owns the proxy and session pools for the lifetime of one batch
// run. Construct a fresh one per run.
type Scheduler struct {
	opts     Options
	proxies  *proxypool.Pool
	sessions *sessionpool.Pool
	search   SearchFunc
	cache    *expirable.LRU[string, fare.Offer]
}

func NewScheduler(
	opts Options,
	proxies *proxypool.Pool,
	sessions *sessionpool.Pool,
	search SearchFunc,
) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.SessionCount <= 0 {
		opts.SessionCount = opts.Concurrency
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 3 * time.Minute
	}
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 10 * time.Minute
	}

	return &Scheduler{
		opts:     opts,
		proxies:  proxies,
		sessions: sessions,
		search:   search,
		cache:    expirable.NewLRU[string, fare.Offer](1024, nil, opts.CacheTTL),
	}
}

// Run executes every query and returns offers in the exact order of the
// input, nil standing for both "failed" and "nothing found". Only a session
// pool that cannot produce a single credential is fatal; everything else
// degrades per query.
func (s *Scheduler) Run(ctx context.Context, queries []fare.LegQuery) ([]*fare.Offer, Stats, error) {
	started := time.Now()

	s.proxies.HealthCheck(ctx, s.opts.ProbeTimeout)

	_, err := s.sessions.Acquire(ctx, s.opts.SessionCount)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("session pool: %w", err)
	}

	results := make([]*fare.Offer, len(queries))
	var succeeded, failed atomic.Int64

	for groupStart := 0; groupStart < len(queries); groupStart += s.opts.Concurrency {
		groupEnd := groupStart + s.opts.Concurrency
		if groupEnd > len(queries) {
			groupEnd = len(queries)
		}

		var wg sync.WaitGroup
		for i := groupStart; i < groupEnd; i++ {
			wg.Add(1)
			worker := i - groupStart

			go func(idx, worker int) {
				defer wg.Done()

				offer, err := s.runQuery(ctx, queries[idx], worker)
				if err != nil {
					slog.WarnContext(ctx, "query failed",
						"origin", queries[idx].Origin,
						"destination", queries[idx].Destination,
						"date", queries[idx].Date,
						"err", err,
					)
					failed.Add(1)
					return
				}
				// indexed write preserves input order no matter how the
				// group's queries interleave
				results[idx] = offer
				succeeded.Add(1)
			}(i, worker)
		}
		wg.Wait()

		if groupEnd < len(queries) {
			s.pause(ctx)
		}
	}

	stats := Stats{
		Total:     len(queries),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Elapsed:   time.Since(started),
	}
	slog.InfoContext(ctx, "batch run finished",
		"total", stats.Total,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"elapsed", stats.Elapsed,
	)
	return results, stats, nil
}

func (s *Scheduler) runQuery(ctx context.Context, q fare.LegQuery, worker int) (offer *fare.Offer, err error) {
	// a panicking search must not take its sibling queries down with it
	defer func() {
		if r := recover(); r != nil {
			offer = nil
			err = fmt.Errorf("query panicked: %v", r)
		}
	}()

	key := cacheKey(q)
	if cached, hit := s.cache.Get(key); hit {
		return &cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	found, err := s.search(ctx, q, s.proxies.Next(), s.sessions.Assign(worker))
	if err != nil {
		return nil, err
	}
	if found != nil {
		s.cache.Add(key, *found)
	}
	return found, nil
}

func (s *Scheduler) pause(ctx context.Context) {
	if s.opts.PauseMax <= 0 {
		return
	}
	minMs := int(s.opts.PauseMin / time.Millisecond)
	maxMs := int(s.opts.PauseMax / time.Millisecond)
	ms, err := random.IntRange(minMs, maxMs+1)
	if err != nil {
		ms = maxMs
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
	}
}

func cacheKey(q fare.LegQuery) string {
	stops := "any"
	if q.Filters.MaxStops != nil {
		stops = fmt.Sprintf("%d", *q.Filters.MaxStops)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d.%d.%d|%s|%v|%s|%d",
		q.Origin, q.Destination, q.Date, q.ReturnDate,
		q.Passengers.Adults, q.Passengers.Children, q.Passengers.Infants,
		q.Filters.Airline, q.Filters.BaggageOnly, stops,
		q.Filters.MaxLayoverMinutes,
	)
}
