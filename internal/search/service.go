// Package search answers broker searches through the shared cache and
// announces every completed search on the event bus.
package search

import (
	"context"
	"fmt"
	"log"
	"time"

	"brokerhub/core/internal/cache"
	"brokerhub/core/internal/events"
	"brokerhub/core/internal/types"
)

type Result struct {
	Query   Query          `json:"query"`
	Brokers []types.Broker `json:"brokers"`
	Cached  bool           `json:"cached"`
}

type Service struct {
	cache   *cache.Cache[[]types.Broker]
	fetcher Fetcher
	bus     *events.Bus
	ttl     time.Duration
}

// NewService wires a search service. bus may be nil, in which case searches
// are not announced.
func NewService(c *cache.Cache[[]types.Broker], f Fetcher, bus *events.Bus, ttl time.Duration) *Service {
	return &Service{cache: c, fetcher: f, bus: bus, ttl: ttl}
}

// Search returns brokers for q, from the cache when a live entry exists and
// from the fetcher otherwise. Fetch errors are returned wrapped and nothing
// is cached for them.
func (s *Service) Search(ctx context.Context, q Query) (Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		metricRequests.WithLabelValues("invalid").Inc()
		return Result{}, err
	}

	brokers, loaded, err := s.cache.GetOrLoad(ctx, q.Key(), func(ctx context.Context) ([]types.Broker, error) {
		start := time.Now()
		b, err := s.fetcher.FetchBrokers(ctx, q)
		metricFetchMS.Observe(float64(time.Since(start).Milliseconds()))
		return b, err
	}, s.ttl)
	if err != nil {
		metricRequests.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("search %q: %w", q.Text, err)
	}

	res := Result{Query: q, Brokers: brokers, Cached: !loaded}
	if res.Cached {
		metricRequests.WithLabelValues("hit").Inc()
	} else {
		metricRequests.WithLabelValues("miss").Inc()
	}
	s.announce(res)
	return res, nil
}

func (s *Service) announce(res Result) {
	if s.bus == nil {
		return
	}
	err := s.bus.Emit(events.ActionSearchUpdated, events.SearchUpdated{
		Query:       res.Query.Text,
		Filters:     res.Query.Filters,
		ResultCount: len(res.Brokers),
		Cached:      res.Cached,
	}, "search")
	if err != nil {
		log.Printf("[search] announce %q: %v", res.Query.Text, err)
	}
}

// Invalidate drops the cached result for q and reports whether one existed.
func (s *Service) Invalidate(q Query) bool {
	return s.cache.Delete(q.Normalize().Key())
}
