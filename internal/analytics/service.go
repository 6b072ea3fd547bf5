package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Snapshot is one consistent read of the ledger.
type Snapshot struct {
	Products []ProductSnapshot
	History  Dataset
}

// Repository loads the raw rows the aggregator reduces.
type Repository interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Query selects a summary window. From and To apply to custom windows only.
type Query struct {
	Window Window
	From   string
	To     string
}

// Dashboard bundles the three standard windows.
type Dashboard struct {
	Today     Summary `json:"today"`
	Yesterday Summary `json:"yesterday"`
	All       Summary `json:"all"`
}

// Config tunes the analytics service.
type Config struct {
	Location *time.Location
	Clock    func() time.Time
}

// Service coordinates analytics query execution with the cache layer.
type Service struct {
	repo  Repository
	cache *Cache
	loc   *time.Location
	now   func() time.Time
	group singleflight.Group
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache, cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, cache: cache, loc: loc, now: clock}
}

// Location returns the zone day boundaries are computed in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Summary resolves q to a range and returns its aggregated metrics, served
// from cache when the ledger has not changed since the last computation.
func (s *Service) Summary(ctx context.Context, q Query) (Summary, error) {
	window := q.Window
	if window == "" {
		window = WindowAll
	}
	rng, err := Resolve(window, s.now(), s.loc, q.From, q.To)
	if err != nil {
		return Summary{}, err
	}
	cache := s.cache
	key, err := cache.BuildKey(ctx, keySummary(window, rng))
	if err != nil {
		// redis unreachable: compute uncached
		key, cache = keySummary(window, rng), nil
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		var summary Summary
		loader := func(ctx context.Context) (any, error) {
			return s.compute(ctx, window, rng)
		}
		if err := cache.FetchJSON(ctx, key, &summary, loader); err != nil {
			return Summary{}, err
		}
		return summary, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return result.(Summary), nil
}

// Dashboard computes today, yesterday and all-time summaries concurrently.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var out Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.Summary(gctx, Query{Window: WindowToday})
		out.Today = summary
		return err
	})
	g.Go(func() error {
		summary, err := s.Summary(gctx, Query{Window: WindowYesterday})
		out.Yesterday = summary
		return err
	})
	g.Go(func() error {
		summary, err := s.Summary(gctx, Query{Window: WindowAll})
		out.All = summary
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

// Invalidate drops every cached summary.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) compute(ctx context.Context, window Window, rng Range) (Summary, error) {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("analytics: load snapshot: %w", err)
	}
	summary := Aggregate(snap.Products, snap.History.Within(rng), snap.History)
	summary.Window = window
	summary.From, summary.To = rng.Days()
	summary.GeneratedAt = s.now().In(s.loc)
	return summary, nil
}
