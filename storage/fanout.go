package storage

import (
	"context"
	"errors"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"company-tasks-api/domain"
)

// DefaultFanOutLimit caps in-flight per-company task fetches.
const DefaultFanOutLimit = 100

// TaskSource is the subset of the remote client the aggregator needs.
type TaskSource interface {
	ListCompanies(ctx context.Context, userID string) ([]domain.Company, error)
	ListCompanyTasks(ctx context.Context, userID, companyID string) ([]domain.Task, error)
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	Limit   int
	Logger  *log.Logger
	Metrics *Metrics
}

// Aggregator answers per-user listings that need more than one remote call,
// memoized through a ResponseCache.
type Aggregator struct {
	src     TaskSource
	cache   ResponseCache
	limit   int
	logger  *log.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewAggregator wires a source and a cache. A nil cache disables caching.
func NewAggregator(src TaskSource, cache ResponseCache, opts AggregatorOptions) *Aggregator {
	if opts.Limit <= 0 {
		opts.Limit = DefaultFanOutLimit
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	return &Aggregator{
		src:     src,
		cache:   cache,
		limit:   opts.Limit,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  otel.Tracer("company-tasks-api/storage"),
	}
}

// ListCompanies is the cached company listing.
func (a *Aggregator) ListCompanies(ctx context.Context, userID string) ([]domain.Company, error) {
	key := companiesCacheKey(userID)
	var cached []domain.Company
	if a.cache.Get(ctx, key, &cached) {
		a.metrics.cacheLookup("companies", true)
		return nonNilCompanies(cached), nil
	}
	a.metrics.cacheLookup("companies", false)

	companies, err := a.src.ListCompanies(ctx, userID)
	if err != nil {
		return nil, err
	}
	companies = nonNilCompanies(companies)
	a.cache.Put(ctx, key, companies)
	return companies, nil
}

// ListAllTasks flattens the tasks of every company the user owns. Each
// per-company fetch is isolated: a failure contributes no tasks and is never
// surfaced. Results keep company-list order, then per-company order.
func (a *Aggregator) ListAllTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	key := tasksCacheKey(userID)
	var cached []domain.Task
	if a.cache.Get(ctx, key, &cached) {
		a.metrics.cacheLookup("tasks", true)
		return nonNilTasks(cached), nil
	}
	a.metrics.cacheLookup("tasks", false)

	ctx, span := a.tracer.Start(ctx, "storage.ListAllTasks")
	defer span.End()

	companies, err := a.src.ListCompanies(ctx, userID)
	if err != nil {
		if isAbsenceClass(err) {
			return []domain.Task{}, nil
		}
		span.RecordError(err)
		return nil, err
	}
	if len(companies) == 0 {
		span.SetAttributes(attribute.Int("fanout.companies", 0))
		a.cache.Put(ctx, key, []domain.Task{})
		return []domain.Task{}, nil
	}

	a.metrics.fanout()
	results := make([][]domain.Task, len(companies))
	var failed atomic.Int64

	// In-flight branches are not cancelled when the caller goes away; each
	// one is bounded by the client timeout instead.
	branchCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(a.limit)
	for i, company := range companies {
		g.Go(func() error {
			tasks, err := a.src.ListCompanyTasks(branchCtx, userID, company.ID)
			if err != nil {
				failed.Add(1)
				a.metrics.branchFailed()
				a.logger.WithFields(log.Fields{
					"user_id":    userID,
					"company_id": company.ID,
					"error":      err.Error(),
				}).Warn("company task fetch failed")
				return nil
			}
			results[i] = tasks
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, r := range results {
		total += len(r)
	}
	all := make([]domain.Task, 0, total)
	for _, r := range results {
		all = append(all, r...)
	}

	span.SetAttributes(
		attribute.Int("fanout.companies", len(companies)),
		attribute.Int("fanout.tasks", len(all)),
		attribute.Int64("fanout.failed", failed.Load()),
	)
	a.cache.Put(ctx, key, all)
	return all, nil
}

func isAbsenceClass(err error) bool {
	return errors.Is(err, domain.ErrUnauthenticated) || errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrNotFound)
}

func nonNilCompanies(c []domain.Company) []domain.Company {
	if c == nil {
		return []domain.Company{}
	}
	return c
}

func nonNilTasks(t []domain.Task) []domain.Task {
	if t == nil {
		return []domain.Task{}
	}
	return t
}
