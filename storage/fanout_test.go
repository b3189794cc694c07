package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"company-tasks-api/domain"
)

type stubSource struct {
	companies    []domain.Company
	companiesErr error
	tasks        map[string][]domain.Task
	failing      map[string]error
	delay        time.Duration

	companyCalls atomic.Int64
	taskCalls    atomic.Int64
	inFlight     atomic.Int64
	maxInFlight  atomic.Int64
}

func (s *stubSource) ListCompanies(context.Context, string) ([]domain.Company, error) {
	s.companyCalls.Add(1)
	return s.companies, s.companiesErr
}

func (s *stubSource) ListCompanyTasks(_ context.Context, _ string, companyID string) ([]domain.Task, error) {
	s.taskCalls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err := s.failing[companyID]; err != nil {
		return nil, err
	}
	return s.tasks[companyID], nil
}

func companiesWithTasks(n int) ([]domain.Company, map[string][]domain.Task) {
	companies := make([]domain.Company, 0, n)
	tasks := make(map[string][]domain.Task, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c%02d", i)
		companies = append(companies, domain.Company{ID: id})
		tasks[id] = []domain.Task{
			{ID: id + "-t1", CompanyID: id},
			{ID: id + "-t2", CompanyID: id},
		}
	}
	return companies, tasks
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestListAllTasksNoCompaniesSkipsFanOut(t *testing.T) {
	src := &stubSource{}
	agg := NewAggregator(src, nil, AggregatorOptions{Logger: quietLogger()})

	tasks, err := agg.ListAllTasks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", tasks)
	}
	if src.taskCalls.Load() != 0 {
		t.Fatalf("expected no per-company fetches")
	}
}

func TestListAllTasksPreservesCompanyOrder(t *testing.T) {
	companies, tasks := companiesWithTasks(5)
	src := &stubSource{companies: companies, tasks: tasks, delay: time.Millisecond}
	agg := NewAggregator(src, nil, AggregatorOptions{Logger: quietLogger()})

	got, err := agg.ListAllTasks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 tasks, got %d", len(got))
	}
	for i, task := range got {
		want := fmt.Sprintf("c%02d-t%d", i/2, i%2+1)
		if task.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, task.ID)
		}
	}
}

func TestListAllTasksIsolatesBranchFailures(t *testing.T) {
	companies, tasks := companiesWithTasks(4)
	src := &stubSource{
		companies: companies,
		tasks:     tasks,
		failing: map[string]error{
			"c01": domain.E(domain.KindUnavailable, "backend down"),
			"c03": errors.New("boom"),
		},
	}
	logger, hook := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	agg := NewAggregator(src, nil, AggregatorOptions{Logger: logger, Metrics: metrics})

	got, err := agg.ListAllTasks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("branch failures must not surface: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected tasks from the two healthy companies, got %d", len(got))
	}
	for _, task := range got {
		if task.CompanyID == "c01" || task.CompanyID == "c03" {
			t.Fatalf("unexpected task from failed company: %#v", task)
		}
	}
	if v := testutil.ToFloat64(metrics.branchFailures); v != 2 {
		t.Fatalf("expected 2 branch failures, got %v", v)
	}

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.WarnLevel && entry.Message == "company task fetch failed" {
			warnings++
			if entry.Data["user_id"] != "u1" {
				t.Fatalf("expected user id on warning, got %v", entry.Data)
			}
		}
	}
	if warnings != 2 {
		t.Fatalf("expected 2 warnings, got %d", warnings)
	}
}

func TestListAllTasksBoundsConcurrency(t *testing.T) {
	companies, tasks := companiesWithTasks(30)
	src := &stubSource{companies: companies, tasks: tasks, delay: 5 * time.Millisecond}
	agg := NewAggregator(src, nil, AggregatorOptions{Limit: 4, Logger: quietLogger()})

	got, err := agg.ListAllTasks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 60 {
		t.Fatalf("expected 60 tasks, got %d", len(got))
	}
	if peak := src.maxInFlight.Load(); peak > 4 {
		t.Fatalf("expected at most 4 in-flight fetches, saw %d", peak)
	}
}

func TestListAllTasksCachedWithinTTL(t *testing.T) {
	companies, tasks := companiesWithTasks(2)
	src := &stubSource{companies: companies, tasks: tasks}
	now := time.Now()
	cache := NewMemoryCache(DefaultResponseTTL)
	cache.now = func() time.Time { return now }
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	agg := NewAggregator(src, cache, AggregatorOptions{Logger: quietLogger(), Metrics: metrics})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := agg.ListAllTasks(ctx, "u1"); err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
	}
	if src.companyCalls.Load() != 1 || src.taskCalls.Load() != 2 {
		t.Fatalf("expected a single fan-out, got %d company and %d task calls", src.companyCalls.Load(), src.taskCalls.Load())
	}
	if v := testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("tasks", "hit")); v != 2 {
		t.Fatalf("expected 2 cache hits, got %v", v)
	}

	now = now.Add(DefaultResponseTTL)
	if _, err := agg.ListAllTasks(ctx, "u1"); err != nil {
		t.Fatalf("list after ttl: %v", err)
	}
	if src.companyCalls.Load() != 2 {
		t.Fatalf("expected a fresh fan-out after the ttl")
	}
	if v := testutil.ToFloat64(metrics.fanouts); v != 2 {
		t.Fatalf("expected 2 fan-outs, got %v", v)
	}
}

func TestListAllTasksCompanyListFailure(t *testing.T) {
	src := &stubSource{companiesErr: domain.E(domain.KindNotFound, "missing")}
	agg := NewAggregator(src, nil, AggregatorOptions{Logger: quietLogger()})
	got, err := agg.ListAllTasks(context.Background(), "u1")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("absent company list should read as empty, got %#v, %v", got, err)
	}

	src = &stubSource{companiesErr: domain.E(domain.KindUnavailable, "down")}
	agg = NewAggregator(src, nil, AggregatorOptions{Logger: quietLogger()})
	if _, err := agg.ListAllTasks(context.Background(), "u1"); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestListCompaniesErrorsAreNotCached(t *testing.T) {
	src := &stubSource{companiesErr: domain.E(domain.KindUnavailable, "down")}
	agg := NewAggregator(src, NewMemoryCache(time.Minute), AggregatorOptions{Logger: quietLogger()})
	ctx := context.Background()

	if _, err := agg.ListCompanies(ctx, "u1"); err == nil {
		t.Fatalf("expected error")
	}
	src.companiesErr = nil
	src.companies = []domain.Company{{ID: "c1"}}
	got, err := agg.ListCompanies(ctx, "u1")
	if err != nil || len(got) != 1 {
		t.Fatalf("expected recovered listing, got %#v, %v", got, err)
	}
}

func TestListAllTasksRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	companies, tasks := companiesWithTasks(3)
	agg := NewAggregator(&stubSource{companies: companies, tasks: tasks}, nil, AggregatorOptions{Logger: quietLogger()})
	if _, err := agg.ListAllTasks(context.Background(), "u1"); err != nil {
		t.Fatalf("list: %v", err)
	}

	found := false
	for _, span := range recorder.Ended() {
		if span.Name() != "storage.ListAllTasks" {
			continue
		}
		found = true
		for _, attr := range span.Attributes() {
			if attr.Key == "fanout.tasks" && attr.Value.AsInt64() != 6 {
				t.Fatalf("unexpected task count attribute: %v", attr.Value.AsInt64())
			}
		}
	}
	if !found {
		t.Fatalf("expected fan-out span to be recorded")
	}
}
