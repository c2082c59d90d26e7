package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Optum/tally/pkg/common"
	"github.com/Optum/tally/pkg/errors"
	"github.com/Optum/tally/pkg/ingest"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/Optum/tally/pkg/timeseries"
)

// Metric names re-exported for callers that only import the query layer
const (
	MetricCost  = ingest.MetricCost
	MetricUsage = ingest.MetricUsage
)

// Predicate selects the tag groups a query sums over. A nil predicate
// matches everything.
type Predicate func(*tagset.TagGroup) bool

// Request describes one consolidation query over [Start, End)
type Request struct {
	Product     string
	Metric      string
	Start       time.Time
	End         time.Time
	Granularity timeseries.Granularity
	Predicate   Predicate
}

// Servicer answers consolidation queries over the persisted rollups
type Servicer interface {
	Query(ctx context.Context, req Request) ([]float64, error)
	Keys(ctx context.Context, product string, month time.Time) ([]*tagset.TagGroup, error)
	Refresh(ctx context.Context) error
}

// Service stitches cached monthly chunks into bucketed series. One chunk
// cache is kept per (product, metric) pair.
type Service struct {
	storage   common.Storager
	bucket    string
	registry  *tagset.Registry
	accounts  tagset.AccountResolver
	products  tagset.ProductResolver
	maxChunks int

	mu     sync.Mutex
	caches map[string]*Cache
}

// NewServiceInput Input for creating a new Service
type NewServiceInput struct {
	Storage   common.Storager
	Bucket    string
	Registry  *tagset.Registry
	Accounts  tagset.AccountResolver
	Products  tagset.ProductResolver
	MaxChunks int
}

// NewService creates a new instance of the Service
func NewService(input NewServiceInput) *Service {
	return &Service{
		storage:   input.Storage,
		bucket:    input.Bucket,
		registry:  input.Registry,
		accounts:  input.Accounts,
		products:  input.Products,
		maxChunks: input.MaxChunks,
		caches:    map[string]*Cache{},
	}
}

func (s *Service) cache(product string, metric string) *Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := product + "/" + metric
	if c, ok := s.caches[key]; ok {
		return c
	}
	c := NewCache(NewCacheInput{
		Storage:   s.storage,
		Bucket:    s.bucket,
		Registry:  s.registry,
		Accounts:  s.accounts,
		Products:  s.products,
		Product:   product,
		Metric:    metric,
		MaxChunks: s.maxChunks,
	})
	s.caches[key] = c
	return c
}

// Query sums the matching columns of every hour in the interval and
// re-buckets the sums at the requested granularity. Buckets align to
// calendar boundaries containing Start.
func (s *Service) Query(ctx context.Context, req Request) ([]float64, error) {
	if !req.End.After(req.Start) {
		return nil, errors.NewValidation("query",
			fmt.Errorf("end %s is not after start %s", req.End, req.Start))
	}

	start := req.Start.UTC().Truncate(time.Hour)
	end := req.End.UTC().Truncate(time.Hour)
	out := make([]float64, bucketIndex(req.Granularity, start, end.Add(-time.Hour))+1)

	cache := s.cache(req.Product, req.Metric)
	for month := timeseries.MonthStart(start); month.Before(end); month = timeseries.NextMonth(month) {
		chunk, err := cache.Chunk(ctx, month)
		if err != nil {
			return nil, err
		}
		if chunk.NumHours() == 0 {
			continue
		}

		var cols []int
		for i, tg := range chunk.TagGroups() {
			if req.Predicate == nil || req.Predicate(tg) {
				cols = append(cols, i)
			}
		}
		if len(cols) == 0 {
			continue
		}

		from := month
		if start.After(from) {
			from = start
		}
		to := timeseries.NextMonth(month)
		if end.Before(to) {
			to = end
		}
		for h := from; h.Before(to); h = h.Add(time.Hour) {
			row := chunk.Row(int(h.Sub(month) / time.Hour))
			if row == nil {
				continue
			}
			sum := 0.0
			for _, col := range cols {
				sum += row[col]
			}
			out[bucketIndex(req.Granularity, start, h)] += sum
		}
	}
	return out, nil
}

// Keys lists the canonical tag groups present for the product and month
func (s *Service) Keys(ctx context.Context, product string, month time.Time) ([]*tagset.TagGroup, error) {
	keys, err := s.cache(product, MetricCost).Keys(ctx, month)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Refresh hot-swaps every cached chunk that the ingest side has rewritten
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	caches := make([]*Cache, 0, len(s.caches))
	for _, c := range s.caches {
		caches = append(caches, c)
	}
	s.mu.Unlock()

	var failures []error
	for _, c := range caches {
		if err := c.Refresh(ctx); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return errors.NewMultiError("cache refresh", failures)
	}
	return nil
}

// bucketIndex maps an hour onto its bucket, with buckets anchored to the
// calendar period containing start
func bucketIndex(g timeseries.Granularity, start, h time.Time) int {
	switch g {
	case timeseries.Daily:
		return daysBetween(dayStart(start), h)
	case timeseries.Weekly:
		return timeseries.WeeksBetween(timeseries.WeekAnchor(start), h)
	case timeseries.Monthly:
		return timeseries.MonthsBetween(timeseries.MonthStart(start), h)
	default:
		return int(h.Sub(start) / time.Hour)
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(start, t time.Time) int {
	return int(t.Sub(start).Hours() / 24)
}
