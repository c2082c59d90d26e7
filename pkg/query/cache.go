package query

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Optum/tally/pkg/common"
	"github.com/Optum/tally/pkg/errors"
	"github.com/Optum/tally/pkg/ingest"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/Optum/tally/pkg/timeseries"
	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"
)

// Cache holds decoded monthly chunks for one (product, metric) series.
// Chunks are immutable once decoded; readers get the same *ReadOnlyData
// until a refresh hot-swaps it. Misses for the same month coalesce into a
// single fetch.
type Cache struct {
	storage  common.Storager
	bucket   string
	registry *tagset.Registry
	accounts tagset.AccountResolver
	products tagset.ProductResolver

	product   string
	metric    string
	maxChunks int

	mu       sync.Mutex
	chunks   map[time.Time]*chunkEntry
	order    *list.List // front = most recently used
	inflight map[time.Time]chan struct{}

	retryDelay time.Duration
}

type chunkEntry struct {
	data         *timeseries.ReadOnlyData
	lastModified time.Time
	element      *list.Element
}

// NewCacheInput Input for creating a new Cache
type NewCacheInput struct {
	Storage  common.Storager
	Bucket   string
	Registry *tagset.Registry
	Accounts tagset.AccountResolver
	Products tagset.ProductResolver

	Product   string
	Metric    string
	MaxChunks int
}

// NewCache creates a new instance of the Cache
func NewCache(input NewCacheInput) *Cache {
	maxChunks := input.MaxChunks
	if maxChunks <= 0 {
		maxChunks = 24
	}
	return &Cache{
		storage:    input.Storage,
		bucket:     input.Bucket,
		registry:   input.Registry,
		accounts:   input.Accounts,
		products:   input.Products,
		product:    input.Product,
		metric:     input.Metric,
		maxChunks:  maxChunks,
		chunks:     map[time.Time]*chunkEntry{},
		order:      list.New(),
		inflight:   map[time.Time]chan struct{}{},
		retryDelay: 10 * time.Second,
	}
}

// Chunk returns the decoded series for the month, fetching it on a miss.
// Concurrent misses for the same month share one fetch. A month with no
// rollup object yields an empty chunk.
func (c *Cache) Chunk(ctx context.Context, month time.Time) (*timeseries.ReadOnlyData, error) {
	month = timeseries.MonthStart(month)

	for {
		c.mu.Lock()
		if entry, ok := c.chunks[month]; ok {
			c.order.MoveToFront(entry.element)
			c.mu.Unlock()
			return entry.data, nil
		}
		if wait, ok := c.inflight[month]; ok {
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		done := make(chan struct{})
		c.inflight[month] = done
		c.mu.Unlock()

		data, lastModified, err := c.fetch(ctx, month)

		c.mu.Lock()
		delete(c.inflight, month)
		close(done)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.store(month, data, lastModified)
		c.mu.Unlock()
		return data, nil
	}
}

// store inserts a chunk under the LRU bound. Caller holds the lock.
func (c *Cache) store(month time.Time, data *timeseries.ReadOnlyData, lastModified time.Time) {
	if entry, ok := c.chunks[month]; ok {
		entry.data = data
		entry.lastModified = lastModified
		c.order.MoveToFront(entry.element)
		return
	}
	entry := &chunkEntry{data: data, lastModified: lastModified}
	entry.element = c.order.PushFront(month)
	c.chunks[month] = entry

	for len(c.chunks) > c.maxChunks {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.chunks, oldest.Value.(time.Time))
	}
}

// fetch downloads and decodes one month. A missing object returns an empty
// chunk immediately; a corrupt object is retried with fixed backoff until
// the context is cancelled, on the assumption that the ingest side is about
// to rewrite it.
func (c *Cache) fetch(ctx context.Context, month time.Time) (*timeseries.ReadOnlyData, time.Time, error) {
	key := ingest.HourlyKey(c.metric, c.product, month)

	var data *timeseries.ReadOnlyData
	var lastModified time.Time
	err := retry.Do(
		func() error {
			summary, exists, err := c.storage.HeadObject(c.bucket, key)
			if err != nil {
				return err
			}
			if !exists {
				data = timeseries.New().ReadOnly()
				lastModified = time.Time{}
				return nil
			}

			body, err := c.storage.GetObject(c.bucket, key)
			if err != nil {
				return err
			}
			decoded, err := timeseries.DeserializeReadOnly(
				strings.NewReader(body), c.registry, c.accounts, c.products)
			if err != nil {
				logrus.WithField("key", key).WithError(err).
					Warn("corrupt chunk, waiting for rewrite")
				return errors.NewCorruptData(key, err)
			}
			data = decoded
			lastModified = summary.LastModified
			return nil
		},
		retry.Attempts(0),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, lastModified, nil
}

// Keys returns the canonical tag groups for the month from the ingest-side
// index object, or the chunk's own keys when no index exists.
func (c *Cache) Keys(ctx context.Context, month time.Time) ([]*tagset.TagGroup, error) {
	month = timeseries.MonthStart(month)
	key := ingest.IndexKey(c.product, month)

	_, exists, err := c.storage.HeadObject(c.bucket, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		chunk, err := c.Chunk(ctx, month)
		if err != nil {
			return nil, err
		}
		return chunk.TagGroups(), nil
	}

	body, err := c.storage.GetObject(c.bucket, key)
	if err != nil {
		return nil, err
	}
	return tagset.DeserializeIndex(strings.NewReader(body), c.registry, c.accounts, c.products)
}

// Refresh re-checks every cached month against the store and hot-swaps the
// ones the ingest side has rewritten. Meant to run on a scheduler.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	months := make([]time.Time, 0, len(c.chunks))
	for month := range c.chunks {
		months = append(months, month)
	}
	c.mu.Unlock()

	var failures []error
	for _, month := range months {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		key := ingest.HourlyKey(c.metric, c.product, month)
		summary, exists, err := c.storage.HeadObject(c.bucket, key)
		if err != nil {
			failures = append(failures, err)
			continue
		}

		c.mu.Lock()
		entry, cached := c.chunks[month]
		stale := cached && exists && summary.LastModified.After(entry.lastModified)
		c.mu.Unlock()
		if !stale {
			continue
		}

		data, lastModified, err := c.fetch(ctx, month)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		c.mu.Lock()
		c.store(month, data, lastModified)
		c.mu.Unlock()
	}

	if len(failures) > 0 {
		return errors.NewMultiError("chunk refresh", failures)
	}
	return nil
}
