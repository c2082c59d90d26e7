package query_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Optum/tally/pkg/account"
	"github.com/Optum/tally/pkg/common"
	"github.com/Optum/tally/pkg/ingest"
	"github.com/Optum/tally/pkg/product"
	"github.com/Optum/tally/pkg/query"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/Optum/tally/pkg/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStorage is an in-memory Storager that counts object reads
type countingStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	gets     int64
}

func newCountingStorage() *countingStorage {
	return &countingStorage{
		objects:  map[string][]byte{},
		modified: map[string]time.Time{},
	}
}

func (s *countingStorage) seed(bucket, key string, body []byte, mod time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = body
	s.modified[bucket+"/"+key] = mod
}

func (s *countingStorage) getCount() int64 {
	return atomic.LoadInt64(&s.gets)
}

func (s *countingStorage) ListObjects(bucket string, prefix string) ([]common.ObjectSummary, error) {
	return nil, nil
}

func (s *countingStorage) HeadObject(bucket string, key string) (*common.ObjectSummary, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, false, nil
	}
	return &common.ObjectSummary{
		Key:          key,
		Size:         int64(len(body)),
		LastModified: s.modified[bucket+"/"+key],
	}, true, nil
}

func (s *countingStorage) GetObject(bucket string, key string) (string, error) {
	atomic.AddInt64(&s.gets, 1)
	s.mu.Lock()
	body, ok := s.objects[bucket+"/"+key]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no such object %s/%s", bucket, key)
	}
	// slow fetch so concurrent misses overlap
	time.Sleep(20 * time.Millisecond)
	return string(body), nil
}

func (s *countingStorage) PutObject(bucket string, key string, body io.ReadSeeker) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	s.seed(bucket, key, buf.Bytes(), time.Now())
	return nil
}

func (s *countingStorage) PutObjectWithMetadata(bucket string, key string, body io.ReadSeeker, _ map[string]string) error {
	return s.PutObject(bucket, key, body)
}

func (s *countingStorage) Download(string, string, string) error           { return nil }
func (s *countingStorage) CopyObject(string, string, string, string) error { return nil }

type queryFixture struct {
	storage  *countingStorage
	registry *tagset.Registry
	accounts *account.Service
	products *product.Service
	service  *query.Service
}

const workBucket = "work"

func newQueryFixture(t *testing.T) *queryFixture {
	registry := tagset.NewRegistry()
	accounts, err := account.NewService(account.NewServiceInput{
		Registry: registry,
		Accounts: []account.Config{{ID: "111111111111", Name: "prod"}},
	})
	require.Nil(t, err)
	products := product.NewService(registry)
	storage := newCountingStorage()

	return &queryFixture{
		storage:  storage,
		registry: registry,
		accounts: accounts,
		products: products,
		service: query.NewService(query.NewServiceInput{
			Storage:  storage,
			Bucket:   workBucket,
			Registry: registry,
			Accounts: accounts,
			Products: products,
		}),
	}
}

func (f *queryFixture) tagGroup(op *tagset.Operation) *tagset.TagGroup {
	acct, _ := f.accounts.ByID("111111111111")
	prod, _ := f.products.ByCanonicalName(product.Ec2Instance)
	return f.registry.GetTagGroup(acct, f.registry.DefaultRegion(), nil, prod,
		op, f.registry.UsageType("m1.small", "hours"), nil)
}

func (f *queryFixture) seedChunk(t *testing.T, metric string, month time.Time,
	fill func(data *timeseries.ReadWriteData)) {
	data := timeseries.New()
	fill(data)
	var buf bytes.Buffer
	require.Nil(t, data.Serialize(&buf))
	f.storage.seed(workBucket,
		ingest.HourlyKey(metric, product.Ec2Instance, month), buf.Bytes(), time.Now())
}

func TestQuerySumsAndRebuckets(t *testing.T) {
	f := newQueryFixture(t)
	month := time.Date(2013, 4, 1, 0, 0, 0, 0, time.UTC)
	od := f.tagGroup(tagset.OperationOndemandInstances)
	reserved := f.tagGroup(tagset.OperationReservedInstancesHeavy)

	f.seedChunk(t, query.MetricCost, month, func(data *timeseries.ReadWriteData) {
		data.Put(0, od, 1.0)
		data.Put(0, reserved, 2.0)
		data.Put(25, od, 4.0)
	})

	tests := []struct {
		name        string
		granularity timeseries.Granularity
		predicate   query.Predicate
		expected    []float64
	}{
		{
			name:        "hourly sums all columns",
			granularity: timeseries.Hourly,
			expected:    sparse(27, map[int]float64{0: 3.0, 25: 4.0}),
		},
		{
			name:        "daily rebuckets",
			granularity: timeseries.Daily,
			expected:    []float64{3.0, 4.0},
		},
		{
			name:        "predicate filters columns",
			granularity: timeseries.Daily,
			predicate:   func(tg *tagset.TagGroup) bool { return tg.Operation.IsOndemand() },
			expected:    []float64{1.0, 4.0},
		},
		{
			name:        "monthly rebuckets",
			granularity: timeseries.Monthly,
			expected:    []float64{7.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.service.Query(context.Background(), query.Request{
				Product:     product.Ec2Instance,
				Metric:      query.MetricCost,
				Start:       month,
				End:         month.Add(27 * time.Hour),
				Granularity: tt.granularity,
				Predicate:   tt.predicate,
			})
			require.Nil(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQueryMissingMonthIsEmpty(t *testing.T) {
	f := newQueryFixture(t)
	month := time.Date(2013, 4, 1, 0, 0, 0, 0, time.UTC)

	got, err := f.service.Query(context.Background(), query.Request{
		Product:     product.Ec2Instance,
		Metric:      query.MetricCost,
		Start:       month,
		End:         month.Add(2 * time.Hour),
		Granularity: timeseries.Hourly,
	})
	require.Nil(t, err)
	assert.Equal(t, []float64{0, 0}, got)
}

func TestQueryRejectsEmptyInterval(t *testing.T) {
	f := newQueryFixture(t)
	month := time.Date(2013, 4, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.service.Query(context.Background(), query.Request{
		Product: product.Ec2Instance,
		Metric:  query.MetricCost,
		Start:   month,
		End:     month,
	})
	assert.NotNil(t, err)
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	f := newQueryFixture(t)
	month := time.Date(2013, 4, 1, 0, 0, 0, 0, time.UTC)
	od := f.tagGroup(tagset.OperationOndemandInstances)
	f.seedChunk(t, query.MetricCost, month, func(data *timeseries.ReadWriteData) {
		data.Put(0, od, 1.0)
	})

	req := query.Request{
		Product:     product.Ec2Instance,
		Metric:      query.MetricCost,
		Start:       month,
		End:         month.Add(time.Hour),
		Granularity: timeseries.Hourly,
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.service.Query(context.Background(), req)
			assert.Nil(t, err)
			assert.Equal(t, []float64{1.0}, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), f.storage.getCount())
}

func TestRefreshHotSwapsRewrittenChunks(t *testing.T) {
	f := newQueryFixture(t)
	month := time.Date(2013, 4, 1, 0, 0, 0, 0, time.UTC)
	od := f.tagGroup(tagset.OperationOndemandInstances)

	f.seedChunk(t, query.MetricCost, month, func(data *timeseries.ReadWriteData) {
		data.Put(0, od, 1.0)
	})

	req := query.Request{
		Product:     product.Ec2Instance,
		Metric:      query.MetricCost,
		Start:       month,
		End:         month.Add(time.Hour),
		Granularity: timeseries.Hourly,
	}
	got, err := f.service.Query(context.Background(), req)
	require.Nil(t, err)
	assert.Equal(t, []float64{1.0}, got)

	// rewrite the chunk; a cached read still sees the old data until refresh
	f.seedChunk(t, query.MetricCost, month, func(data *timeseries.ReadWriteData) {
		data.Put(0, od, 5.0)
	})
	got, err = f.service.Query(context.Background(), req)
	require.Nil(t, err)
	assert.Equal(t, []float64{1.0}, got)

	require.Nil(t, f.service.Refresh(context.Background()))
	got, err = f.service.Query(context.Background(), req)
	require.Nil(t, err)
	assert.Equal(t, []float64{5.0}, got)
}

func TestKeysReadFromIndex(t *testing.T) {
	f := newQueryFixture(t)
	month := time.Date(2013, 4, 1, 0, 0, 0, 0, time.UTC)
	od := f.tagGroup(tagset.OperationOndemandInstances)

	var buf bytes.Buffer
	require.Nil(t, tagset.SerializeIndex(&buf, []*tagset.TagGroup{od}))
	f.storage.seed(workBucket, ingest.IndexKey(product.Ec2Instance, month), buf.Bytes(), time.Now())

	keys, err := f.service.Keys(context.Background(), product.Ec2Instance, month)
	require.Nil(t, err)
	require.Len(t, keys, 1)
	assert.Same(t, od, keys[0])
}

func sparse(n int, vals map[int]float64) []float64 {
	out := make([]float64, n)
	for i, v := range vals {
		out[i] = v
	}
	return out
}
