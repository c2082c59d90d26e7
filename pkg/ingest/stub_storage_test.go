package ingest_test

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Optum/tally/pkg/common"
	"github.com/pkg/errors"
)

// stubStorage is an in-memory Storager for pipeline tests
type stubStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	puts     map[string]int
}

func newStubStorage() *stubStorage {
	return &stubStorage{
		objects:  map[string][]byte{},
		modified: map[string]time.Time{},
		puts:     map[string]int{},
	}
}

func (s *stubStorage) seed(bucket, key string, body []byte, mod time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = body
	s.modified[bucket+"/"+key] = mod
}

func (s *stubStorage) has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+key]
	return ok
}

func (s *stubStorage) drop(bucket, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
}

func (s *stubStorage) putCount(bucket, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[bucket+"/"+key]
}

func (s *stubStorage) ListObjects(bucket string, prefix string) ([]common.ObjectSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var summaries []common.ObjectSummary
	for composite, body := range s.objects {
		if !strings.HasPrefix(composite, bucket+"/") {
			continue
		}
		key := strings.TrimPrefix(composite, bucket+"/")
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		summaries = append(summaries, common.ObjectSummary{
			Key:          key,
			Size:         int64(len(body)),
			LastModified: s.modified[composite],
		})
	}
	return summaries, nil
}

func (s *stubStorage) HeadObject(bucket string, key string) (*common.ObjectSummary, bool, error) {
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

func (s *stubStorage) GetObject(bucket string, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return "", errors.Errorf("no such object %s/%s", bucket, key)
	}
	return string(body), nil
}

func (s *stubStorage) PutObject(bucket string, key string, body io.ReadSeeker) error {
	return s.PutObjectWithMetadata(bucket, key, body, nil)
}

func (s *stubStorage) PutObjectWithMetadata(bucket string, key string, body io.ReadSeeker,
	_ map[string]string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = buf.Bytes()
	s.modified[bucket+"/"+key] = time.Now()
	s.puts[bucket+"/"+key]++
	return nil
}

func (s *stubStorage) Download(bucket string, key string, filepath string) error {
	body, err := s.GetObject(bucket, key)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, []byte(body), 0644)
}

func (s *stubStorage) CopyObject(bucket string, key string, destBucket string, destKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return errors.Errorf("no such object %s/%s", bucket, key)
	}
	s.objects[destBucket+"/"+destKey] = body
	s.modified[destBucket+"/"+destKey] = time.Now()
	return nil
}
