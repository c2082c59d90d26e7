package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Optum/tally/pkg/common"
	"github.com/pkg/errors"
)

// fileState records when a billing object was last processed and the
// source timestamp it carried at that point
type fileState struct {
	LastModified time.Time `json:"lastModified"`
	ProcessedAt  time.Time `json:"processedAt"`
}

// Watermark tracks which billing objects have already been ingested so a
// restart only reprocesses objects the provider has rewritten since.
type Watermark struct {
	storage common.Storager
	bucket  string
	key     string
	files   map[string]fileState
}

// NewWatermark creates a watermark persisted at bucket/key
func NewWatermark(storage common.Storager, bucket string, key string) *Watermark {
	return &Watermark{
		storage: storage,
		bucket:  bucket,
		key:     key,
		files:   map[string]fileState{},
	}
}

// Load reads the persisted state. A missing state object starts empty.
func (w *Watermark) Load() error {
	_, exists, err := w.storage.HeadObject(w.bucket, w.key)
	if err != nil {
		return errors.Wrap(err, "checking ingest state object")
	}
	if !exists {
		w.files = map[string]fileState{}
		return nil
	}

	body, err := w.storage.GetObject(w.bucket, w.key)
	if err != nil {
		return errors.Wrap(err, "reading ingest state object")
	}

	files := map[string]fileState{}
	if err := json.Unmarshal([]byte(body), &files); err != nil {
		return errors.Wrap(err, "decoding ingest state object")
	}
	w.files = files
	return nil
}

// ShouldProcess reports whether the billing object is new or has been
// rewritten since it was last processed
func (w *Watermark) ShouldProcess(f *BillingFile) bool {
	state, ok := w.files[f.String()]
	if !ok {
		return true
	}
	return f.LastModified.After(state.LastModified)
}

// MarkProcessed records a successful ingest of the billing object
func (w *Watermark) MarkProcessed(f *BillingFile, at time.Time) {
	w.files[f.String()] = fileState{
		LastModified: f.LastModified,
		ProcessedAt:  at,
	}
}

// Save persists the state object
func (w *Watermark) Save() error {
	body, err := json.Marshal(w.files)
	if err != nil {
		return errors.Wrap(err, "encoding ingest state object")
	}
	err = w.storage.PutObject(w.bucket, w.key, strings.NewReader(string(body)))
	return errors.Wrap(err, "writing ingest state object")
}
