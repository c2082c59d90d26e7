package ingest

import (
	"fmt"
	"regexp"
	"time"

	"github.com/Optum/tally/pkg/common"
)

// The detailed billing report comes in two filename variants: with the
// per-row resource id and tag block, and without.
var (
	taggedKeyPattern = regexp.MustCompile(
		`(\d{12})-aws-billing-detailed-line-items-with-resources-and-tags-(\d{4})-(\d{2})\.csv\.zip$`)
	plainKeyPattern = regexp.MustCompile(
		`(\d{12})-aws-billing-detailed-line-items-(\d{4})-(\d{2})\.csv\.zip$`)
)

// BillingFile identifies one monthly detailed billing report object
type BillingFile struct {
	Bucket          string
	Key             string
	AccountID       string
	Month           time.Time
	HasResourceTags bool
	LastModified    time.Time
	Size            int64
}

// ParseBillingKey matches an object key against the billing report filename
// patterns. Non-report objects report false.
func ParseBillingKey(bucket string, obj common.ObjectSummary) (*BillingFile, bool) {
	hasResourceTags := true
	m := taggedKeyPattern.FindStringSubmatch(obj.Key)
	if m == nil {
		hasResourceTags = false
		m = plainKeyPattern.FindStringSubmatch(obj.Key)
	}
	if m == nil {
		return nil, false
	}

	month, err := time.Parse("2006-01", m[2]+"-"+m[3])
	if err != nil {
		return nil, false
	}

	return &BillingFile{
		Bucket:          bucket,
		Key:             obj.Key,
		AccountID:       m[1],
		Month:           month,
		HasResourceTags: hasResourceTags,
		LastModified:    obj.LastModified,
		Size:            obj.Size,
	}, true
}

// MonthKey returns the yyyy-MM label used in rollup object keys
func (f *BillingFile) MonthKey() string {
	return f.Month.Format("2006-01")
}

func (f *BillingFile) String() string {
	return fmt.Sprintf("%s/%s", f.Bucket, f.Key)
}
