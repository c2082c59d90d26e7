package resource

import (
	"time"

	"github.com/Optum/tally/pkg/tagset"
)

// Servicer maps a raw billing row onto a resource-group label. An empty
// label means the row gets no resource-level bucket. Implementations are
// pluggable; deployments typically resolve resource ids through their own
// tagging conventions.
type Servicer interface {
	Resolve(account *tagset.Account, region *tagset.Region, product *tagset.Product,
		resourceID string, row []string, hourStart time.Time) string
}

// PassthroughService labels every row with its raw resource id
type PassthroughService struct{}

// Resolve returns the raw resource id as the label
func (s *PassthroughService) Resolve(_ *tagset.Account, _ *tagset.Region, _ *tagset.Product,
	resourceID string, _ []string, _ time.Time) string {
	return resourceID
}

// NoneService disables resource-level rollups
type NoneService struct{}

// Resolve always returns an empty label
func (s *NoneService) Resolve(_ *tagset.Account, _ *tagset.Region, _ *tagset.Product,
	_ string, _ []string, _ time.Time) string {
	return ""
}
