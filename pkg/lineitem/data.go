package lineitem

import (
	"sort"

	"github.com/Optum/tally/pkg/tagset"
	"github.com/Optum/tally/pkg/timeseries"
	"github.com/samber/lo"
)

// CostUsageData accumulates one month of hourly usage and cost series per
// product. It is owned by the single ingestion loop for the duration of a
// run; nothing else writes to it.
type CostUsageData struct {
	usage map[*tagset.Product]*timeseries.ReadWriteData
	cost  map[*tagset.Product]*timeseries.ReadWriteData
}

// NewCostUsageData creates an empty accumulator
func NewCostUsageData() *CostUsageData {
	return &CostUsageData{
		usage: make(map[*tagset.Product]*timeseries.ReadWriteData),
		cost:  make(map[*tagset.Product]*timeseries.ReadWriteData),
	}
}

// Usage returns the usage series for a product, creating it when absent
func (d *CostUsageData) Usage(p *tagset.Product) *timeseries.ReadWriteData {
	if _, ok := d.usage[p]; !ok {
		d.usage[p] = timeseries.New()
	}
	return d.usage[p]
}

// Cost returns the cost series for a product, creating it when absent
func (d *CostUsageData) Cost(p *tagset.Product) *timeseries.ReadWriteData {
	if _, ok := d.cost[p]; !ok {
		d.cost[p] = timeseries.New()
	}
	return d.cost[p]
}

// Products returns every product seen so far, sorted by name
func (d *CostUsageData) Products() []*tagset.Product {
	seen := map[*tagset.Product]struct{}{}
	for p := range d.usage {
		seen[p] = struct{}{}
	}
	for p := range d.cost {
		seen[p] = struct{}{}
	}
	products := lo.Keys(seen)
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products
}

// Cut truncates every series to n hours
func (d *CostUsageData) Cut(n int) {
	for _, s := range d.usage {
		s.Cut(n)
	}
	for _, s := range d.cost {
		s.Cut(n)
	}
}
