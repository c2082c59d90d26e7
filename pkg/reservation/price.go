package reservation

import (
	"sort"

	"github.com/Optum/tally/pkg/tagset"
)

// Tier is one volume band of a price table. The price applies once the
// cumulative purchased volume reaches LowerBound.
type Tier struct {
	LowerBound float64
	Price      float64
}

// VersionedTiers is a tier table valid for purchases recorded at a given
// time. Price tables are forward-dated: a lookup at time T wants the entry
// with the smallest RecordedAt on or after T, falling back to the latest
// known entry when T is past the end of the table.
type VersionedTiers struct {
	RecordedAt int64 // epoch millis
	Tiers      []Tier
}

// Price holds the two time-versioned tier tables for one
// (region, usage type) key.
type Price struct {
	Upfront []VersionedTiers
	Hourly  []VersionedTiers
}

// NewPrice builds a Price with both tables sorted by recorded time
func NewPrice(upfront, hourly []VersionedTiers) *Price {
	sort.Slice(upfront, func(i, j int) bool { return upfront[i].RecordedAt < upfront[j].RecordedAt })
	sort.Slice(hourly, func(i, j int) bool { return hourly[i].RecordedAt < hourly[j].RecordedAt })
	return &Price{Upfront: upfront, Hourly: hourly}
}

// HourlyAt returns the contracted hourly rate at time t for the given
// cumulative volume.
func (p *Price) HourlyAt(t int64, volume float64) float64 {
	return lookup(p.Hourly, t, volume)
}

// UpfrontAt returns the upfront list price at time t for the given
// cumulative volume.
func (p *Price) UpfrontAt(t int64, volume float64) float64 {
	return lookup(p.Upfront, t, volume)
}

func lookup(entries []VersionedTiers, t int64, volume float64) float64 {
	if len(entries) == 0 {
		return 0
	}
	selected := entries[len(entries)-1]
	for _, e := range entries {
		if e.RecordedAt >= t {
			selected = e
			break
		}
	}

	price := 0.0
	for _, tier := range selected.Tiers {
		if volume >= tier.LowerBound {
			price = tier.Price
		}
	}
	return price
}

// rateKey identifies one cached on-demand unit rate
type rateKey struct {
	operation *tagset.Operation
	region    *tagset.Region
	usageType *tagset.UsageType
}

// RateCache records observed on-demand unit rates during an ingestion run.
// Reservation overflow repriced to on-demand uses these instead of the
// contracted rate when an observation exists. The cache is owned by the
// single ingestion loop and reset per run.
type RateCache struct {
	rates map[rateKey]float64
}

// NewRateCache creates an empty RateCache
func NewRateCache() *RateCache {
	return &RateCache{rates: make(map[rateKey]float64)}
}

// Record stores the observed unit rate for the key, overwriting any
// earlier observation in the run.
func (c *RateCache) Record(op *tagset.Operation, region *tagset.Region, usageType *tagset.UsageType, rate float64) {
	c.rates[rateKey{operation: op, region: region, usageType: usageType}] = rate
}

// Get returns the cached unit rate and whether one was observed
func (c *RateCache) Get(op *tagset.Operation, region *tagset.Region, usageType *tagset.UsageType) (float64, bool) {
	rate, ok := c.rates[rateKey{operation: op, region: region, usageType: usageType}]
	return rate, ok
}
