package reservation_test

import (
	"testing"

	"github.com/Optum/tally/pkg/reservation"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/stretchr/testify/assert"
)

func TestPriceLookupPicksSmallestRecordedTimeAtOrAfter(t *testing.T) {
	price := reservation.NewPrice(
		nil,
		[]reservation.VersionedTiers{
			{RecordedAt: 3000, Tiers: []reservation.Tier{{LowerBound: 0, Price: 0.30}}},
			{RecordedAt: 1000, Tiers: []reservation.Tier{{LowerBound: 0, Price: 0.10}}},
			{RecordedAt: 2000, Tiers: []reservation.Tier{{LowerBound: 0, Price: 0.20}}},
		},
	)

	tests := []struct {
		name string
		t    int64
		exp  float64
	}{
		{name: "before the earliest entry", t: 500, exp: 0.10},
		{name: "exactly on an entry", t: 2000, exp: 0.20},
		{name: "between entries rounds forward", t: 1500, exp: 0.20},
		{name: "after the last entry falls back to latest", t: 9000, exp: 0.30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.exp, price.HourlyAt(tt.t, 0))
		})
	}
}

func TestPriceTierAdjustment(t *testing.T) {
	price := reservation.NewPrice(
		[]reservation.VersionedTiers{
			{RecordedAt: 0, Tiers: []reservation.Tier{
				{LowerBound: 0, Price: 1000},
				{LowerBound: 50, Price: 800},
				{LowerBound: 200, Price: 600},
			}},
		},
		nil,
	)

	assert.Equal(t, 1000.0, price.UpfrontAt(0, 10))
	assert.Equal(t, 800.0, price.UpfrontAt(0, 50))
	assert.Equal(t, 600.0, price.UpfrontAt(0, 500))
}

func TestPriceEmptyTable(t *testing.T) {
	price := reservation.NewPrice(nil, nil)
	assert.Equal(t, 0.0, price.HourlyAt(0, 0))
	assert.Equal(t, 0.0, price.UpfrontAt(0, 0))
}

func TestRateCache(t *testing.T) {
	r := tagset.NewRegistry()
	region := r.Region("us-east-1")
	ut := r.UsageType("m1.small", "hours")

	cache := reservation.NewRateCache()

	_, ok := cache.Get(tagset.OperationOndemandInstances, region, ut)
	assert.False(t, ok)

	cache.Record(tagset.OperationOndemandInstances, region, ut, 0.065)
	rate, ok := cache.Get(tagset.OperationOndemandInstances, region, ut)
	assert.True(t, ok)
	assert.Equal(t, 0.065, rate)

	// later observations win
	cache.Record(tagset.OperationOndemandInstances, region, ut, 0.08)
	rate, _ = cache.Get(tagset.OperationOndemandInstances, region, ut)
	assert.Equal(t, 0.08, rate)

	// keyed by region: a different region misses
	other := r.Region("us-west-2")
	_, ok = cache.Get(tagset.OperationOndemandInstances, other, ut)
	assert.False(t, ok)
}
