package timeseries

import (
	"sort"

	"github.com/Optum/tally/pkg/tagset"
	"github.com/samber/lo"
)

// ReadWriteData is the mutable time-series accumulator: an ordered sequence
// of sparse per-hour maps from canonical tag group to value. Index i covers
// the hour starting at periodStart + i hours; the period start itself is
// tracked by the owner, not the data.
type ReadWriteData struct {
	hours []map[*tagset.TagGroup]float64
}

// New creates an empty ReadWriteData
func New() *ReadWriteData {
	return &ReadWriteData{}
}

// NumHours returns the number of hour slots currently held
func (d *ReadWriteData) NumHours() int {
	return len(d.hours)
}

// Get returns the value for the tag group at the hour, zero when absent
func (d *ReadWriteData) Get(hour int, tg *tagset.TagGroup) float64 {
	if hour < 0 || hour >= len(d.hours) || d.hours[hour] == nil {
		return 0
	}
	return d.hours[hour][tg]
}

// Add accumulates v into the hour's entry for the tag group, growing the
// hour sequence as needed.
func (d *ReadWriteData) Add(hour int, tg *tagset.TagGroup, v float64) {
	d.grow(hour)
	d.hours[hour][tg] += v
}

// Put overwrites the hour's entry for the tag group
func (d *ReadWriteData) Put(hour int, tg *tagset.TagGroup, v float64) {
	d.grow(hour)
	d.hours[hour][tg] = v
}

// Remove deletes the entry for the tag group at the hour
func (d *ReadWriteData) Remove(hour int, tg *tagset.TagGroup) {
	if hour < 0 || hour >= len(d.hours) || d.hours[hour] == nil {
		return
	}
	delete(d.hours[hour], tg)
}

// ClearHour empties the hour's entries, growing the sequence as needed.
// A merge uses it to replace a slot wholesale instead of layering new
// values over stale keys.
func (d *ReadWriteData) ClearHour(hour int) {
	d.grow(hour)
	d.hours[hour] = map[*tagset.TagGroup]float64{}
}

// Hour returns the raw sparse map for an hour, or nil past the end
func (d *ReadWriteData) Hour(hour int) map[*tagset.TagGroup]float64 {
	if hour < 0 || hour >= len(d.hours) {
		return nil
	}
	return d.hours[hour]
}

// Cut truncates retained hours to n, discarding later slots. Used to drop
// speculative future hours when processing the current month.
func (d *ReadWriteData) Cut(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(d.hours) {
		d.hours = d.hours[:n]
	}
}

// TagGroups returns every tag group present in any hour, in canonical order
func (d *ReadWriteData) TagGroups() []*tagset.TagGroup {
	seen := map[*tagset.TagGroup]struct{}{}
	for _, h := range d.hours {
		for tg := range h {
			seen[tg] = struct{}{}
		}
	}
	keys := lo.Keys(seen)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}

func (d *ReadWriteData) grow(hour int) {
	for len(d.hours) <= hour {
		d.hours = append(d.hours, map[*tagset.TagGroup]float64{})
	}
	if d.hours[hour] == nil {
		d.hours[hour] = map[*tagset.TagGroup]float64{}
	}
}

// ReadOnlyData is the immutable query form: a dense hour × key matrix with
// O(1) access. A nil row means the hour carried no data.
type ReadOnlyData struct {
	tagGroups []*tagset.TagGroup
	data      [][]float64
}

// NumHours returns the number of hour slots held
func (d *ReadOnlyData) NumHours() int {
	return len(d.data)
}

// TagGroups returns the key columns in stored order
func (d *ReadOnlyData) TagGroups() []*tagset.TagGroup {
	return d.tagGroups
}

// Row returns the value row for an hour, nil when the hour has no data.
// Values align with TagGroups by index.
func (d *ReadOnlyData) Row(hour int) []float64 {
	if hour < 0 || hour >= len(d.data) {
		return nil
	}
	return d.data[hour]
}

// ReadOnly freezes the accumulator into its dense immutable form
func (d *ReadWriteData) ReadOnly() *ReadOnlyData {
	keys := d.TagGroups()
	out := &ReadOnlyData{tagGroups: keys, data: make([][]float64, len(d.hours))}
	for i, h := range d.hours {
		if len(h) == 0 {
			continue
		}
		row := make([]float64, len(keys))
		for j, tg := range keys {
			row[j] = h[tg]
		}
		out.data[i] = row
	}
	return out
}
