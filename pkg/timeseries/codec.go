package timeseries

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Optum/tally/pkg/errors"
	"github.com/Optum/tally/pkg/tagset"
)

// Wire layout, big-endian:
//
//	int32 keyCount
//	keyCount × serialized tag group (fixed field order, "" for absent)
//	int32 hourCount
//	hourCount × { bool hasData; if set, keyCount × float64 in key order }
//
// A 0.0 on write and an absent map entry on read are the same thing; the
// format does not distinguish sparsity from zero.

// Serialize writes the accumulator in the wire layout. The write is staged
// by the caller (whole file in memory) so a failure never leaves a partial
// object behind.
func (d *ReadWriteData) Serialize(w io.Writer) error {
	keys := d.TagGroups()

	if err := binary.Write(w, binary.BigEndian, int32(len(keys))); err != nil {
		return err
	}
	for _, tg := range keys {
		if err := tg.Serialize(w); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, int32(len(d.hours))); err != nil {
		return err
	}
	for _, h := range d.hours {
		hasData := len(h) > 0
		if err := binary.Write(w, binary.BigEndian, hasData); err != nil {
			return err
		}
		if !hasData {
			continue
		}
		for _, tg := range keys {
			if err := binary.Write(w, binary.BigEndian, h[tg]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize reads the wire layout back into a sparse accumulator. Zero
// values are dropped on read; they are indistinguishable from absence.
func Deserialize(r io.Reader, registry *tagset.Registry, accounts tagset.AccountResolver, products tagset.ProductResolver) (*ReadWriteData, error) {
	var keyCount int32
	if err := binary.Read(r, binary.BigEndian, &keyCount); err != nil {
		return nil, err
	}
	if keyCount < 0 {
		return nil, errors.NewInternalServer(fmt.Sprintf("invalid key count: %d", keyCount), nil)
	}
	keys := make([]*tagset.TagGroup, keyCount)
	for i := range keys {
		tg, err := tagset.DeserializeTagGroup(r, registry, accounts, products)
		if err != nil {
			return nil, err
		}
		keys[i] = tg
	}

	var hourCount int32
	if err := binary.Read(r, binary.BigEndian, &hourCount); err != nil {
		return nil, err
	}
	if hourCount < 0 {
		return nil, errors.NewInternalServer(fmt.Sprintf("invalid hour count: %d", hourCount), nil)
	}
	d := New()
	for hour := 0; hour < int(hourCount); hour++ {
		var hasData bool
		if err := binary.Read(r, binary.BigEndian, &hasData); err != nil {
			return nil, err
		}
		d.grow(hour)
		if !hasData {
			continue
		}
		for _, tg := range keys {
			var v float64
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, err
			}
			if v != 0 {
				d.hours[hour][tg] = v
			}
		}
	}
	return d, nil
}

// DeserializeReadOnly reads the wire layout into the dense query form
func DeserializeReadOnly(r io.Reader, registry *tagset.Registry, accounts tagset.AccountResolver, products tagset.ProductResolver) (*ReadOnlyData, error) {
	rw, err := Deserialize(r, registry, accounts, products)
	if err != nil {
		return nil, err
	}
	return rw.ReadOnly(), nil
}
