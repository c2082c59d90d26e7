package tagset

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Optum/tally/pkg/errors"
)

// AccountResolver resolves serialized account ids back to accounts
type AccountResolver interface {
	ByID(id string) (*Account, error)
}

// ProductResolver resolves serialized product names back to products
type ProductResolver interface {
	ByCanonicalName(name string) (*Product, error)
}

// Serialize writes the tuple as length-prefixed strings in fixed field
// order. Absent optional fields are written as the empty string, so the
// wire layout has a constant field count.
func (tg *TagGroup) Serialize(w io.Writer) error {
	fields := []string{
		tg.Account.ID,
		tg.Region.Name,
		zoneName(tg.Zone),
		tg.Product.Name,
		tg.Operation.Name,
		tg.UsageType.Name,
		groupName(tg.ResourceGroup),
	}
	for _, f := range fields {
		if err := writeString(w, f); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeTagGroup reads one serialized tuple, resolves the account and
// product through their owning services, interns the remaining fields and
// returns the canonical instance.
func DeserializeTagGroup(r io.Reader, registry *Registry, accounts AccountResolver, products ProductResolver) (*TagGroup, error) {
	fields := make([]string, 7)
	for i := range fields {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		fields[i] = s
	}

	account, err := accounts.ByID(fields[0])
	if err != nil {
		return nil, err
	}
	region := registry.Region(fields[1])
	if region == nil {
		return nil, errors.NewNotFound("region", fields[1])
	}
	zone := registry.Zone(region, fields[2])
	product, err := products.ByCanonicalName(fields[3])
	if err != nil {
		return nil, err
	}
	operation := registry.Operation(fields[4])
	if operation == nil {
		return nil, errors.NewNotFound("operation", fields[4])
	}
	usageType := registry.UsageType(fields[5], InferUnit(fields[5], operation))
	resourceGroup := registry.ResourceGroup(fields[6])

	return registry.GetTagGroup(account, region, zone, product, operation, usageType, resourceGroup), nil
}

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if len(b) > 0xffff {
		return errors.NewInternalServer(fmt.Sprintf("tag field too long: %d bytes", len(b)), nil)
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// SerializeIndex writes a tag-group enumeration: a big-endian int32 count
// followed by each group in serialized form.
func SerializeIndex(w io.Writer, tagGroups []*TagGroup) error {
	if err := binary.Write(w, binary.BigEndian, int32(len(tagGroups))); err != nil {
		return err
	}
	for _, tg := range tagGroups {
		if err := tg.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeIndex reads a tag-group enumeration written by SerializeIndex
func DeserializeIndex(r io.Reader, registry *Registry, accounts AccountResolver,
	products ProductResolver) ([]*TagGroup, error) {
	var count int32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, errors.NewInternalServer(fmt.Sprintf("invalid tag group count: %d", count), nil)
	}
	tagGroups := make([]*TagGroup, 0, count)
	for i := int32(0); i < count; i++ {
		tg, err := DeserializeTagGroup(r, registry, accounts, products)
		if err != nil {
			return nil, err
		}
		tagGroups = append(tagGroups, tg)
	}
	return tagGroups, nil
}
