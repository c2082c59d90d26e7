package tagset_test

import (
	"bytes"
	"sort"
	"sync"
	"testing"

	"github.com/Optum/tally/pkg/tagset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccounts struct {
	registry *tagset.Registry
}

func (s *stubAccounts) ByID(id string) (*tagset.Account, error) {
	return s.registry.Account(id, "account-"+id), nil
}

type stubProducts struct {
	registry *tagset.Registry
}

func (s *stubProducts) ByCanonicalName(name string) (*tagset.Product, error) {
	return s.registry.Product(name), nil
}

func buildTagGroup(r *tagset.Registry, zone string, group string) *tagset.TagGroup {
	region := r.Region("us-east-1")
	var z *tagset.Zone
	if zone != "" {
		z = r.Zone(region, zone)
	}
	return r.GetTagGroup(
		r.Account("123456789012", "prod"),
		region,
		z,
		r.Product("ec2_instance"),
		tagset.OperationOndemandInstances,
		r.UsageType("m1.small", "hours"),
		r.ResourceGroup(group),
	)
}

func TestTagGroupInterning(t *testing.T) {
	r := tagset.NewRegistry()

	tg1 := buildTagGroup(r, "us-east-1a", "api")
	tg2 := buildTagGroup(r, "us-east-1a", "api")
	assert.Same(t, tg1, tg2)

	tg3 := buildTagGroup(r, "us-east-1b", "api")
	assert.NotSame(t, tg1, tg3)
}

func TestTagGroupInterningConcurrent(t *testing.T) {
	r := tagset.NewRegistry()

	const goroutines = 32
	results := make([]*tagset.TagGroup, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = buildTagGroup(r, "us-east-1a", "api")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestTagGroupCompare(t *testing.T) {
	r := tagset.NewRegistry()

	zoned := buildTagGroup(r, "us-east-1a", "")
	unzoned := buildTagGroup(r, "", "")
	grouped := buildTagGroup(r, "", "api")

	tests := []struct {
		name string
		a    *tagset.TagGroup
		b    *tagset.TagGroup
		exp  int
	}{
		{name: "equal groups compare equal", a: zoned, b: zoned, exp: 0},
		{name: "present zone sorts before absent zone", a: zoned, b: unzoned, exp: -1},
		{name: "absent zone sorts after present zone", a: unzoned, b: zoned, exp: 1},
		{name: "present resource group sorts before absent", a: grouped, b: unzoned, exp: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.exp, tt.a.Compare(tt.b))
		})
	}
}

func TestOperationSortOrderIsDeclarationOrder(t *testing.T) {
	ops := []*tagset.Operation{
		tagset.OperationUpfrontAmortizedHeavy,
		tagset.OperationBorrowedInstancesHeavy,
		tagset.OperationOndemandInstances,
		tagset.OperationReservedInstancesLight,
		tagset.OperationReservedInstancesHeavy,
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Seq() < ops[j].Seq() })

	assert.Equal(t, []*tagset.Operation{
		tagset.OperationOndemandInstances,
		tagset.OperationReservedInstancesHeavy,
		tagset.OperationReservedInstancesLight,
		tagset.OperationBorrowedInstancesHeavy,
		tagset.OperationUpfrontAmortizedHeavy,
	}, ops)
}

func TestTagGroupSerializeRoundTrip(t *testing.T) {
	r := tagset.NewRegistry()
	accounts := &stubAccounts{registry: r}
	products := &stubProducts{registry: r}

	tests := []struct {
		name  string
		zone  string
		group string
	}{
		{name: "all fields present", zone: "us-east-1a", group: "api"},
		{name: "optional fields absent", zone: "", group: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := buildTagGroup(r, tt.zone, tt.group)

			buf := new(bytes.Buffer)
			require.Nil(t, tg.Serialize(buf))

			got, err := tagset.DeserializeTagGroup(buf, r, accounts, products)
			require.Nil(t, err)
			assert.Same(t, tg, got)
		})
	}
}

func TestDeserializeIndexRejectsNegativeCount(t *testing.T) {
	r := tagset.NewRegistry()

	buf := new(bytes.Buffer)
	require.Nil(t, tagset.SerializeIndex(buf, []*tagset.TagGroup{buildTagGroup(r, "us-east-1a", "")}))
	wire := buf.Bytes()
	wire[0] |= 0x80 // sign bit of the big-endian count

	_, err := tagset.DeserializeIndex(bytes.NewReader(wire),
		r, &stubAccounts{registry: r}, &stubProducts{registry: r})
	assert.NotNil(t, err)
}

func TestRegionShortNames(t *testing.T) {
	r := tagset.NewRegistry()

	assert.Equal(t, "us-east-1", r.RegionByShortName("USE1").Name)
	assert.Equal(t, "eu-west-1", r.RegionByShortName("EU").Name)
	assert.Nil(t, r.RegionByShortName("XX"))
	assert.Equal(t, "us-east-1", r.DefaultRegion().Name)
}
