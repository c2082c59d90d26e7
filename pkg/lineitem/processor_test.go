package lineitem_test

import (
	"testing"
	"time"

	"github.com/Optum/tally/pkg/account"
	"github.com/Optum/tally/pkg/lineitem"
	"github.com/Optum/tally/pkg/product"
	"github.com/Optum/tally/pkg/reservation"
	"github.com/Optum/tally/pkg/resource"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHeader = []string{
	"InvoiceID", "PayerAccountId", "LinkedAccountId", "RecordType",
	"ProductName", "UsageType", "Operation", "AvailabilityZone",
	"ReservedInstance", "ItemDescription", "UsageStartDate", "UsageEndDate",
	"UsageQuantity", "UnBlendedRate", "UnBlendedCost", "ResourceId", "user:Env",
}

type testRow struct {
	account     string
	productName string
	usageType   string
	operation   string
	zone        string
	reserved    string
	description string
	start       string
	end         string
	quantity    string
	rate        string
	cost        string
	resourceID  string
}

func (r testRow) fields() []string {
	return []string{
		"inv", "999999999999", r.account, "LineItem",
		r.productName, r.usageType, r.operation, r.zone,
		r.reserved, r.description, r.start, r.end,
		r.quantity, r.rate, r.cost, r.resourceID, "",
	}
}

type fixture struct {
	processor *lineitem.Processor
	registry  *tagset.Registry
	rates     *reservation.RateCache
}

func newFixture(t *testing.T) *fixture {
	registry := tagset.NewRegistry()
	accounts, err := account.NewService(account.NewServiceInput{
		Registry: registry,
		Accounts: []account.Config{{ID: "111111111111", Name: "prod"}},
	})
	require.Nil(t, err)

	rates := reservation.NewRateCache()
	processor := lineitem.NewProcessor(lineitem.NewProcessorInput{
		Registry:           registry,
		Accounts:           accounts,
		Products:           product.NewService(registry),
		Resources:          &resource.PassthroughService{},
		Rates:              rates,
		DefaultUtilization: tagset.UtilizationHeavy,
		MonthStart:         time.Date(2013, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Nil(t, processor.InitIndexes(testHeader, true, false))
	return &fixture{processor: processor, registry: registry, rates: rates}
}

func baseRow() testRow {
	return testRow{
		account:     "111111111111",
		productName: "Amazon Elastic Compute Cloud",
		usageType:   "USE1-BoxUsage:m1.small",
		operation:   "RunInstances:0002",
		zone:        "us-east-1a",
		reserved:    "",
		description: "per hour",
		start:       "2013-04-01 05:00:00",
		end:         "2013-04-01 06:00:00",
		quantity:    "2",
		rate:        "0.25",
		cost:        "0.5",
		resourceID:  "i-12345",
	}
}

func TestProcessInstanceRow(t *testing.T) {
	f := newFixture(t)

	got := f.processor.Process(baseRow().fields(), false)

	assert.Equal(t, lineitem.ResultHourly, got.Result)
	require.NotNil(t, got.TagGroup)
	assert.Equal(t, "us-east-1", got.TagGroup.Region.Name)
	assert.Equal(t, product.Ec2Instance, got.TagGroup.Product.Name)
	assert.Equal(t, "m1.small.windows", got.TagGroup.UsageType.Name)
	assert.Same(t, tagset.OperationOndemandInstances, got.TagGroup.Operation)
	assert.Equal(t, "us-east-1a", got.TagGroup.Zone.Name)

	usage := f.processor.Data().Usage(got.TagGroup.Product)
	cost := f.processor.Data().Cost(got.TagGroup.Product)
	assert.Equal(t, 2.0, usage.Get(5, got.TagGroup))
	assert.Equal(t, 0.5, cost.Get(5, got.TagGroup))
}

func TestProcessInstanceTypeDefaults(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.usageType = "USE1-BoxUsage"
	row.operation = "RunInstances"

	got := f.processor.Process(row.fields(), false)

	assert.Equal(t, lineitem.ResultHourly, got.Result)
	assert.Equal(t, "m1.small", got.TagGroup.UsageType.Name)
}

func TestProcessReservedOperations(t *testing.T) {
	tests := []struct {
		name     string
		usage    string
		cost     string
		expected *tagset.Operation
	}{
		{
			name:     "nonzero cost maps to the default utilization class",
			usage:    "1",
			cost:     "0.1",
			expected: tagset.OperationReservedInstancesHeavy,
		},
		{
			name:     "zero cost maps to fixed",
			usage:    "1",
			cost:     "0",
			expected: tagset.OperationReservedInstancesFixed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			row := baseRow()
			row.reserved = "Y"
			row.quantity = tt.usage
			row.cost = tt.cost

			got := f.processor.Process(row.fields(), false)

			assert.Equal(t, lineitem.ResultHourly, got.Result)
			assert.Same(t, tt.expected, got.TagGroup.Operation)
		})
	}
}

func TestProcessUtilizationFromUsageType(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.reserved = "Y"
	row.usageType = "USE1-MediumUsage:m1.large"
	row.cost = "0.1"

	got := f.processor.Process(row.fields(), false)

	assert.Same(t, tagset.OperationReservedInstancesMedium, got.TagGroup.Operation)
	assert.Equal(t, "m1.large.windows", got.TagGroup.UsageType.Name)
}

func TestReservedRowWithoutZoneIgnoredOnFirstPass(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.reserved = "Y"
	row.zone = ""
	row.quantity = "0"
	row.cost = "0"

	first := f.processor.Process(row.fields(), false)
	assert.Equal(t, lineitem.ResultIgnore, first.Result)

	second := f.processor.Process(row.fields(), true)
	assert.Equal(t, lineitem.ResultHourly, second.Result)
}

func TestSnapshotUsageBookedDaily(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.usageType = "EBS:SnapshotUsage"
	row.operation = "CreateSnapshot"
	row.zone = ""
	row.description = "per GB-month of snapshot data stored"
	row.start = "2013-04-02 05:00:00"
	row.end = "2013-04-02 06:00:00"
	row.quantity = "10"
	row.cost = "1.0"

	got := f.processor.Process(row.fields(), false)

	assert.Equal(t, lineitem.ResultDaily, got.Result)
	assert.Equal(t, product.Ebs, got.TagGroup.Product.Name)

	// daily rows are booked at the first hour of their day
	usage := f.processor.Data().Usage(got.TagGroup.Product)
	assert.Equal(t, 10.0, usage.Get(24, got.TagGroup))
	assert.Equal(t, 0.0, usage.Get(29, got.TagGroup))
}

func TestChargedBackupUsageBookedDaily(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.productName = "Amazon RDS Service"
	row.usageType = "RDS:ChargedBackupUsage"
	row.operation = "CreateDBSnapshot"
	row.zone = ""
	row.quantity = "5"
	row.cost = "0.5"

	got := f.processor.Process(row.fields(), false)

	assert.Equal(t, lineitem.ResultDaily, got.Result)
	assert.Equal(t, product.Rds, got.TagGroup.Product.Name)
}

func TestTimedStorageForcedDaily(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.productName = "Amazon Simple Storage Service"
	row.usageType = "TimedStorage-ByteHrs"
	row.operation = "StandardStorage"
	row.zone = ""
	row.description = "$0.095 per GB-month of storage used"
	row.quantity = "100"
	row.cost = "9.5"

	got := f.processor.Process(row.fields(), false)

	// the monthly description rule loses to the byte-hours override
	assert.Equal(t, lineitem.ResultDaily, got.Result)
	assert.Equal(t, product.S3, got.TagGroup.Product.Name)
}

func TestMonthlyDescriptionSpreadAcrossMonth(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.productName = "Amazon Simple Storage Service"
	row.usageType = "Requests-Tier1"
	row.operation = "PutObject"
	row.zone = ""
	row.description = "flat fee per GB-month"
	row.quantity = "720"
	row.cost = "72"

	got := f.processor.Process(row.fields(), false)

	assert.Equal(t, lineitem.ResultMonthly, got.Result)

	usage := f.processor.Data().Usage(got.TagGroup.Product)
	cost := f.processor.Data().Cost(got.TagGroup.Product)
	assert.InEpsilon(t, 1.0, usage.Get(0, got.TagGroup), 1e-9)
	assert.InEpsilon(t, 1.0, usage.Get(719, got.TagGroup), 1e-9)
	assert.InEpsilon(t, 0.1, cost.Get(360, got.TagGroup), 1e-9)
}

func TestPrevMonDataXferDelayedThenMonthly(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.usageType = "PrevMon-DataXfer-Out-Bytes"
	row.operation = "DataTransfer"
	row.zone = ""
	row.quantity = "720"
	row.cost = "7.2"

	first := f.processor.Process(row.fields(), false)
	assert.Equal(t, lineitem.ResultDelay, first.Result)

	// nothing is booked until the replay pass
	usage := f.processor.Data().Usage(first.TagGroup.Product)
	assert.Equal(t, 0.0, usage.Get(0, first.TagGroup))

	second := f.processor.Process(row.fields(), true)
	assert.Equal(t, lineitem.ResultMonthly, second.Result)
	assert.InEpsilon(t, 1.0, usage.Get(0, second.TagGroup), 1e-9)
}

func TestRedshiftReservedDeferred(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.productName = "Amazon Redshift"
	row.usageType = "Node:dw.hs1.xlarge"
	row.operation = "RunComputeNode:0001"
	row.reserved = "Y"
	row.quantity = "1"
	row.cost = "10"

	got := f.processor.Process(row.fields(), false)

	assert.Equal(t, lineitem.ResultDelay, got.Result)
	assert.Equal(t, product.Redshift, got.TagGroup.Product.Name)
	assert.Equal(t, "dw.hs1.xlarge", got.TagGroup.UsageType.Name)
}

func TestUnknownUsageTypeFallsBackToProduct(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.productName = "Amazon Simple Storage Service"
	row.usageType = "Unknown"
	row.operation = "GetObject"
	row.zone = ""

	got := f.processor.Process(row.fields(), false)

	assert.Equal(t, product.S3, got.TagGroup.UsageType.Name)
}

func TestMalformedRowsIgnored(t *testing.T) {
	mutate := func(fn func(*testRow)) []string {
		row := baseRow()
		fn(&row)
		return row.fields()
	}

	tests := []struct {
		name string
		row  []string
	}{
		{"unknown account", mutate(func(r *testRow) { r.account = "000000000000" })},
		{"empty usage type", mutate(func(r *testRow) { r.usageType = "" })},
		{"bad quantity", mutate(func(r *testRow) { r.quantity = "two" })},
		{"bad cost", mutate(func(r *testRow) { r.cost = "free" })},
		{"bad start time", mutate(func(r *testRow) { r.start = "April 1" })},
		{"truncated row", baseRow().fields()[:6]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			got := f.processor.Process(tt.row, false)
			assert.Equal(t, lineitem.ResultIgnore, got.Result)
			assert.Empty(t, f.processor.Data().Products())
		})
	}
}

func TestISOTimestampsAccepted(t *testing.T) {
	f := newFixture(t)

	row := baseRow()
	row.start = "2013-04-01T05:00:00Z"
	row.end = "2013-04-01T06:00:00Z"

	got := f.processor.Process(row.fields(), false)

	assert.Equal(t, lineitem.ResultHourly, got.Result)
	assert.Equal(t, 2.0, f.processor.Data().Usage(got.TagGroup.Product).Get(5, got.TagGroup))
}

func TestOndemandRateRecorded(t *testing.T) {
	f := newFixture(t)

	got := f.processor.Process(baseRow().fields(), false)

	rate, ok := f.rates.Get(tagset.OperationOndemandInstances, got.TagGroup.Region, got.TagGroup.UsageType)
	require.True(t, ok)
	assert.Equal(t, 0.25, rate)
}

func TestResourceBucketLabeled(t *testing.T) {
	f := newFixture(t)

	got := f.processor.Process(baseRow().fields(), false)

	rtg := f.registry.GetTagGroup(got.TagGroup.Account, got.TagGroup.Region,
		got.TagGroup.Zone, got.TagGroup.Product, got.TagGroup.Operation,
		got.TagGroup.UsageType, f.registry.ResourceGroup("i-12345"))

	usage := f.processor.ResourceData().Usage(got.TagGroup.Product)
	cost := f.processor.ResourceData().Cost(got.TagGroup.Product)
	assert.Equal(t, 2.0, usage.Get(5, rtg))
	assert.Equal(t, 0.5, cost.Get(5, rtg))
}

func TestNoResourceBucketWithoutResolver(t *testing.T) {
	registry := tagset.NewRegistry()
	accounts, err := account.NewService(account.NewServiceInput{
		Registry: registry,
		Accounts: []account.Config{{ID: "111111111111", Name: "prod"}},
	})
	require.Nil(t, err)

	processor := lineitem.NewProcessor(lineitem.NewProcessorInput{
		Registry:           registry,
		Accounts:           accounts,
		Products:           product.NewService(registry),
		Resources:          &resource.NoneService{},
		Rates:              reservation.NewRateCache(),
		DefaultUtilization: tagset.UtilizationHeavy,
		MonthStart:         time.Date(2013, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Nil(t, processor.InitIndexes(testHeader, true, false))

	got := processor.Process(baseRow().fields(), false)

	assert.Equal(t, lineitem.ResultHourly, got.Result)
	assert.Empty(t, processor.ResourceData().Products())
}
