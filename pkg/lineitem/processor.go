package lineitem

import (
	"strconv"
	"strings"
	"time"

	"github.com/Optum/tally/pkg/account/accountiface"
	"github.com/Optum/tally/pkg/product"
	"github.com/Optum/tally/pkg/product/productiface"
	"github.com/Optum/tally/pkg/reservation"
	"github.com/Optum/tally/pkg/resource"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/Optum/tally/pkg/timeseries"
	"github.com/sirupsen/logrus"
)

// CostMode selects how resource-level rollups are valued
type CostMode int

const (
	// CostModeBilled uses the raw billed cost from the file
	CostModeBilled CostMode = iota
	// CostModeModeled values reservation usage at the contracted rate
	CostModeModeled
)

// ContractRater exposes the contracted hourly rate lookup used when
// resource rollups are valued in modeled mode
type ContractRater interface {
	ContractRate(region *tagset.Region, usageType *tagset.UsageType, t int64) (float64, bool)
}

// The two timestamp layouts observed in detailed billing files
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
}

// Processed is the outcome of normalizing one billing row
type Processed struct {
	TagGroup *tagset.TagGroup
	Usage    float64
	Cost     float64
	Result   Result
}

// Processor normalizes raw billing rows into canonical tag groups and
// accumulates them into hour-indexed series. One Processor handles one
// monthly file; it is owned by the ingestion loop and never shared.
type Processor struct {
	registry           *tagset.Registry
	accounts           accountiface.Servicer
	products           productiface.Servicer
	resources          resource.Servicer
	rates              *reservation.RateCache
	contracts          ContractRater
	defaultUtilization tagset.UtilizationClass
	resourceCostMode   CostMode

	idx          columnIndexes
	monthStart   time.Time
	hoursInMonth int
	data         *CostUsageData
	resourceData *CostUsageData
}

// NewProcessorInput Input for creating a new Processor
type NewProcessorInput struct {
	Registry           *tagset.Registry
	Accounts           accountiface.Servicer
	Products           productiface.Servicer
	Resources          resource.Servicer
	Rates              *reservation.RateCache
	Contracts          ContractRater
	DefaultUtilization tagset.UtilizationClass
	ResourceCostMode   CostMode
	MonthStart         time.Time
}

// NewProcessor creates a new instance of the Processor
func NewProcessor(input NewProcessorInput) *Processor {
	return &Processor{
		registry:           input.Registry,
		accounts:           input.Accounts,
		products:           input.Products,
		resources:          input.Resources,
		rates:              input.Rates,
		contracts:          input.Contracts,
		defaultUtilization: input.DefaultUtilization,
		resourceCostMode:   input.ResourceCostMode,
		monthStart:         timeseries.MonthStart(input.MonthStart),
		hoursInMonth:       timeseries.HoursInMonth(input.MonthStart),
		data:               NewCostUsageData(),
		resourceData:       NewCostUsageData(),
	}
}

// Data returns the product-wide aggregate series
func (p *Processor) Data() *CostUsageData {
	return p.data
}

// ResourceData returns the resource-level series
func (p *Processor) ResourceData() *CostUsageData {
	return p.resourceData
}

// Process normalizes one row and, unless the row is ignored or deferred,
// books its usage and cost. Malformed rows never abort the batch: they are
// logged and reported as ignored.
func (p *Processor) Process(row []string, processingDelayed bool) Processed {
	ignored := Processed{Result: ResultIgnore}

	field := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	accountID := field(p.idx.account)
	productName := field(p.idx.product)
	rawUsageType := field(p.idx.usageType)
	rawOperation := field(p.idx.operation)
	quantity := field(p.idx.quantity)
	costField := field(p.idx.cost)

	if accountID == "" || productName == "" || rawUsageType == "" || rawOperation == "" || quantity == "" || costField == "" {
		return ignored
	}

	acct, err := p.accounts.ByID(accountID)
	if err != nil {
		logrus.WithField("account", accountID).Debug("skipping row for unknown account")
		return ignored
	}

	usage, err := strconv.ParseFloat(quantity, 64)
	if err != nil {
		logrus.WithField("quantity", quantity).Warn("skipping row with unparseable quantity")
		return ignored
	}
	cost, err := strconv.ParseFloat(costField, 64)
	if err != nil {
		logrus.WithField("cost", costField).Warn("skipping row with unparseable cost")
		return ignored
	}

	start, err := parseTime(field(p.idx.start))
	if err != nil {
		logrus.WithField("start", field(p.idx.start)).Warn("skipping row with unparseable start time")
		return ignored
	}
	// end is parsed for validity but booking is keyed off the start hour
	if endField := field(p.idx.end); endField != "" {
		if _, err := parseTime(endField); err != nil {
			logrus.WithField("end", endField).Warn("skipping row with unparseable end time")
			return ignored
		}
	}

	re := p.reform(rawItem{
		productName: productName,
		usageType:   rawUsageType,
		operation:   rawOperation,
		reserved:    field(p.idx.reserved) == "Y",
		cost:        cost,
	})

	zone := p.registry.Zone(re.region, field(p.idx.zone))
	description := field(p.idx.description)

	result := p.classify(re, zone, description, usage, cost, processingDelayed)

	tg := p.registry.GetTagGroup(acct, re.region, zone, re.product, re.operation, re.usageType, nil)
	out := Processed{TagGroup: tg, Usage: usage, Cost: cost, Result: result}
	if result == ResultIgnore || result == ResultDelay {
		return out
	}

	// cache the observed on-demand unit rate for overflow repricing
	if re.operation.IsOndemand() && cost > 0 && usage > 0 {
		p.rates.Record(tagset.OperationOndemandInstances, re.region, re.usageType, cost/usage)
	}

	p.book(tg, re, acct, field(p.idx.resource), row, start, usage, cost, result)
	return out
}

// book writes the row into the aggregate bucket and, when the resource
// resolver labels the row, into the resource-level bucket.
func (p *Processor) book(tg *tagset.TagGroup, re reformed, acct *tagset.Account,
	resourceID string, row []string, start time.Time, usage, cost float64, result Result) {

	hourIdx := int(start.Sub(p.monthStart) / time.Hour)

	var label string
	if resourceID != "" {
		label = p.resources.Resolve(acct, re.region, re.product, resourceID, row, start)
	}
	var rtg *tagset.TagGroup
	resourceCost := cost
	if label != "" {
		rtg = p.registry.GetTagGroup(acct, tg.Region, tg.Zone, tg.Product, tg.Operation,
			tg.UsageType, p.registry.ResourceGroup(label))
		if p.resourceCostMode == CostModeModeled && re.operation.IsReserved() && p.contracts != nil {
			if rate, ok := p.contracts.ContractRate(re.region, re.usageType, start.UnixMilli()); ok {
				resourceCost = usage * rate
			}
		}
	}

	add := func(hour int, u, c float64) {
		if hour < 0 || hour >= p.hoursInMonth {
			return
		}
		p.data.Usage(tg.Product).Add(hour, tg, u)
		p.data.Cost(tg.Product).Add(hour, tg, c)
		if rtg != nil {
			scale := 1.0
			if cost != 0 {
				scale = resourceCost / cost
			}
			p.resourceData.Usage(tg.Product).Add(hour, rtg, u)
			p.resourceData.Cost(tg.Product).Add(hour, rtg, c*scale)
		}
	}

	switch result {
	case ResultHourly:
		add(hourIdx, usage, cost)
	case ResultDaily:
		add((hourIdx/24)*24, usage, cost)
	case ResultMonthly:
		h := float64(p.hoursInMonth)
		for hour := 0; hour < p.hoursInMonth; hour++ {
			add(hour, usage/h, cost/h)
		}
	}
}

type rawItem struct {
	productName string
	usageType   string
	operation   string
	reserved    bool
	cost        float64
}

type reformed struct {
	region    *tagset.Region
	product   *tagset.Product
	operation *tagset.Operation
	usageType *tagset.UsageType

	// the region-stripped raw usage type, kept for classification
	rawUsageType string
}

// reform maps the raw (operation, usage type, product) triple onto the
// canonical dimension values.
func (p *Processor) reform(raw rawItem) reformed {
	re := reformed{}

	// a recognized region short code prefixes the usage type; everything
	// else defaults to us-east-1
	ut := raw.usageType
	re.region = p.registry.DefaultRegion()
	if i := strings.Index(ut, "-"); i > 0 {
		if region := p.registry.RegionByShortName(ut[:i]); region != nil {
			re.region = region
			ut = ut[i+1:]
		}
	}
	re.rawUsageType = ut

	re.product = p.products.ByRawName(raw.productName)

	// product overrides keyed off the usage type
	switch {
	case ut == "EBS Snapshot Copy":
		re.product = p.mustProduct(product.Ebs)
	case strings.HasPrefix(ut, "ElasticIP:"):
		re.product = p.mustProduct(product.Eip)
	case strings.HasPrefix(ut, "EBS:"), strings.HasPrefix(ut, "EBSOptimized:"):
		re.product = p.mustProduct(product.Ebs)
	case strings.HasPrefix(ut, "CW:"):
		re.product = p.mustProduct(product.CloudWatch)
	}

	re.operation = tagset.OperationOndemandInstances
	utName := ut

	if strings.HasPrefix(raw.operation, "RunInstances") || strings.HasPrefix(raw.operation, "RunComputeNode") {
		instanceType := "m1.small"
		if i := strings.Index(ut, ":"); i >= 0 && i+1 < len(ut) {
			instanceType = ut[i+1:]
		}

		utilClass := p.defaultUtilization
		switch {
		case strings.HasPrefix(ut, "HeavyUsage"):
			utilClass = tagset.UtilizationHeavy
		case strings.HasPrefix(ut, "MediumUsage"):
			utilClass = tagset.UtilizationMedium
		case strings.HasPrefix(ut, "LightUsage"):
			utilClass = tagset.UtilizationLight
		}

		if raw.reserved {
			if raw.cost == 0 {
				re.operation = tagset.OperationReservedInstancesFixed
			} else {
				re.operation = tagset.ReservedOperation(utilClass)
			}
		}

		utName = instanceType
		if os := osSuffix(raw.operation); os != "" {
			utName = instanceType + "." + os
		}

		re.product = p.products.InstanceVariant(re.product)
	}

	if utName == "Unknown" || utName == "Not Applicable" {
		utName = re.product.Name
	}

	re.usageType = p.registry.UsageType(utName, tagset.InferUnit(utName, re.operation))
	return re
}

// classify assigns the timing bucket for a reformed row
func (p *Processor) classify(re reformed, zone *tagset.Zone, description string,
	usage, cost float64, processingDelayed bool) Result {

	// reserved instance rows without a zone carry no capacity on the first
	// pass; they reappear with real usage once the reservation settles
	if re.product.Name == product.Ec2Instance && re.operation.IsReserved() &&
		zone == nil && usage == 0 && !processingDelayed {
		return ResultIgnore
	}

	result := ResultHourly

	if re.product.Name == product.Redshift && re.operation.IsReserved() && cost != 0 {
		result = delayThenMonthly(processingDelayed)
	}

	if strings.HasPrefix(re.rawUsageType, "PrevMon-DataXfer-") || re.rawUsageType == "CloudHSMUpfront" {
		result = delayThenMonthly(processingDelayed)
	}

	if strings.Contains(description, "-month") {
		result = ResultMonthly
	}

	if re.product.Name == product.Ebs && strings.Contains(re.rawUsageType, "SnapshotUsage") {
		result = ResultDaily
	}
	if strings.Contains(re.rawUsageType, "ChargedBackupUsage") {
		result = ResultDaily
	}

	// storage byte-hours are metered daily no matter what the rules above
	// decided
	if strings.HasPrefix(re.rawUsageType, "TimedStorage-ByteHrs") {
		result = ResultDaily
	}

	return result
}

func delayThenMonthly(processingDelayed bool) Result {
	if processingDelayed {
		return ResultMonthly
	}
	return ResultDelay
}

func (p *Processor) mustProduct(name string) *tagset.Product {
	prod, _ := p.products.ByCanonicalName(name)
	return prod
}

// osSuffix maps the operation code suffix onto an OS label. Linux rows
// carry no code and get no suffix.
func osSuffix(operation string) string {
	i := strings.Index(operation, ":")
	if i < 0 {
		return ""
	}
	switch operation[i+1:] {
	case "0002":
		return "windows"
	}
	return ""
}

func parseTime(s string) (time.Time, error) {
	var err error
	var t time.Time
	for _, layout := range timeLayouts {
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
