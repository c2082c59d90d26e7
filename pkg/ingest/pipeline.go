package ingest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Optum/tally/pkg/account/accountiface"
	"github.com/Optum/tally/pkg/common"
	"github.com/Optum/tally/pkg/errors"
	"github.com/Optum/tally/pkg/lineitem"
	"github.com/Optum/tally/pkg/product"
	"github.com/Optum/tally/pkg/product/productiface"
	"github.com/Optum/tally/pkg/reservation"
	"github.com/Optum/tally/pkg/resource"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/Optum/tally/pkg/timeseries"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StateKey is where the ingest watermark lives in the work bucket
const StateKey = "state/ingest.json"

// StorageProvider returns the Storager to use for a billing owner account.
// Deployments that gate their billing buckets behind per-payer roles plug
// in assume-role clients here; the default uses the shared client.
type StorageProvider func(accountID string) common.Storager

// Servicer runs ingestion cycles
type Servicer interface {
	Run(ctx context.Context) error
}

// Service discovers monthly billing reports, normalizes them through the
// two-pass line-item processor, applies reservation allocation, and
// persists the consolidated rollups.
type Service struct {
	registry     *tagset.Registry
	accounts     accountiface.Servicer
	products     productiface.Servicer
	resources    resource.Servicer
	reservations *reservation.Service
	storage      common.Storager
	storageFor   StorageProvider
	notifier     common.Notificationer
	rollups      *RollupWriter
	watermark    *Watermark

	billingBuckets     []string
	workBucket         string
	workDir            string
	startMonth         time.Time
	defaultUtilization tagset.UtilizationClass
	useBlendedCost     bool
	resourceCostMode   lineitem.CostMode
	costPerMetricHour  float64

	alertTopicArn  string
	alertThreshold float64
	alertCooldown  time.Duration
	lastAlert      time.Time

	now func() time.Time
}

// NewServiceInput Input for creating a new Service
type NewServiceInput struct {
	Registry     *tagset.Registry
	Accounts     accountiface.Servicer
	Products     productiface.Servicer
	Resources    resource.Servicer
	Reservations *reservation.Service
	Storage      common.Storager
	StorageFor   StorageProvider
	Notifier     common.Notificationer

	BillingBuckets     []string
	WorkBucket         string
	WorkDir            string
	StartMonth         time.Time
	DefaultUtilization tagset.UtilizationClass
	UseBlendedCost     bool
	ResourceCostMode   lineitem.CostMode
	CostPerMetricHour  float64

	AlertTopicArn  string
	AlertThreshold float64
	AlertCooldown  time.Duration
}

// NewService creates a new instance of the Service
func NewService(input NewServiceInput) (*Service, error) {
	if len(input.BillingBuckets) == 0 {
		return nil, errors.NewValidation("ingest", fmt.Errorf("no billing buckets configured"))
	}
	if input.WorkBucket == "" {
		return nil, errors.NewValidation("ingest", fmt.Errorf("no work bucket configured"))
	}

	svc := &Service{
		registry:           input.Registry,
		accounts:           input.Accounts,
		products:           input.Products,
		resources:          input.Resources,
		reservations:       input.Reservations,
		storage:            input.Storage,
		storageFor:         input.StorageFor,
		notifier:           input.Notifier,
		billingBuckets:     input.BillingBuckets,
		workBucket:         input.WorkBucket,
		workDir:            input.WorkDir,
		startMonth:         timeseries.MonthStart(input.StartMonth),
		defaultUtilization: input.DefaultUtilization,
		useBlendedCost:     input.UseBlendedCost,
		resourceCostMode:   input.ResourceCostMode,
		costPerMetricHour:  input.CostPerMetricHour,
		alertTopicArn:      input.AlertTopicArn,
		alertThreshold:     input.AlertThreshold,
		alertCooldown:      input.AlertCooldown,
		now:                time.Now,
	}
	if svc.workDir == "" {
		svc.workDir = os.TempDir()
	}
	if svc.storageFor == nil {
		svc.storageFor = func(string) common.Storager { return svc.storage }
	}
	svc.rollups = NewRollupWriter(NewRollupWriterInput{
		Storage:    input.Storage,
		Bucket:     input.WorkBucket,
		Registry:   input.Registry,
		Accounts:   input.Accounts,
		Products:   input.Products,
		StartMonth: input.StartMonth,
	})
	svc.watermark = NewWatermark(input.Storage, input.WorkBucket, StateKey)
	return svc, nil
}

// Run executes one ingestion cycle: discover changed billing reports,
// process each independently, and persist the watermark. A failing file is
// logged and retried on the next cycle without blocking the others.
func (s *Service) Run(ctx context.Context) error {
	if err := s.watermark.Load(); err != nil {
		return err
	}

	files, err := s.discover()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	var failures []error
	for _, f := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log := logrus.WithFields(logrus.Fields{
			"run":   uuid.New().String(),
			"file":  f.String(),
			"month": f.MonthKey(),
		})
		log.Info("processing billing file")
		if err := s.processFile(f); err != nil {
			log.WithError(err).Error("billing file failed, will retry next cycle")
			failures = append(failures, err)
			continue
		}
		s.watermark.MarkProcessed(f, s.now())
		log.Info("billing file processed")
	}

	if err := s.watermark.Save(); err != nil {
		failures = append(failures, err)
	}
	if len(failures) > 0 {
		return errors.NewMultiError("ingest cycle", failures)
	}
	return nil
}

// discover lists the billing buckets and returns the new or rewritten
// reports, oldest month first so consolidations build forward.
func (s *Service) discover() ([]*BillingFile, error) {
	var files []*BillingFile
	for _, bucket := range s.billingBuckets {
		objects, err := s.storage.ListObjects(bucket, "")
		if err != nil {
			return nil, errors.NewInternalServer("listing billing bucket "+bucket, err)
		}
		for _, obj := range objects {
			f, ok := ParseBillingKey(bucket, obj)
			if !ok {
				continue
			}
			if s.watermark.ShouldProcess(f) {
				files = append(files, f)
			}
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].Month.Equal(files[j].Month) {
			return files[i].Month.Before(files[j].Month)
		}
		return files[i].Key < files[j].Key
	})
	return files, nil
}

func (s *Service) processFile(f *BillingFile) error {
	storage := s.storageFor(f.AccountID)

	csvPath, err := fetchBillingCSV(storage, f, s.workDir)
	if err != nil {
		return err
	}
	defer os.Remove(csvPath)

	rates := reservation.NewRateCache()
	var contracts lineitem.ContractRater
	if s.reservations != nil {
		contracts = s.reservations
	}
	processor := lineitem.NewProcessor(lineitem.NewProcessorInput{
		Registry:           s.registry,
		Accounts:           s.accounts,
		Products:           s.products,
		Resources:          s.resources,
		Rates:              rates,
		Contracts:          contracts,
		DefaultUtilization: s.defaultUtilization,
		ResourceCostMode:   s.resourceCostMode,
		MonthStart:         f.Month,
	})

	// pass 1: book everything except rows the classifier defers
	var delayed [][]string
	err = forEachRow(csvPath,
		func(header []string) error {
			return processor.InitIndexes(header, f.HasResourceTags, s.useBlendedCost)
		},
		func(row []string) error {
			if processor.Process(row, false).Result == lineitem.ResultDelay {
				delayed = append(delayed, row)
			}
			return nil
		})
	if err != nil {
		return err
	}

	// pass 2: replay deferred rows now that the rate cache is warm
	for _, row := range delayed {
		processor.Process(row, true)
	}

	if err := s.processMetrics(storage, f, processor.Data()); err != nil {
		return err
	}

	data := processor.Data()
	resourceData := processor.ResourceData()

	// the current month only has data through the last complete hour;
	// drop the speculative tail so consolidations stay truthful
	if elapsed, partial := s.elapsedHours(f.Month); partial {
		data.Cut(elapsed)
		resourceData.Cut(elapsed)
	}

	if err := s.applyReservations(data, f.Month, rates); err != nil {
		return err
	}

	if err := s.writeRollups(f, data, resourceData); err != nil {
		return err
	}

	if err := s.archive(f); err != nil {
		return err
	}

	s.maybeAlert(f, data)
	return nil
}

// elapsedHours reports the number of complete hours in the month so far,
// and whether the month is still in progress
func (s *Service) elapsedHours(month time.Time) (int, bool) {
	now := s.now().UTC()
	if !timeseries.MonthStart(now).Equal(month) {
		return 0, false
	}
	return int(now.Sub(month) / time.Hour), true
}

func (s *Service) applyReservations(data *lineitem.CostUsageData, month time.Time,
	rates *reservation.RateCache) error {
	if s.reservations == nil {
		return nil
	}
	instanceProduct, err := s.products.ByCanonicalName(product.Ec2Instance)
	if err != nil {
		return err
	}
	return s.reservations.Apply(
		data.Usage(instanceProduct), data.Cost(instanceProduct), month, rates)
}

func (s *Service) writeRollups(f *BillingFile, data, resourceData *lineitem.CostUsageData) error {
	for _, p := range data.Products() {
		if err := s.rollups.WriteMonth(MetricUsage, p.Name, f.Month, data.Usage(p)); err != nil {
			return err
		}
		if err := s.rollups.WriteMonth(MetricCost, p.Name, f.Month, data.Cost(p)); err != nil {
			return err
		}

		keys := map[*tagset.TagGroup]struct{}{}
		for _, tg := range data.Usage(p).TagGroups() {
			keys[tg] = struct{}{}
		}
		for _, tg := range data.Cost(p).TagGroups() {
			keys[tg] = struct{}{}
		}
		index := make([]*tagset.TagGroup, 0, len(keys))
		for tg := range keys {
			index = append(index, tg)
		}
		sort.Slice(index, func(i, j int) bool { return index[i].Compare(index[j]) < 0 })
		if err := s.rollups.WriteIndex(p.Name, f.Month, index); err != nil {
			return err
		}
	}

	for _, p := range resourceData.Products() {
		if err := s.rollups.WriteResourceHourly(MetricUsage, p.Name, f.Month, resourceData.Usage(p)); err != nil {
			return err
		}
		if err := s.rollups.WriteResourceHourly(MetricCost, p.Name, f.Month, resourceData.Cost(p)); err != nil {
			return err
		}
	}
	return nil
}

// archive copies the processed report into the work bucket for provenance
func (s *Service) archive(f *BillingFile) error {
	destKey := "archive/" + f.Key
	if err := s.storage.CopyObject(f.Bucket, f.Key, s.workBucket, destKey); err != nil {
		return errors.NewInternalServer("archiving "+f.String(), err)
	}
	return nil
}

// MetricsKey returns the companion metric file key for a billing report
func MetricsKey(billingKey string) string {
	return strings.TrimSuffix(billingKey, ".csv.zip") + "-metrics.csv"
}

// processMetrics books the optional companion metric file. Each row carries
// a usage start timestamp, account id, region name, and metric-hour count;
// rows are priced at the configured cost per metric-hour under the monitor
// product.
func (s *Service) processMetrics(storage common.Storager, f *BillingFile,
	data *lineitem.CostUsageData) error {
	if s.costPerMetricHour == 0 {
		return nil
	}

	key := MetricsKey(f.Key)
	_, exists, err := storage.HeadObject(f.Bucket, key)
	if err != nil || !exists {
		return err
	}

	body, err := storage.GetObject(f.Bucket, key)
	if err != nil {
		return err
	}

	monitorProduct, err := s.products.ByCanonicalName(product.Monitor)
	if err != nil {
		return err
	}
	usageType := s.registry.UsageType("MetricHrs", "hours")
	hoursInMonth := timeseries.HoursInMonth(f.Month)

	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			continue
		}
		start, err := time.Parse("2006-01-02 15:04:05", strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		acct, err := s.accounts.ByID(strings.TrimSpace(fields[1]))
		if err != nil {
			continue
		}
		region := s.registry.Region(strings.TrimSpace(fields[2]))
		if region == nil {
			region = s.registry.DefaultRegion()
		}
		count, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
		if err != nil {
			continue
		}

		hour := int(start.UTC().Sub(f.Month) / time.Hour)
		if hour < 0 || hour >= hoursInMonth {
			logrus.WithFields(logrus.Fields{"file": f.Key, "line": line}).
				Warn("metric timestamp outside report month, skipping")
			continue
		}
		tg := s.registry.GetTagGroup(acct, region, nil, monitorProduct,
			tagset.OperationOndemandInstances, usageType, nil)
		data.Usage(monitorProduct).Add(hour, tg, count)
		data.Cost(monitorProduct).Add(hour, tg, count*s.costPerMetricHour)
	}
	return nil
}

// maybeAlert publishes a cost-spike notification when the most recent
// complete hour's on-demand spend crosses the threshold. Only the current
// month is watched, and alerts respect the cooldown window.
func (s *Service) maybeAlert(f *BillingFile, data *lineitem.CostUsageData) {
	if s.notifier == nil || s.alertTopicArn == "" || s.alertThreshold <= 0 {
		return
	}
	elapsed, partial := s.elapsedHours(f.Month)
	if !partial || elapsed == 0 {
		return
	}
	if s.now().Sub(s.lastAlert) < s.alertCooldown {
		return
	}

	hour := elapsed - 1
	total := 0.0
	for _, p := range data.Products() {
		for tg, v := range data.Cost(p).Hour(hour) {
			if tg.Operation.IsOndemand() {
				total += v
			}
		}
	}
	if total <= s.alertThreshold {
		return
	}

	subject := "On-demand cost spike detected"
	message := fmt.Sprintf(
		"On-demand cost for hour starting %s reached $%.2f (threshold $%.2f).",
		f.Month.Add(time.Duration(hour)*time.Hour).Format(time.RFC3339),
		total, s.alertThreshold)
	if _, err := s.notifier.PublishSubjectMessage(&s.alertTopicArn, &subject, &message); err != nil {
		logrus.WithError(err).Error("failed to publish cost alert")
		return
	}
	s.lastAlert = s.now()
}
