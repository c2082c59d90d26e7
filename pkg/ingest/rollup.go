package ingest

import (
	"bytes"
	"path"
	"strings"
	"time"

	"github.com/Optum/tally/pkg/common"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/Optum/tally/pkg/timeseries"
	"github.com/pkg/errors"
)

// Metric names the two series kinds written per product
const (
	MetricCost  = "cost"
	MetricUsage = "usage"
)

// RollupWriter persists the consolidated series for one processed month:
// the hourly chunk, the merged daily year object, recomputed weekly slots,
// and the monthly totals object. All merges are read-modify-write against
// the work bucket; slots covered by the month are replaced wholesale so
// reprocessing a month converges instead of double counting.
type RollupWriter struct {
	storage    common.Storager
	bucket     string
	registry   *tagset.Registry
	accounts   tagset.AccountResolver
	products   tagset.ProductResolver
	startMonth time.Time
}

// NewRollupWriterInput Input for creating a new RollupWriter
type NewRollupWriterInput struct {
	Storage    common.Storager
	Bucket     string
	Registry   *tagset.Registry
	Accounts   tagset.AccountResolver
	Products   tagset.ProductResolver
	StartMonth time.Time
}

// NewRollupWriter creates a new instance of the RollupWriter
func NewRollupWriter(input NewRollupWriterInput) *RollupWriter {
	return &RollupWriter{
		storage:    input.Storage,
		bucket:     input.Bucket,
		registry:   input.Registry,
		accounts:   input.Accounts,
		products:   input.Products,
		startMonth: timeseries.MonthStart(input.StartMonth),
	}
}

// HourlyKey returns the object key for a product's hourly chunk
func HourlyKey(metric string, product string, month time.Time) string {
	return path.Join("data", "hourly", metric, product, month.Format("2006-01"))
}

// ResourceHourlyKey returns the object key for a product's resource-level
// hourly chunk
func ResourceHourlyKey(metric string, product string, month time.Time) string {
	return path.Join("data", "resource", "hourly", metric, product, month.Format("2006-01"))
}

// DailyKey returns the object key for a product's daily year object
func DailyKey(metric string, product string, year time.Time) string {
	return path.Join("data", "daily", metric, product, year.Format("2006"))
}

// WeeklyKey returns the object key for a product's rolling weekly object
func WeeklyKey(metric string, product string) string {
	return path.Join("data", "weekly", metric, product)
}

// MonthlyKey returns the object key for a product's rolling monthly object
func MonthlyKey(metric string, product string) string {
	return path.Join("data", "monthly", metric, product)
}

// IndexKey returns the object key for a product's tag-group index
func IndexKey(product string, month time.Time) string {
	return path.Join("data", "index", product, month.Format("2006-01"))
}

// WriteMonth persists the month's hourly series for one product and metric
// and folds it into the daily, weekly, and monthly consolidations.
func (w *RollupWriter) WriteMonth(metric string, product string, month time.Time,
	hourly *timeseries.ReadWriteData) error {

	month = timeseries.MonthStart(month)

	if err := w.writeData(HourlyKey(metric, product, month), hourly); err != nil {
		return err
	}

	daily := timeseries.ConsolidateDaily(hourly)
	yearData, err := w.mergeDaily(metric, product, month, daily)
	if err != nil {
		return err
	}

	if err := w.recomputeWeekly(metric, product, month, yearData); err != nil {
		return err
	}

	return w.mergeMonthly(metric, product, month, hourly)
}

// mergeDaily folds the month's daily series into the year object and
// returns the merged year data for the weekly recompute.
func (w *RollupWriter) mergeDaily(metric string, product string, month time.Time,
	daily *timeseries.ReadWriteData) (*timeseries.ReadWriteData, error) {

	yearStart := timeseries.YearStart(month)
	key := DailyKey(metric, product, yearStart)
	yearData, _, err := w.readData(key)
	if err != nil {
		return nil, err
	}

	offset := daysBetween(yearStart, month)
	for day := 0; day < timeseries.DaysInMonth(month); day++ {
		yearData.ClearHour(offset + day)
		for tg, v := range daily.Hour(day) {
			yearData.Put(offset+day, tg, v)
		}
	}

	if err := w.writeData(key, yearData); err != nil {
		return nil, err
	}
	return yearData, nil
}

// recomputeWeekly rebuilds every week slot the month touches from daily
// data. Weeks straddling a year boundary pull their leading days from the
// previous year object.
func (w *RollupWriter) recomputeWeekly(metric string, product string, month time.Time,
	yearData *timeseries.ReadWriteData) error {

	yearStart := timeseries.YearStart(month)
	weeklyStart := timeseries.WeekAnchor(w.startMonth)

	var prevYear *timeseries.ReadWriteData
	firstWeek := timeseries.WeekAnchor(month)
	if firstWeek.Before(yearStart) {
		prev, exists, err := w.readData(DailyKey(metric, product, yearStart.AddDate(-1, 0, 0)))
		if err != nil {
			return err
		}
		if exists {
			prevYear = prev
		}
	}

	key := WeeklyKey(metric, product)
	weekly, _, err := w.readData(key)
	if err != nil {
		return err
	}

	monthEnd := timeseries.NextMonth(month)
	for week := firstWeek; week.Before(monthEnd); week = week.AddDate(0, 0, 7) {
		if week.Before(weeklyStart) {
			continue
		}
		idx := timeseries.WeeksBetween(weeklyStart, week)
		weekly.ClearHour(idx)
		for day := 0; day < 7; day++ {
			dayStart := week.AddDate(0, 0, day)
			series := yearData
			base := yearStart
			if dayStart.Before(yearStart) {
				if prevYear == nil {
					continue
				}
				series = prevYear
				base = yearStart.AddDate(-1, 0, 0)
			}
			for tg, v := range series.Hour(daysBetween(base, dayStart)) {
				weekly.Add(idx, tg, v)
			}
		}
	}

	return w.writeData(key, weekly)
}

// mergeMonthly overwrites the month's slot in the rolling monthly object,
// indexed by months elapsed since the configured start month.
func (w *RollupWriter) mergeMonthly(metric string, product string, month time.Time,
	hourly *timeseries.ReadWriteData) error {

	idx := timeseries.MonthsBetween(w.startMonth, month)
	if idx < 0 {
		return errors.Errorf("month %s precedes start month %s",
			month.Format("2006-01"), w.startMonth.Format("2006-01"))
	}

	key := MonthlyKey(metric, product)
	monthly, _, err := w.readData(key)
	if err != nil {
		return err
	}

	totals := timeseries.ConsolidateMonthly(hourly)
	monthly.ClearHour(idx)
	for tg, v := range totals.Hour(0) {
		monthly.Put(idx, tg, v)
	}

	return w.writeData(key, monthly)
}

// WriteResourceHourly persists the month's resource-level hourly chunk.
// Resource data is not consolidated further.
func (w *RollupWriter) WriteResourceHourly(metric string, product string, month time.Time,
	hourly *timeseries.ReadWriteData) error {
	return w.writeData(ResourceHourlyKey(metric, product, month), hourly)
}

// WriteIndex persists the canonical tag-group enumeration for the month
func (w *RollupWriter) WriteIndex(product string, month time.Time, tagGroups []*tagset.TagGroup) error {
	var buf bytes.Buffer
	if err := tagset.SerializeIndex(&buf, tagGroups); err != nil {
		return errors.Wrapf(err, "encoding index for %s", product)
	}
	key := IndexKey(product, month)
	err := w.storage.PutObject(w.bucket, key, bytes.NewReader(buf.Bytes()))
	return errors.Wrapf(err, "writing %s", key)
}

func (w *RollupWriter) writeData(key string, data *timeseries.ReadWriteData) error {
	var buf bytes.Buffer
	if err := data.Serialize(&buf); err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	err := w.storage.PutObject(w.bucket, key, bytes.NewReader(buf.Bytes()))
	return errors.Wrapf(err, "writing %s", key)
}

// readData fetches and decodes a rollup object, returning an empty series
// when the object does not exist yet
func (w *RollupWriter) readData(key string) (*timeseries.ReadWriteData, bool, error) {
	_, exists, err := w.storage.HeadObject(w.bucket, key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "checking %s", key)
	}
	if !exists {
		return timeseries.New(), false, nil
	}

	body, err := w.storage.GetObject(w.bucket, key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s", key)
	}
	data, err := timeseries.Deserialize(strings.NewReader(body), w.registry, w.accounts, w.products)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decoding %s", key)
	}
	return data, true, nil
}

func daysBetween(start, t time.Time) int {
	return int(t.Sub(start).Hours() / 24)
}
