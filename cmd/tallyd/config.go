package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/Optum/tally/pkg/account"
	"github.com/Optum/tally/pkg/lineitem"
	"github.com/Optum/tally/pkg/tagset"
)

// daemonConfiguration is loaded from the environment at startup
type daemonConfiguration struct {
	Debug          string   `env:"DEBUG" envDefault:"false"`
	SeedFile       string   `env:"TALLY_SEED_FILE" envDefault:"tally.json"`
	BillingBuckets []string `env:"BILLING_BUCKETS" envSeparator:","`
	WorkBucket     string   `env:"WORK_BUCKET"`
	WorkDir        string   `env:"WORK_DIR"`

	// StartMonth is the first billing month ingested, as yyyy-MM
	StartMonth string `env:"START_MONTH"`

	IngestInterval     time.Duration `env:"INGEST_INTERVAL" envDefault:"1h"`
	IngestInitialDelay time.Duration `env:"INGEST_INITIAL_DELAY" envDefault:"0s"`
	RefreshInterval    time.Duration `env:"CACHE_REFRESH_INTERVAL" envDefault:"5m"`
	MaxCachedChunks    int           `env:"MAX_CACHED_CHUNKS" envDefault:"24"`

	DefaultUtilization string  `env:"DEFAULT_UTILIZATION" envDefault:"Heavy"`
	UseBlendedCost     bool    `env:"USE_BLENDED_COST" envDefault:"false"`
	ResourceGroups     string  `env:"RESOURCE_GROUPS" envDefault:"none"`
	ResourceCostMode   string  `env:"RESOURCE_COST_MODE" envDefault:"billed"`
	CostPerMetricHour  float64 `env:"COST_PER_METRIC_HOUR" envDefault:"0"`

	AlertTopicArn  string        `env:"ALERT_TOPIC_ARN"`
	AlertThreshold float64       `env:"ALERT_THRESHOLD" envDefault:"0"`
	AlertCooldown  time.Duration `env:"ALERT_COOLDOWN" envDefault:"6h"`
}

func (cfg *daemonConfiguration) startMonth() (time.Time, error) {
	t, err := time.Parse("2006-01", cfg.StartMonth)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parsing START_MONTH %q", cfg.StartMonth)
	}
	return t, nil
}

func (cfg *daemonConfiguration) defaultUtilization() (tagset.UtilizationClass, error) {
	return parseUtilization(cfg.DefaultUtilization)
}

func (cfg *daemonConfiguration) resourceCostMode() (lineitem.CostMode, error) {
	switch cfg.ResourceCostMode {
	case "billed":
		return lineitem.CostModeBilled, nil
	case "modeled":
		return lineitem.CostModeModeled, nil
	}
	return 0, fmt.Errorf("unknown RESOURCE_COST_MODE %q", cfg.ResourceCostMode)
}

func parseUtilization(name string) (tagset.UtilizationClass, error) {
	switch name {
	case "Heavy":
		return tagset.UtilizationHeavy, nil
	case "Medium":
		return tagset.UtilizationMedium, nil
	case "Light":
		return tagset.UtilizationLight, nil
	case "Fixed":
		return tagset.UtilizationFixed, nil
	}
	return 0, fmt.Errorf("unknown utilization class %q", name)
}

// seedFile is the startup configuration read from TALLY_SEED_FILE. It
// carries everything that cannot come from the environment: the account
// set and the purchased reservation contracts.
type seedFile struct {
	Accounts     []account.Config `json:"accounts"`
	Reservations reservationSeed  `json:"reservations"`
}

type reservationSeed struct {
	Prices  []priceSeed  `json:"prices,omitempty"`
	Windows []windowSeed `json:"windows,omitempty"`
}

// priceSeed is one (region, usage type) contract price table
type priceSeed struct {
	Region    string          `json:"region"`
	UsageType string          `json:"usageType"`
	Unit      string          `json:"unit,omitempty"`
	Upfront   []tierTableSeed `json:"upfront,omitempty"`
	Hourly    []tierTableSeed `json:"hourly,omitempty"`
}

type tierTableSeed struct {
	RecordedAt string     `json:"recordedAt"`
	Tiers      []tierSeed `json:"tiers"`
}

type tierSeed struct {
	LowerBound float64 `json:"lowerBound"`
	Price      float64 `json:"price"`
}

// windowSeed is one purchased-capacity interval
type windowSeed struct {
	AccountID   string `json:"accountId"`
	Zone        string `json:"zone"`
	UsageType   string `json:"usageType"`
	Unit        string `json:"unit,omitempty"`
	Utilization string `json:"utilization"`
	Count       int    `json:"count"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

func loadSeedFile(path string) (*seedFile, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading seed file %s", path)
	}
	seed := &seedFile{}
	if err := json.Unmarshal(body, seed); err != nil {
		return nil, errors.Wrapf(err, "parsing seed file %s", path)
	}
	if len(seed.Accounts) == 0 {
		return nil, fmt.Errorf("seed file %s declares no accounts", path)
	}
	return seed, nil
}

func parseSeedTime(value string) (int64, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UnixNano() / int64(time.Millisecond), nil
		}
	}
	return 0, fmt.Errorf("unparseable time %q, want RFC3339 or yyyy-MM-dd", value)
}
