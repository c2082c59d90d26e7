package main

import (
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/Optum/tally/pkg/account"
	"github.com/Optum/tally/pkg/common"
	"github.com/Optum/tally/pkg/config"
	"github.com/Optum/tally/pkg/ingest"
	"github.com/Optum/tally/pkg/product"
	"github.com/Optum/tally/pkg/query"
	"github.com/Optum/tally/pkg/reservation"
	"github.com/Optum/tally/pkg/resource"
	"github.com/Optum/tally/pkg/tagset"
)

// services is the daemon's wired service container
type services struct {
	ingest ingest.Servicer
	query  query.Servicer
}

func buildServices(cfg *daemonConfiguration, svcBldr *config.ServiceBuilder) (*services, error) {
	seed, err := loadSeedFile(cfg.SeedFile)
	if err != nil {
		return nil, err
	}

	registry := tagset.NewRegistry()
	accounts, err := account.NewService(account.NewServiceInput{
		Registry: registry,
		Accounts: seed.Accounts,
	})
	if err != nil {
		return nil, err
	}
	products := product.NewService(registry)

	reservations, err := seedReservations(&seed.Reservations, registry, accounts, products)
	if err != nil {
		return nil, err
	}

	var storage common.Storager
	if err := svcBldr.GetService(&storage); err != nil {
		return nil, err
	}
	var notifier common.Notificationer
	if err := svcBldr.GetService(&notifier); err != nil {
		return nil, err
	}
	var token common.TokenService
	if err := svcBldr.GetService(&token); err != nil {
		return nil, err
	}
	awsSession, err := svcBldr.Session()
	if err != nil {
		return nil, err
	}

	startMonth, err := cfg.startMonth()
	if err != nil {
		return nil, err
	}
	utilization, err := cfg.defaultUtilization()
	if err != nil {
		return nil, err
	}
	costMode, err := cfg.resourceCostMode()
	if err != nil {
		return nil, err
	}
	resources, err := resourceService(cfg.ResourceGroups)
	if err != nil {
		return nil, err
	}

	ingestSvc, err := ingest.NewService(ingest.NewServiceInput{
		Registry:     registry,
		Accounts:     accounts,
		Products:     products,
		Resources:    resources,
		Reservations: reservations,
		Storage:      storage,
		StorageFor:   storageProvider(awsSession, token, accounts, storage),
		Notifier:     notifier,

		BillingBuckets:     cfg.BillingBuckets,
		WorkBucket:         cfg.WorkBucket,
		WorkDir:            cfg.WorkDir,
		StartMonth:         startMonth,
		DefaultUtilization: utilization,
		UseBlendedCost:     cfg.UseBlendedCost,
		ResourceCostMode:   costMode,
		CostPerMetricHour:  cfg.CostPerMetricHour,

		AlertTopicArn:  cfg.AlertTopicArn,
		AlertThreshold: cfg.AlertThreshold,
		AlertCooldown:  cfg.AlertCooldown,
	})
	if err != nil {
		return nil, err
	}

	querySvc := query.NewService(query.NewServiceInput{
		Storage:   storage,
		Bucket:    cfg.WorkBucket,
		Registry:  registry,
		Accounts:  accounts,
		Products:  products,
		MaxChunks: cfg.MaxCachedChunks,
	})

	return &services{
		ingest: ingestSvc,
		query:  querySvc,
	}, nil
}

func resourceService(mode string) (resource.Servicer, error) {
	switch mode {
	case "none":
		return &resource.NoneService{}, nil
	case "passthrough":
		return &resource.PassthroughService{}, nil
	}
	return nil, fmt.Errorf("unknown RESOURCE_GROUPS mode %q", mode)
}

// storageProvider returns per-owner S3 access. Owners that declare an
// access role get a client backed by assumed-role credentials; everyone
// else shares the process client.
func storageProvider(awsSession *session.Session, token common.TokenService,
	accounts *account.Service, shared common.Storager) ingest.StorageProvider {

	var mu sync.Mutex
	clients := map[string]common.Storager{}

	return func(accountID string) common.Storager {
		role, externalID := accounts.AccessRole(accountID)
		if role == "" {
			return shared
		}

		mu.Lock()
		defer mu.Unlock()
		if stor, ok := clients[accountID]; ok {
			return stor
		}

		var creds *credentials.Credentials
		if externalID == "" {
			creds = token.NewCredentials(awsSession, role)
		} else {
			creds = token.NewCredentialsWithExternalID(awsSession, role, externalID)
		}
		client := s3.New(awsSession, &aws.Config{Credentials: creds})
		stor := &common.S3{
			Client: client,
			Manager: s3manager.NewDownloader(awsSession, func(d *s3manager.Downloader) {
				d.S3 = client
			}),
		}
		clients[accountID] = stor
		return stor
	}
}

func seedReservations(seed *reservationSeed, registry *tagset.Registry,
	accounts *account.Service, products *product.Service) (*reservation.Service, error) {

	svc := reservation.NewService(reservation.NewServiceInput{
		Registry: registry,
		Accounts: accounts,
	})

	for _, p := range seed.Prices {
		region := registry.Region(p.Region)
		if region == nil {
			return nil, fmt.Errorf("reservation price names unknown region %q", p.Region)
		}
		usageType := registry.UsageType(p.UsageType, unitOrHours(p.Unit))

		upfront, err := tierTables(p.Upfront)
		if err != nil {
			return nil, errors.Wrapf(err, "upfront price table for %s/%s", p.Region, p.UsageType)
		}
		hourly, err := tierTables(p.Hourly)
		if err != nil {
			return nil, errors.Wrapf(err, "hourly price table for %s/%s", p.Region, p.UsageType)
		}
		svc.SetPrice(region, usageType, reservation.NewPrice(upfront, hourly))
	}

	ec2, err := products.ByCanonicalName(product.Ec2Instance)
	if err != nil {
		return nil, err
	}
	for _, w := range seed.Windows {
		acct, err := accounts.ByID(w.AccountID)
		if err != nil {
			return nil, errors.Wrapf(err, "reservation window for account %s", w.AccountID)
		}
		region := registry.ZoneRegion(w.Zone)
		if region == nil {
			return nil, fmt.Errorf("reservation window names unknown zone %q", w.Zone)
		}
		zone := registry.Zone(region, w.Zone)
		utilization, err := parseUtilization(w.Utilization)
		if err != nil {
			return nil, err
		}
		usageType := registry.UsageType(w.UsageType, unitOrHours(w.Unit))

		start, err := parseSeedTime(w.Start)
		if err != nil {
			return nil, errors.Wrapf(err, "reservation window start for %s", w.AccountID)
		}
		end, err := parseSeedTime(w.End)
		if err != nil {
			return nil, errors.Wrapf(err, "reservation window end for %s", w.AccountID)
		}

		owner := registry.GetTagGroup(acct, region, zone, ec2,
			tagset.ReservedOperation(utilization), usageType, nil)
		if err := svc.AddWindow(owner, reservation.Window{
			Count: w.Count,
			Start: start,
			End:   end,
		}); err != nil {
			return nil, err
		}
	}

	return svc, nil
}

func tierTables(seeds []tierTableSeed) ([]reservation.VersionedTiers, error) {
	out := make([]reservation.VersionedTiers, 0, len(seeds))
	for _, s := range seeds {
		at, err := parseSeedTime(s.RecordedAt)
		if err != nil {
			return nil, err
		}
		tiers := make([]reservation.Tier, 0, len(s.Tiers))
		for _, t := range s.Tiers {
			tiers = append(tiers, reservation.Tier{LowerBound: t.LowerBound, Price: t.Price})
		}
		out = append(out, reservation.VersionedTiers{RecordedAt: at, Tiers: tiers})
	}
	return out, nil
}

func unitOrHours(unit string) string {
	if unit == "" {
		return "hours"
	}
	return unit
}
