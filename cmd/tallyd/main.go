// Package main is the tally daemon: it ingests detailed billing files on a
// schedule and keeps the query cache fresh.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Optum/tally/pkg/common"
	"github.com/Optum/tally/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:          "tallyd",
	Short:        "Ingest detailed billing files and serve cost/usage rollups",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("seed-file", "",
		"path to the accounts/reservations seed file (overrides TALLY_SEED_FILE)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	svcBldr := &config.ServiceBuilder{}
	cfg := &daemonConfiguration{}
	if err := svcBldr.Unmarshal(cfg); err != nil {
		log.Fatalf("Could not load configuration: %s", err.Error())
	}
	if seedFlag, _ := cmd.Flags().GetString("seed-file"); seedFlag != "" {
		cfg.SeedFile = seedFlag
	}
	if cfg.Debug == "true" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	_, err := svcBldr.
		WithStorager().
		WithNotificationer().
		WithTokenService().
		Build()
	if err != nil {
		return err
	}

	svcs, err := buildServices(cfg, svcBldr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.WithFields(logrus.Fields{
		"billingBuckets": cfg.BillingBuckets,
		"workBucket":     cfg.WorkBucket,
		"startMonth":     cfg.StartMonth,
	}).Info("starting tallyd")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		common.Schedule(ctx, common.ScheduleInput{
			Name:         "ingest",
			InitialDelay: cfg.IngestInitialDelay,
			Interval:     cfg.IngestInterval,
			FixedRate:    true,
			Run:          svcs.ingest.Run,
		})
	}()
	go func() {
		defer wg.Done()
		common.Schedule(ctx, common.ScheduleInput{
			Name:     "cache-refresh",
			Interval: cfg.RefreshInterval,
			Run:      svcs.query.Refresh,
		})
	}()

	<-ctx.Done()
	// restore default signal handling so a second signal exits immediately
	stop()
	logrus.Info("shutdown signal received, draining jobs")
	wg.Wait()
	logrus.Info("tallyd stopped")
	return nil
}
