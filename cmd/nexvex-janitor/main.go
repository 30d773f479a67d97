package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/1qh/nexvex/pkg/bootstrap"
	"github.com/1qh/nexvex/pkg/config"
	"github.com/1qh/nexvex/pkg/janitor"
	"github.com/1qh/nexvex/pkg/observability"
)

var (
	tablesFile = flag.String("tables", "", "YAML file of table definitions (overrides NEXVEX_TABLES_FILE)")
	runOnce    = flag.Bool("run-once", false, "Run one sweep and exit")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *tablesFile != "" {
		cfg.Engine.TablesFile = *tablesFile
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("component", "janitor")

	tables, err := bootstrap.Tables(cfg)
	if err != nil {
		log.Fatalf("Failed to load tables: %v", err)
	}
	// the janitor only needs the cascade graph, never the HTTP surface
	engine, err := bootstrap.New(ctx, cfg, tables, logger, nil)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer engine.Close()

	j := janitor.New(engine.Store, engine.Cascade, cfg.Janitor.StaleAfter, janitor.WithLogger(logger))

	sweep := func() {
		report, err := j.Sweep(ctx)
		entry := log.WithFields(logrus.Fields{
			"found":      report.Found,
			"completed":  report.Completed,
			"incomplete": report.Incomplete,
			"failed":     report.Failed,
		})
		if err != nil {
			entry.WithError(err).Error("Removal sweep failed")
			return
		}
		entry.Debug("Removal sweep finished")
	}

	if *runOnce {
		sweep()
		log.Info("Sweep completed")
		return
	}

	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(log)),
		cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
	)
	if _, err := c.AddFunc(cfg.Janitor.Schedule, sweep); err != nil {
		log.Fatalf("Failed to schedule sweep %q: %v", cfg.Janitor.Schedule, err)
	}

	c.Start()
	log.WithFields(logrus.Fields{
		"schedule":    cfg.Janitor.Schedule,
		"stale_after": cfg.Janitor.StaleAfter.String(),
		"tables":      len(tables),
	}).Info("Janitor started")

	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	// wait for a running sweep; the cancelled context makes it return early
	<-c.Stop().Done()
	log.Info("Janitor stopped")
}
