package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/younsl/snapshooter/internal/config"
	"github.com/younsl/snapshooter/internal/logging"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/internal/version"
	"github.com/younsl/snapshooter/pkg/cloud"
	"github.com/younsl/snapshooter/pkg/confirm"
	"github.com/younsl/snapshooter/pkg/formatter"
	"github.com/younsl/snapshooter/pkg/metrics"
	"github.com/younsl/snapshooter/pkg/processor"
	"github.com/younsl/snapshooter/pkg/tenant"
)

const metricsJob = "snapshooter"

// errRunFailed reports a run where at least one tenant counted errors
var errRunFailed = errors.New("some tenants reported errors")

func (a *app) run(cmd *cobra.Command, command string) error {
	logger := logging.New(logging.Options{
		Devel:   a.devel,
		Verbose: a.verbose,
		Output:  a.stderr,
	}).With().Str("run_id", uuid.NewString()).Str("command", command).Logger()

	cfg, err := a.loadConfig(cmd)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return err
	}

	logger.Info().
		Object("build", version.Get()).
		Str("cloud", cfg.Cloud).
		Int("pool_size", cfg.PoolSize).
		Bool("dry_run", a.dryRun).
		Msg("Starting")

	ctx := cmd.Context()
	identity, err := a.newIdentity(ctx, cfg, a.verbose, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Unable to connect to the cloud")
		return err
	}

	recorder := metrics.New()
	report, ok, err := execute(ctx, command, cfg, a.dryRun, identity, recorder, logger)
	if pushErr := recorder.Push(cfg.PushgatewayURL, metricsJob, command); pushErr != nil {
		logger.Warn().Err(pushErr).Msg("Unable to push metrics")
	}
	if err != nil {
		logger.Error().Err(err).Msg("Run aborted")
		return err
	}
	if a.report {
		formatter.PrintReportTable(cmd.OutOrStdout(), report)
	}
	if !ok {
		return errRunFailed
	}
	return nil
}

// execute runs command on every tenant of identity and reports whether every
// processed tenant finished without errors
func execute(ctx context.Context, command string, cfg *config.Config, dryRun bool, identity cloud.Identity, recorder *metrics.Recorder, logger zerolog.Logger) (formatter.Report, bool, error) {
	report := formatter.Report{Action: actionColumn(command), StartTime: time.Now()}

	confirmer := confirm.New(confirm.Config{
		SubmitAttempts: cfg.Retry.SubmitAttempts,
		MinDelay:       cfg.Retry.MinDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		Timeout:        cfg.Timeout(),
	}, logger)
	opts := processor.Options{
		DryRun:     dryRun,
		TrueTokens: cfg.TrueTokens,
	}

	var op tenant.Operation
	switch command {
	case commandCreator:
		op = processor.NewCreator(confirmer, opts, recorder, logger).Process
	case commandDestroyer:
		op = processor.NewDestroyer(confirmer, opts, recorder, logger).Process
	default:
		return report, false, errors.New("unknown command " + command)
	}

	var mu sync.Mutex
	harness := tenant.NewHarness(identity, cfg.PoolSize, logger)
	harness.OnSkip = func(scope models.Scope) {
		recorder.TenantSkipped()
		mu.Lock()
		report.Skipped = append(report.Skipped, scope)
		mu.Unlock()
	}

	summaries, err := harness.Run(ctx, op)
	report.Duration = time.Since(report.StartTime)
	ok := err == nil && models.AllSucceeded(summaries)
	recorder.Finish(report.Duration, ok, time.Now())
	if err != nil {
		return report, false, err
	}
	report.Summaries = summaries

	processed, errs := 0, 0
	for _, summary := range summaries {
		recorder.TenantDone()
		processed += summary.Processed
		errs += summary.Errors
	}
	logger.Info().
		Int("tenants", len(summaries)).
		Int("skipped", len(report.Skipped)).
		Int("processed", processed).
		Int("errors", errs).
		Dur("elapsed", report.Duration).
		Bool("success", ok).
		Msg("Run finished")
	return report, ok, nil
}

func actionColumn(command string) string {
	if command == commandCreator {
		return "CREATED"
	}
	return "DESTROYED"
}
