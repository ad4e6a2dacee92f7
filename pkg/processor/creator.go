package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/younsl/snapshooter/internal/logging"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
	"github.com/younsl/snapshooter/pkg/confirm"
	"github.com/younsl/snapshooter/pkg/metrics"
	"github.com/younsl/snapshooter/pkg/retention"
)

// Creator snapshots every opted-in volume of a tenant once a day
type Creator struct {
	confirmer *confirm.Confirmer
	opts      Options
	metrics   *metrics.Recorder
	logger    zerolog.Logger
}

// NewCreator creates a Creator. recorder may be nil.
func NewCreator(confirmer *confirm.Confirmer, opts Options, recorder *metrics.Recorder, logger zerolog.Logger) *Creator {
	return &Creator{
		confirmer: confirmer,
		opts:      opts,
		metrics:   recorder,
		logger:    logger.With().Str("component", "creator").Logger(),
	}
}

// Process implements tenant.Operation
func (c *Creator) Process(ctx context.Context, store cloud.BlockStorage, scope models.Scope) (models.Summary, error) {
	logger := logging.WithScope(c.logger, scope)
	summary := models.Summary{Scope: scope}

	volumes, err := store.ListVolumes(ctx)
	if err != nil {
		return summary, fmt.Errorf("error listing volumes: %w", err)
	}

	tokens := c.opts.trueTokens()
	for _, volume := range volumes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !retention.IsEligible(volume, tokens) {
			logger.Trace().Str("volume", volume.ID).Str("status", volume.Status).Msg("Volume not eligible")
			continue
		}

		logger.Debug().Str("volume", volume.ID).Msg("Processing volume")
		created, err := c.createIfNeeded(ctx, store, volume, logger)
		if err != nil {
			logger.Error().Err(err).Str("volume", volume.ID).Msg("Unable to create snapshot")
			summary.Errors++
			c.metrics.Error("creator")
			continue
		}
		if created {
			summary.Processed++
		}
	}

	logger.Info().
		Int("snapshot_created", summary.Processed).
		Int("errors", summary.Errors).
		Msg("All volumes processed for project")
	return summary, nil
}

// createIfNeeded snapshots volume unless it already has an automatic
// snapshot today. It reports whether a snapshot was created.
func (c *Creator) createIfNeeded(ctx context.Context, store cloud.BlockStorage, volume models.Volume, logger zerolog.Logger) (bool, error) {
	logger = logger.With().Str("volume", volume.ID).Logger()

	snapshots, err := store.ListSnapshots(ctx, cloud.ListSnapshotsOpts{
		Status:   models.SnapshotStatusAvailable,
		VolumeID: volume.ID,
	})
	if err != nil {
		return false, fmt.Errorf("error listing snapshots: %w", err)
	}
	for _, snapshot := range snapshots {
		logger.Trace().Str("snapshot", snapshot.ID).Interface("metadata", snapshot.Metadata).Msg("Looking at snapshot")
	}

	decision := retention.Decide(volume, snapshots, c.opts.now())
	if !decision.Create {
		logger.Debug().Str("snapshot", decision.ExistingID).Msg("Already a snapshot today for this volume")
		return false, nil
	}

	logger.Debug().Bool("monthly", decision.Monthly()).Str("expire_at", decision.ExpireAtValue()).Msg("Creating snapshot")
	if c.opts.DryRun {
		logger.Info().
			Bool("monthly", decision.Monthly()).
			Str("expire_at", decision.ExpireAtValue()).
			Msg("Dry run, snapshot not created")
		return false, nil
	}

	snapshot, err := store.CreateSnapshot(ctx, cloud.CreateSnapshotOpts{
		VolumeID:    volume.ID,
		Description: SnapshotDescription,
		Metadata:    map[string]string{models.MetadataExpireAt: decision.ExpireAtValue()},
		Force:       true,
	})
	if err != nil {
		return false, fmt.Errorf("error creating snapshot: %w", err)
	}

	ready, err := c.confirmer.WaitAvailable(ctx, store, snapshot.ID)
	if err != nil {
		if errors.Is(err, confirm.ErrSnapshotInError) {
			c.cleanup(ctx, store, snapshot.ID, logger)
		}
		return false, err
	}

	logger.Info().
		Str("snapshot", ready.ID).
		Str("expire_at", decision.ExpireAtValue()).
		Bool("monthly", decision.Monthly()).
		Str("size", humanize.IBytes(sizeBytes(volume.Size))).
		Msg("Created snapshot")
	c.metrics.Created(string(decision.Tier))
	return true, nil
}

// cleanup removes a snapshot that landed in error so the next run starts clean
func (c *Creator) cleanup(ctx context.Context, store cloud.BlockStorage, id string, logger zerolog.Logger) {
	if _, err := c.confirmer.Delete(ctx, store, id); err != nil {
		logger.Error().Err(err).Str("snapshot", id).Msg("Unable to delete snapshot in error")
		return
	}
	logger.Info().Str("snapshot", id).Msg("Deleted snapshot in error")
}
