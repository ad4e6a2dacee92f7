package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/younsl/snapshooter/internal/logging"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
	"github.com/younsl/snapshooter/pkg/confirm"
	"github.com/younsl/snapshooter/pkg/metrics"
	"github.com/younsl/snapshooter/pkg/retention"
)

// Destroyer removes expired automatic snapshots and automatic snapshots in error
type Destroyer struct {
	confirmer *confirm.Confirmer
	opts      Options
	metrics   *metrics.Recorder
	logger    zerolog.Logger
}

// NewDestroyer creates a Destroyer. recorder may be nil.
func NewDestroyer(confirmer *confirm.Confirmer, opts Options, recorder *metrics.Recorder, logger zerolog.Logger) *Destroyer {
	return &Destroyer{
		confirmer: confirmer,
		opts:      opts,
		metrics:   recorder,
		logger:    logger.With().Str("component", "destroyer").Logger(),
	}
}

// Process implements tenant.Operation
func (d *Destroyer) Process(ctx context.Context, store cloud.BlockStorage, scope models.Scope) (models.Summary, error) {
	logger := logging.WithScope(d.logger, scope)
	summary := models.Summary{Scope: scope}
	now := d.opts.now()

	available, err := store.ListSnapshots(ctx, cloud.ListSnapshotsOpts{Status: models.SnapshotStatusAvailable})
	if err != nil {
		return summary, fmt.Errorf("error listing available snapshots: %w", err)
	}
	for _, snapshot := range available {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		l := logger.With().Str("snapshot", snapshot.ID).Logger()
		l.Trace().Msg("Looking at snapshot")

		expired, err := retention.IsExpired(snapshot, now)
		if err != nil {
			return summary, err
		}
		if !expired {
			if retention.IsAutomatic(snapshot) {
				l.Debug().Str("expire_at", expireAt(snapshot)).Msg("Keeping snapshot, still valid")
			}
			continue
		}
		d.destroy(ctx, store, snapshot, ReasonExpired, now, &summary, l)
	}

	errored, err := store.ListSnapshots(ctx, cloud.ListSnapshotsOpts{Status: models.SnapshotStatusError})
	if err != nil {
		return summary, fmt.Errorf("error listing snapshots in error: %w", err)
	}
	for _, snapshot := range errored {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !retention.ShouldSweep(snapshot) {
			continue
		}
		d.destroy(ctx, store, snapshot, ReasonErrored, now, &summary, logger.With().Str("snapshot", snapshot.ID).Logger())
	}

	logger.Info().
		Int("destroyed_snapshot", summary.Processed).
		Int("errors", summary.Errors).
		Msg("Processed all snapshots in project")
	return summary, nil
}

func (d *Destroyer) destroy(ctx context.Context, store cloud.BlockStorage, snapshot models.Snapshot, reason string, now time.Time, summary *models.Summary, logger zerolog.Logger) {
	logger.Debug().Str("reason", reason).Str("expire_at", expireAt(snapshot)).Msg("Deleting snapshot")
	if d.opts.DryRun {
		logger.Info().Str("reason", reason).Msg("Dry run, snapshot not deleted")
		return
	}

	result, err := d.confirmer.Delete(ctx, store, snapshot.ID)
	if err != nil {
		logger.Error().Err(err).Str("reason", reason).Str("state", result.State.String()).Msg("Unable to delete snapshot")
		summary.Errors++
		d.metrics.Error("destroyer")
		return
	}

	event := logger.Info().
		Str("reason", reason).
		Str("expire_at", expireAt(snapshot)).
		Int("polls", result.Polls)
	if !snapshot.CreatedAt.IsZero() {
		event = event.Str("age", humanize.RelTime(snapshot.CreatedAt, now, "old", "from now"))
	}
	event.Msg("Deleted snapshot")

	summary.Processed++
	d.metrics.Destroyed(reason)
}
