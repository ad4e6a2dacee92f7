package openstack

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/snapshots"
	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"github.com/rs/zerolog"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
)

// CinderStore implements cloud.BlockStorage on the Block Storage v3 API of
// one project. Requests use the context of the client's provider.
type CinderStore struct {
	client *gophercloud.ServiceClient
	logger zerolog.Logger
}

// NewCinderStore creates a CinderStore
func NewCinderStore(client *gophercloud.ServiceClient, logger zerolog.Logger) *CinderStore {
	return &CinderStore{
		client: client,
		logger: logger.With().Str("component", "cinder").Logger(),
	}
}

// ListVolumes returns every volume of the project
func (s *CinderStore) ListVolumes(ctx context.Context) ([]models.Volume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pages, err := volumes.List(s.client, volumes.ListOpts{}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("error listing volumes: %w", translateError(err))
	}
	all, err := volumes.ExtractVolumes(pages)
	if err != nil {
		return nil, fmt.Errorf("error extracting volumes: %w", err)
	}

	result := make([]models.Volume, 0, len(all))
	for _, volume := range all {
		result = append(result, models.Volume{
			ID:       volume.ID,
			Name:     volume.Name,
			Status:   volume.Status,
			Size:     volume.Size,
			Metadata: volume.Metadata,
		})
	}
	s.logger.Trace().Int("count", len(result)).Msg("Listed volumes")
	return result, nil
}

// ListSnapshots returns the project's snapshots matching opts
func (s *CinderStore) ListSnapshots(ctx context.Context, opts cloud.ListSnapshotsOpts) ([]models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pages, err := snapshots.List(s.client, snapshots.ListOpts{
		Status:   opts.Status,
		VolumeID: opts.VolumeID,
	}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("error listing snapshots: %w", translateError(err))
	}
	all, err := snapshots.ExtractSnapshots(pages)
	if err != nil {
		return nil, fmt.Errorf("error extracting snapshots: %w", err)
	}

	result := make([]models.Snapshot, 0, len(all))
	for _, snapshot := range all {
		result = append(result, toSnapshot(snapshot))
	}
	return result, nil
}

// CreateSnapshot creates a snapshot of a volume
func (s *CinderStore) CreateSnapshot(ctx context.Context, opts cloud.CreateSnapshotOpts) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	created, err := snapshots.Create(s.client, snapshots.CreateOpts{
		VolumeID:    opts.VolumeID,
		Force:       opts.Force,
		Name:        opts.Name,
		Description: opts.Description,
		Metadata:    opts.Metadata,
	}).Extract()
	if err != nil {
		return nil, fmt.Errorf("error creating snapshot of %s: %w", opts.VolumeID, translateError(err))
	}
	snapshot := toSnapshot(*created)
	return &snapshot, nil
}

// DeleteSnapshot deletes a snapshot
func (s *CinderStore) DeleteSnapshot(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := snapshots.Delete(s.client, id).ExtractErr(); err != nil {
		return fmt.Errorf("error deleting snapshot %s: %w", id, translateError(err))
	}
	return nil
}

// GetSnapshot returns one snapshot, failing with cloud.ErrNotFound once it is gone
func (s *CinderStore) GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := snapshots.Get(s.client, id).Extract()
	if err != nil {
		return nil, fmt.Errorf("error getting snapshot %s: %w", id, translateError(err))
	}
	snapshot := toSnapshot(*found)
	return &snapshot, nil
}

func toSnapshot(snapshot snapshots.Snapshot) models.Snapshot {
	return models.Snapshot{
		ID:        snapshot.ID,
		Name:      snapshot.Name,
		Status:    snapshot.Status,
		VolumeID:  snapshot.VolumeID,
		Size:      snapshot.Size,
		CreatedAt: snapshot.CreatedAt.UTC(),
		Metadata:  snapshot.Metadata,
	}
}
