package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
	"github.com/younsl/snapshooter/pkg/utils"
)

// EC2API is the subset of the EC2 client used by EBSStore
type EC2API interface {
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	CreateSnapshot(ctx context.Context, params *ec2.CreateSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	DeleteSnapshot(ctx context.Context, params *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

// EBSStore implements cloud.BlockStorage on EBS volumes and snapshots of one
// account. Volume and snapshot tags play the role of metadata.
type EBSStore struct {
	client EC2API
	region string
	logger zerolog.Logger
}

// NewEBSStore creates an EBSStore
func NewEBSStore(client EC2API, region string, logger zerolog.Logger) *EBSStore {
	return &EBSStore{
		client: client,
		region: region,
		logger: logger.With().Str("component", "ebs").Str("region", region).Logger(),
	}
}

// ListVolumes returns every EBS volume of the account
func (s *EBSStore) ListVolumes(ctx context.Context) ([]models.Volume, error) {
	var volumes []models.Volume
	paginator := ec2.NewDescribeVolumesPaginator(s.client, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error querying EBS volumes: %w", translateError(err))
		}
		for _, volume := range page.Volumes {
			volumes = append(volumes, toVolume(volume))
		}
	}
	s.logger.Trace().Int("count", len(volumes)).Msg("Listed volumes")
	return volumes, nil
}

// ListSnapshots returns the snapshots owned by the account
func (s *EBSStore) ListSnapshots(ctx context.Context, opts cloud.ListSnapshotsOpts) ([]models.Snapshot, error) {
	input := &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	}
	if opts.Status != "" {
		input.Filters = append(input.Filters, types.Filter{
			Name:   aws.String("status"),
			Values: []string{string(toSnapshotState(opts.Status))},
		})
	}
	if opts.VolumeID != "" {
		input.Filters = append(input.Filters, types.Filter{
			Name:   aws.String("volume-id"),
			Values: []string{opts.VolumeID},
		})
	}

	var snapshots []models.Snapshot
	paginator := ec2.NewDescribeSnapshotsPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error querying EBS snapshots: %w", translateError(err))
		}
		for _, snapshot := range page.Snapshots {
			snapshots = append(snapshots, toSnapshot(snapshot))
		}
	}
	return snapshots, nil
}

// CreateSnapshot snapshots a volume. EBS always allows snapshots of attached
// volumes so Force needs no translation.
func (s *EBSStore) CreateSnapshot(ctx context.Context, opts cloud.CreateSnapshotOpts) (*models.Snapshot, error) {
	tags := make(map[string]string, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		tags[k] = v
	}
	if opts.Name != "" {
		tags["Name"] = opts.Name
	}

	input := &ec2.CreateSnapshotInput{
		VolumeId:          aws.String(opts.VolumeID),
		TagSpecifications: utils.TagSpecification(types.ResourceTypeSnapshot, tags),
	}
	if opts.Description != "" {
		input.Description = aws.String(opts.Description)
	}

	out, err := s.client.CreateSnapshot(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error creating snapshot of %s: %w", opts.VolumeID, translateError(err))
	}

	snapshot := models.Snapshot{
		ID:       aws.ToString(out.SnapshotId),
		Name:     utils.GetName(out.Tags),
		Status:   fromSnapshotState(out.State),
		VolumeID: aws.ToString(out.VolumeId),
		Size:     int(aws.ToInt32(out.VolumeSize)),
		Metadata: utils.GetTagsMap(out.Tags),
	}
	if out.StartTime != nil {
		snapshot.CreatedAt = out.StartTime.UTC()
	}
	return &snapshot, nil
}

// DeleteSnapshot deletes a snapshot
func (s *EBSStore) DeleteSnapshot(ctx context.Context, id string) error {
	_, err := s.client.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(id)})
	if err != nil {
		return fmt.Errorf("error deleting snapshot %s: %w", id, translateError(err))
	}
	return nil
}

// GetSnapshot returns one snapshot, failing with cloud.ErrNotFound once it is gone
func (s *EBSStore) GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error) {
	out, err := s.client.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{SnapshotIds: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("error describing snapshot %s: %w", id, translateError(err))
	}
	if len(out.Snapshots) == 0 {
		return nil, fmt.Errorf("snapshot %s: %w", id, cloud.ErrNotFound)
	}
	snapshot := toSnapshot(out.Snapshots[0])
	return &snapshot, nil
}

func toVolume(volume types.Volume) models.Volume {
	return models.Volume{
		ID:       aws.ToString(volume.VolumeId),
		Name:     utils.GetName(volume.Tags),
		Status:   string(volume.State),
		Size:     int(aws.ToInt32(volume.Size)),
		Metadata: utils.GetTagsMap(volume.Tags),
	}
}

func toSnapshot(snapshot types.Snapshot) models.Snapshot {
	result := models.Snapshot{
		ID:       aws.ToString(snapshot.SnapshotId),
		Name:     utils.GetName(snapshot.Tags),
		Status:   fromSnapshotState(snapshot.State),
		VolumeID: aws.ToString(snapshot.VolumeId),
		Size:     int(aws.ToInt32(snapshot.VolumeSize)),
		Metadata: utils.GetTagsMap(snapshot.Tags),
	}
	if snapshot.StartTime != nil {
		result.CreatedAt = snapshot.StartTime.UTC()
	}
	return result
}

// fromSnapshotState maps EBS snapshot states onto block storage statuses
func fromSnapshotState(state types.SnapshotState) string {
	switch state {
	case types.SnapshotStateCompleted:
		return models.SnapshotStatusAvailable
	case types.SnapshotStatePending:
		return models.SnapshotStatusCreating
	case types.SnapshotStateError:
		return models.SnapshotStatusError
	}
	return string(state)
}

func toSnapshotState(status string) types.SnapshotState {
	switch status {
	case models.SnapshotStatusAvailable:
		return types.SnapshotStateCompleted
	case models.SnapshotStatusCreating:
		return types.SnapshotStatePending
	case models.SnapshotStatusError:
		return types.SnapshotStateError
	}
	return types.SnapshotState(status)
}
