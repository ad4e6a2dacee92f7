// Package cloud defines the capabilities snapshooter needs from a cloud
// control plane. Provider packages (openstack, aws) implement them and test
// doubles implement the same interfaces.
package cloud

import (
	"context"
	"errors"

	"github.com/younsl/snapshooter/internal/models"
)

var (
	// ErrNotFound is returned when the requested resource does not exist
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden is returned when the caller has no rights in the scope
	ErrForbidden = errors.New("forbidden")
)

// ListSnapshotsOpts filters snapshot listings. Empty fields do not filter.
type ListSnapshotsOpts struct {
	Status   string
	VolumeID string
}

// CreateSnapshotOpts describes a snapshot to create
type CreateSnapshotOpts struct {
	VolumeID    string
	Name        string
	Description string
	Metadata    map[string]string
	// Force allows snapshotting a volume that is attached
	Force bool
}

// BlockStorage is a block storage client bound to a single tenant scope
type BlockStorage interface {
	ListVolumes(ctx context.Context) ([]models.Volume, error)
	ListSnapshots(ctx context.Context, opts ListSnapshotsOpts) ([]models.Snapshot, error)
	CreateSnapshot(ctx context.Context, opts CreateSnapshotOpts) (*models.Snapshot, error)
	// DeleteSnapshot returns an error wrapping ErrNotFound when the snapshot is already gone
	DeleteSnapshot(ctx context.Context, id string) error
	// GetSnapshot returns an error wrapping ErrNotFound when the snapshot does not exist
	GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error)
}

// Identity is the caller's authenticated session on the control plane
type Identity interface {
	ListTrusts(ctx context.Context) ([]models.Trust, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	// Connect returns a BlockStorage client bound to scope
	Connect(ctx context.Context, scope models.Scope) (BlockStorage, error)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsForbidden reports whether err is an authorization-denied error
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
