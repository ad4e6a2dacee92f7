// Package fakecloud provides in-memory implementations of cloud.Identity and
// cloud.BlockStorage for tests.
package fakecloud

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
)

// Store is an in-memory block storage scoped to one tenant
type Store struct {
	mu sync.Mutex

	// Now stamps created snapshots, defaults to time.Now
	Now func() time.Time

	// ListVolumesErr and ListSnapshotsErr fail the listing calls
	ListVolumesErr   error
	ListSnapshotsErr error
	// CreateErr fails CreateSnapshot for a volume id
	CreateErr map[string]error
	// CreatedStatus is the status created snapshots settle to, default available
	CreatedStatus string
	// DeleteErrs are returned by successive DeleteSnapshot calls for an id
	DeleteErrs map[string][]error
	// DeleteLag is the number of GetSnapshot calls still seeing a deleted
	// snapshot; negative means it never disappears
	DeleteLag map[string]int
	// GetErrs are returned by successive GetSnapshot calls for an id
	GetErrs map[string][]error

	volumes   []models.Volume
	snapshots map[string]*models.Snapshot
	order     []string
	deleted   map[string]*models.Snapshot
	lag       map[string]int

	created     []cloud.CreateSnapshotOpts
	deleteCalls map[string]int
	getCalls    map[string]int
}

// NewStore creates a store holding volumes and snapshots
func NewStore(volumes []models.Volume, snapshots []models.Snapshot) *Store {
	s := &Store{
		CreateErr:   map[string]error{},
		DeleteErrs:  map[string][]error{},
		DeleteLag:   map[string]int{},
		GetErrs:     map[string][]error{},
		volumes:     append([]models.Volume(nil), volumes...),
		snapshots:   map[string]*models.Snapshot{},
		deleted:     map[string]*models.Snapshot{},
		lag:         map[string]int{},
		deleteCalls: map[string]int{},
		getCalls:    map[string]int{},
	}
	for _, snapshot := range snapshots {
		s.AddSnapshot(snapshot)
	}
	return s
}

// AddSnapshot stores a snapshot, generating an id when empty
func (s *Store) AddSnapshot(snapshot models.Snapshot) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(snapshot)
}

func (s *Store) addLocked(snapshot models.Snapshot) string {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	snapshot.Metadata = copyMap(snapshot.Metadata)
	s.snapshots[snapshot.ID] = &snapshot
	s.order = append(s.order, snapshot.ID)
	return snapshot.ID
}

// ListVolumes implements cloud.BlockStorage
func (s *Store) ListVolumes(_ context.Context) ([]models.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListVolumesErr != nil {
		return nil, s.ListVolumesErr
	}
	return append([]models.Volume(nil), s.volumes...), nil
}

// ListSnapshots implements cloud.BlockStorage
func (s *Store) ListSnapshots(_ context.Context, opts cloud.ListSnapshotsOpts) ([]models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListSnapshotsErr != nil {
		return nil, s.ListSnapshotsErr
	}

	var result []models.Snapshot
	for _, id := range s.order {
		snapshot, ok := s.snapshots[id]
		if !ok {
			continue
		}
		if opts.Status != "" && snapshot.Status != opts.Status {
			continue
		}
		if opts.VolumeID != "" && snapshot.VolumeID != opts.VolumeID {
			continue
		}
		result = append(result, clone(snapshot))
	}
	return result, nil
}

// CreateSnapshot implements cloud.BlockStorage
func (s *Store) CreateSnapshot(_ context.Context, opts cloud.CreateSnapshotOpts) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, opts)
	if err := s.CreateErr[opts.VolumeID]; err != nil {
		return nil, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	status := s.CreatedStatus
	if status == "" {
		status = models.SnapshotStatusAvailable
	}
	id := s.addLocked(models.Snapshot{
		Name:      opts.Name,
		Status:    status,
		VolumeID:  opts.VolumeID,
		CreatedAt: now().UTC(),
		Metadata:  opts.Metadata,
	})

	created := clone(s.snapshots[id])
	created.Status = models.SnapshotStatusCreating
	return &created, nil
}

// DeleteSnapshot implements cloud.BlockStorage
func (s *Store) DeleteSnapshot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls[id]++
	if errs := s.DeleteErrs[id]; len(errs) > 0 {
		s.DeleteErrs[id] = errs[1:]
		if errs[0] != nil {
			return errs[0]
		}
	}

	snapshot, ok := s.snapshots[id]
	if !ok {
		return fmt.Errorf("snapshot %s: %w", id, cloud.ErrNotFound)
	}
	delete(s.snapshots, id)
	snapshot.Status = models.SnapshotStatusDeleting
	s.deleted[id] = snapshot
	s.lag[id] = s.DeleteLag[id]
	return nil
}

// GetSnapshot implements cloud.BlockStorage
func (s *Store) GetSnapshot(_ context.Context, id string) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls[id]++
	if errs := s.GetErrs[id]; len(errs) > 0 {
		s.GetErrs[id] = errs[1:]
		if errs[0] != nil {
			return nil, errs[0]
		}
	}

	if snapshot, ok := s.snapshots[id]; ok {
		c := clone(snapshot)
		return &c, nil
	}
	if snapshot, ok := s.deleted[id]; ok && s.lag[id] != 0 {
		if s.lag[id] > 0 {
			s.lag[id]--
		}
		c := clone(snapshot)
		return &c, nil
	}
	return nil, fmt.Errorf("snapshot %s: %w", id, cloud.ErrNotFound)
}

// Snapshots returns the snapshots currently stored
func (s *Store) Snapshots() []models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Snapshot
	for _, id := range s.order {
		if snapshot, ok := s.snapshots[id]; ok {
			result = append(result, clone(snapshot))
		}
	}
	return result
}

// Created returns the options of every CreateSnapshot call
func (s *Store) Created() []cloud.CreateSnapshotOpts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cloud.CreateSnapshotOpts(nil), s.created...)
}

// DeleteCalls returns how many times DeleteSnapshot was called for id
func (s *Store) DeleteCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCalls[id]
}

// DeletedIDs returns the sorted ids DeleteSnapshot was called for
func (s *Store) DeletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.deleteCalls))
	for id := range s.deleteCalls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetCalls returns how many times GetSnapshot was called for id
func (s *Store) GetCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[id]
}

func clone(snapshot *models.Snapshot) models.Snapshot {
	c := *snapshot
	c.Metadata = copyMap(snapshot.Metadata)
	return c
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
