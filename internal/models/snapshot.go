package models

import "time"

// Snapshot statuses reported by the block storage service
const (
	SnapshotStatusAvailable = "available"
	SnapshotStatusCreating  = "creating"
	SnapshotStatusDeleting  = "deleting"
	SnapshotStatusError     = "error"
)

// MetadataExpireAt marks a snapshot as automatic and holds its expiry date
// (YYYY-MM-DD, no time of day)
const MetadataExpireAt = "expire_at"

// Snapshot represents a point-in-time copy of a volume
type Snapshot struct {
	ID        string
	Name      string
	Status    string
	VolumeID  string
	Size      int // GiB
	CreatedAt time.Time
	Metadata  map[string]string
}
