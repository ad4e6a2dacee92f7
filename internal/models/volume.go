package models

// Volume statuses reported by the block storage service
const (
	VolumeStatusAvailable = "available"
	VolumeStatusInUse     = "in-use"
)

// MetadataAutomaticSnapshots is the volume metadata flag opting a volume into
// automatic snapshots
const MetadataAutomaticSnapshots = "automatic_snapshots"

// Volume represents a block storage volume
type Volume struct {
	ID       string
	Name     string
	Status   string
	Size     int // GiB
	Metadata map[string]string
}
