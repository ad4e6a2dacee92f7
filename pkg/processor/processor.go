// Package processor holds the per-tenant operations: the creator takes
// today's automatic snapshots, the destroyer removes expired and errored
// ones. Both iterate sequentially over a single tenant and count per-entity
// failures instead of aborting; listing failures abort the tenant.
package processor

import (
	"time"

	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/retention"
)

// SnapshotDescription is set on every automatic snapshot
const SnapshotDescription = "Automatic daily snapshot"

// Destroy reasons
const (
	ReasonExpired = "expired"
	ReasonErrored = "errored"
)

// Options are shared by both processors
type Options struct {
	// DryRun runs the decisions and logs intended actions without mutating
	DryRun bool
	// TrueTokens are the automatic_snapshots values opting a volume in
	TrueTokens []string
	// Now defaults to time.Now
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o Options) trueTokens() []string {
	if len(o.TrueTokens) == 0 {
		return retention.DefaultTrueTokens
	}
	return o.TrueTokens
}

func sizeBytes(gib int) uint64 {
	if gib <= 0 {
		return 0
	}
	return uint64(gib) << 30
}

func expireAt(snapshot models.Snapshot) string {
	return snapshot.Metadata[models.MetadataExpireAt]
}
