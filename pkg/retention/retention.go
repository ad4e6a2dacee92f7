// Package retention decides when automatic snapshots are created and when
// they expire.
//
// A volume gets at most one automatic snapshot per calendar day. The first
// automatic snapshot of a calendar month is kept for three months (monthly
// tier), every other one for seven days (weekly tier). A snapshot is
// automatic when it carries the expire_at metadata key; snapshots without it
// are never selected.
package retention

import (
	"errors"
	"fmt"
	"time"

	"github.com/younsl/snapshooter/internal/models"
)

// DateLayout is the format of the expire_at metadata value
const DateLayout = "2006-01-02"

const (
	monthlyRetentionMonths = 3
	weeklyRetentionDays    = 7
)

// ErrMalformedExpiry is returned when expire_at cannot be parsed as a date
var ErrMalformedExpiry = errors.New("malformed expire_at metadata")

// Tier classifies a new snapshot's retention horizon
type Tier string

const (
	TierMonthly Tier = "monthly"
	TierWeekly  Tier = "weekly"
)

// Decision is the outcome of the creation decision for one volume
type Decision struct {
	Create bool
	Tier   Tier
	// ExpireAt is midnight UTC of the expiry day, set when Create is true
	ExpireAt time.Time
	// ExistingID is today's automatic snapshot when Create is false
	ExistingID string
}

// ExpireAtValue returns the expire_at metadata value for the new snapshot
func (d Decision) ExpireAtValue() string {
	return d.ExpireAt.Format(DateLayout)
}

// Monthly reports whether the decision took the monthly tier
func (d Decision) Monthly() bool {
	return d.Tier == TierMonthly
}

// Decide applies the creation decision to a volume given its available
// snapshots. Snapshots belonging to another volume are ignored.
func Decide(volume models.Volume, snapshots []models.Snapshot, now time.Time) Decision {
	now = now.UTC()
	tier := TierMonthly

	for _, snapshot := range snapshots {
		if snapshot.VolumeID != "" && snapshot.VolumeID != volume.ID {
			continue
		}
		if !IsAutomatic(snapshot) {
			continue
		}
		created := snapshot.CreatedAt.UTC()
		if created.Year() != now.Year() || created.Month() != now.Month() {
			continue
		}

		// An automatic snapshot already exists this month
		tier = TierWeekly
		if created.Day() == now.Day() {
			return Decision{Create: false, Tier: tier, ExistingID: snapshot.ID}
		}
	}

	return Decision{
		Create:   true,
		Tier:     tier,
		ExpireAt: ExpiryDate(now, tier),
	}
}

// ExpiryDate returns the expiry day (midnight UTC) of a snapshot taken at now
func ExpiryDate(now time.Time, tier Tier) time.Time {
	now = now.UTC()
	if tier == TierMonthly {
		return addMonths(now, monthlyRetentionMonths)
	}
	return truncateToDate(now.AddDate(0, 0, weeklyRetentionDays))
}

// addMonths adds calendar months, clamping the day to the end of the target
// month (Nov 30 + 3 months is Feb 28, not Mar 2).
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func truncateToDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// IsAutomatic reports whether the snapshot was created by snapshooter
func IsAutomatic(snapshot models.Snapshot) bool {
	_, ok := snapshot.Metadata[models.MetadataExpireAt]
	return ok
}

// ExpiryOf parses the snapshot's expire_at metadata as midnight UTC
func ExpiryOf(snapshot models.Snapshot) (time.Time, error) {
	value, ok := snapshot.Metadata[models.MetadataExpireAt]
	if !ok {
		return time.Time{}, fmt.Errorf("snapshot %s has no %s metadata", snapshot.ID, models.MetadataExpireAt)
	}
	expireAt, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot %s: %w: %q", snapshot.ID, ErrMalformedExpiry, value)
	}
	return expireAt, nil
}

// IsExpired reports whether an automatic snapshot is past its expiry day.
// The whole expiry day is still valid: the snapshot expires once now crosses
// into the following day. Manual snapshots are never expired.
func IsExpired(snapshot models.Snapshot, now time.Time) (bool, error) {
	if !IsAutomatic(snapshot) {
		return false, nil
	}
	expireAt, err := ExpiryOf(snapshot)
	if err != nil {
		return false, err
	}
	return !now.UTC().Before(expireAt.AddDate(0, 0, 1)), nil
}

// ShouldSweep reports whether an automatic snapshot is in error and must be
// removed regardless of its expiry date
func ShouldSweep(snapshot models.Snapshot) bool {
	return snapshot.Status == models.SnapshotStatusError && IsAutomatic(snapshot)
}
