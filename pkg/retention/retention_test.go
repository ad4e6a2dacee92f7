package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/younsl/snapshooter/internal/models"
)

var now = time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)

func automatic(id string, createdAt time.Time) models.Snapshot {
	return models.Snapshot{
		ID:        id,
		Status:    models.SnapshotStatusAvailable,
		VolumeID:  "vol-1",
		CreatedAt: createdAt,
		Metadata:  map[string]string{models.MetadataExpireAt: "2021-12-31"},
	}
}

func manual(id string, createdAt time.Time) models.Snapshot {
	return models.Snapshot{
		ID:        id,
		Status:    models.SnapshotStatusAvailable,
		VolumeID:  "vol-1",
		CreatedAt: createdAt,
		Metadata:  map[string]string{},
	}
}

func TestDecide(t *testing.T) {
	volume := models.Volume{ID: "vol-1", Status: models.VolumeStatusAvailable}

	tests := []struct {
		name       string
		snapshots  []models.Snapshot
		wantCreate bool
		wantTier   Tier
		wantExpiry string
	}{
		{
			name:       "never snapshotted",
			wantCreate: true,
			wantTier:   TierMonthly,
			wantExpiry: "2021-09-15",
		},
		{
			name:       "last year same month",
			snapshots:  []models.Snapshot{automatic("s1", now.AddDate(-1, 0, 0))},
			wantCreate: true,
			wantTier:   TierMonthly,
			wantExpiry: "2021-09-15",
		},
		{
			name:       "earlier this year",
			snapshots:  []models.Snapshot{automatic("s1", now.AddDate(0, -3, 0))},
			wantCreate: true,
			wantTier:   TierMonthly,
			wantExpiry: "2021-09-15",
		},
		{
			name:       "earlier this month",
			snapshots:  []models.Snapshot{automatic("s1", now.AddDate(0, 0, -3))},
			wantCreate: true,
			wantTier:   TierWeekly,
			wantExpiry: "2021-06-22",
		},
		{
			name: "several this month none today",
			snapshots: []models.Snapshot{
				automatic("s1", now.AddDate(0, 0, -1)),
				automatic("s2", now.AddDate(0, 0, -8)),
			},
			wantCreate: true,
			wantTier:   TierWeekly,
			wantExpiry: "2021-06-22",
		},
		{
			name:       "already today",
			snapshots:  []models.Snapshot{automatic("s1", now.Add(-3*time.Hour))},
			wantCreate: false,
			wantTier:   TierWeekly,
		},
		{
			name: "manual snapshots only",
			snapshots: []models.Snapshot{
				manual("m1", now.Add(-time.Hour)),
				manual("m2", now.AddDate(0, 0, -2)),
			},
			wantCreate: true,
			wantTier:   TierMonthly,
			wantExpiry: "2021-09-15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Decide(volume, tt.snapshots, now)
			assert.Equal(t, tt.wantCreate, decision.Create)
			assert.Equal(t, tt.wantTier, decision.Tier)
			if tt.wantCreate {
				assert.Equal(t, tt.wantExpiry, decision.ExpireAtValue())
				assert.Empty(t, decision.ExistingID)
			} else {
				assert.Equal(t, "s1", decision.ExistingID)
			}
		})
	}
}

func TestDecideShortCircuitsOnToday(t *testing.T) {
	volume := models.Volume{ID: "vol-1"}
	snapshots := []models.Snapshot{
		automatic("earlier", now.AddDate(0, 0, -2)),
		automatic("today", now.Add(-time.Minute)),
		automatic("later", now.AddDate(0, 0, -5)),
	}

	decision := Decide(volume, snapshots, now)
	assert.False(t, decision.Create)
	assert.Equal(t, "today", decision.ExistingID)
}

func TestDecideIgnoresOtherVolumes(t *testing.T) {
	volume := models.Volume{ID: "vol-2"}
	decision := Decide(volume, []models.Snapshot{automatic("s1", now)}, now)
	assert.True(t, decision.Create)
	assert.True(t, decision.Monthly())
}

func TestDecideComparesInUTC(t *testing.T) {
	volume := models.Volume{ID: "vol-1"}
	// 2021-06-15 01:00 in UTC+2 is 2021-06-14 23:00 UTC
	tz := time.FixedZone("UTC+2", 2*60*60)
	created := time.Date(2021, 6, 15, 1, 0, 0, 0, tz)

	decision := Decide(volume, []models.Snapshot{automatic("s1", created)}, now)
	assert.True(t, decision.Create)
	assert.Equal(t, TierWeekly, decision.Tier)
}

func TestExpiryDate(t *testing.T) {
	tests := []struct {
		now  time.Time
		tier Tier
		want string
	}{
		{time.Date(2021, 6, 15, 23, 59, 0, 0, time.UTC), TierMonthly, "2021-09-15"},
		{time.Date(2021, 11, 30, 8, 0, 0, 0, time.UTC), TierMonthly, "2022-02-28"},
		{time.Date(2023, 11, 30, 8, 0, 0, 0, time.UTC), TierMonthly, "2024-02-29"},
		{time.Date(2021, 12, 31, 8, 0, 0, 0, time.UTC), TierMonthly, "2022-03-31"},
		{time.Date(2021, 12, 28, 8, 0, 0, 0, time.UTC), TierWeekly, "2022-01-04"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := ExpiryDate(tt.now, tt.tier)
			assert.Equal(t, tt.want, got.Format(DateLayout))
			assert.Zero(t, got.Hour())
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestIsExpired(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		want     bool
	}{
		{"yesterday", map[string]string{models.MetadataExpireAt: "2021-06-14"}, true},
		{"today", map[string]string{models.MetadataExpireAt: "2021-06-15"}, false},
		{"tomorrow", map[string]string{models.MetadataExpireAt: "2021-06-16"}, false},
		{"long ago", map[string]string{models.MetadataExpireAt: "2019-01-01"}, true},
		{"manual", map[string]string{"owner": "someone"}, false},
		{"no metadata", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := models.Snapshot{ID: "s1", Status: models.SnapshotStatusAvailable, Metadata: tt.metadata}
			expired, err := IsExpired(snapshot, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expired)
		})
	}
}

func TestIsExpiredBoundary(t *testing.T) {
	snapshot := models.Snapshot{ID: "s1", Metadata: map[string]string{models.MetadataExpireAt: "2021-06-15"}}

	expired, err := IsExpired(snapshot, time.Date(2021, 6, 15, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, expired)

	expired, err = IsExpired(snapshot, time.Date(2021, 6, 16, 0, 0, 0, 1, time.UTC))
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestIsExpiredMalformed(t *testing.T) {
	snapshot := models.Snapshot{ID: "s1", Metadata: map[string]string{models.MetadataExpireAt: "next tuesday"}}

	_, err := IsExpired(snapshot, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedExpiry)
}

func TestShouldSweep(t *testing.T) {
	errored := models.Snapshot{Status: models.SnapshotStatusError, Metadata: map[string]string{models.MetadataExpireAt: "2099-01-01"}}
	assert.True(t, ShouldSweep(errored))

	erroredManual := models.Snapshot{Status: models.SnapshotStatusError, Metadata: map[string]string{}}
	assert.False(t, ShouldSweep(erroredManual))

	available := models.Snapshot{Status: models.SnapshotStatusAvailable, Metadata: map[string]string{models.MetadataExpireAt: "2000-01-01"}}
	assert.False(t, ShouldSweep(available))
}
