package openstack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
)

// fakeOpenStack serves the subset of Keystone and Cinder used by the adapter
type fakeOpenStack struct {
	mu         sync.Mutex
	snapshots  map[string]map[string]any
	queries    []string
	trustQuery string
	created    []map[string]any
}

func newFakeOpenStack() *fakeOpenStack {
	return &fakeOpenStack{snapshots: map[string]map[string]any{
		"snap-1": {
			"id":         "snap-1",
			"name":       "",
			"status":     "available",
			"volume_id":  "vol-1",
			"size":       10,
			"created_at": "2021-06-01T08:00:00.000000",
			"metadata":   map[string]string{"expire_at": "2021-09-01"},
		},
	}}
}

func (f *fakeOpenStack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/OS-TRUST/trusts":
		f.trustQuery = r.URL.Query().Get("trustee_user_id")
		writeJSON(w, http.StatusOK, map[string]any{
			"trusts": []map[string]any{{"id": "trust-1", "project_id": "project-t"}},
			"links":  map[string]any{"next": nil},
		})
	case path == "/users/user-1/projects":
		writeJSON(w, http.StatusOK, map[string]any{
			"projects": []map[string]any{{"id": "project-a", "name": "alpha"}, {"id": "project-b", "name": "beta"}},
			"links":    map[string]any{"next": nil},
		})
	case path == "/volumes/detail":
		writeJSON(w, http.StatusOK, map[string]any{
			"volumes": []map[string]any{{
				"id":       "vol-1",
				"name":     "data",
				"status":   "in-use",
				"size":     10,
				"metadata": map[string]string{"automatic_snapshots": "true"},
			}},
		})
	case (path == "/snapshots" || path == "/snapshots/detail") && r.Method == http.MethodGet:
		f.queries = append(f.queries, r.URL.RawQuery)
		var list []map[string]any
		for _, s := range f.snapshots {
			list = append(list, s)
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": list})
	case path == "/snapshots" && r.Method == http.MethodPost:
		var body struct {
			Snapshot map[string]any `json:"snapshot"`
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.created = append(f.created, body.Snapshot)
		snapshot := map[string]any{
			"id":         "snap-new",
			"status":     "creating",
			"volume_id":  body.Snapshot["volume_id"],
			"size":       10,
			"created_at": "2021-06-15T12:00:00.000000",
			"metadata":   body.Snapshot["metadata"],
		}
		f.snapshots["snap-new"] = snapshot
		writeJSON(w, http.StatusAccepted, map[string]any{"snapshot": snapshot})
	case strings.HasPrefix(path, "/snapshots/"):
		id := strings.TrimPrefix(path, "/snapshots/")
		snapshot, ok := f.snapshots[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"itemNotFound": map[string]any{"code": 404}})
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.snapshots, id)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": snapshot})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, handler http.Handler) (*gophercloud.ProviderClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider := &gophercloud.ProviderClient{
		TokenID: "token",
		EndpointLocator: func(gophercloud.EndpointOpts) (string, error) {
			return server.URL + "/", nil
		},
	}
	return provider, server
}

func newTestIdentity(t *testing.T, fake http.Handler, scopeErr error) *Identity {
	provider, server := newTestClient(t, fake)
	identity := &gophercloud.ServiceClient{ProviderClient: provider, Endpoint: server.URL + "/"}
	scoped := func(_ context.Context, _ models.Scope) (*gophercloud.ProviderClient, error) {
		if scopeErr != nil {
			return nil, scopeErr
		}
		return provider, nil
	}
	return newIdentity(identity, "user-1", gophercloud.EndpointOpts{}, scoped, zerolog.Nop())
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))

	notFound := gophercloud.ErrDefault404{}
	assert.ErrorIs(t, translateError(notFound), cloud.ErrNotFound)
	assert.ErrorIs(t, translateError(fmt.Errorf("wrapped: %w", notFound)), cloud.ErrNotFound)
	assert.ErrorIs(t, translateError(gophercloud.ErrDefault403{}), cloud.ErrForbidden)

	other := gophercloud.ErrDefault500{}
	assert.False(t, cloud.IsNotFound(translateError(other)))
	assert.False(t, cloud.IsForbidden(translateError(other)))
}

func TestIdentityEnumerates(t *testing.T) {
	fake := newFakeOpenStack()
	identity := newTestIdentity(t, fake, nil)

	trusts, err := identity.ListTrusts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Trust{{ID: "trust-1", ProjectID: "project-t"}}, trusts)
	assert.Equal(t, "user-1", fake.trustQuery)

	projects, err := identity.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Project{{ID: "project-a", Name: "alpha"}, {ID: "project-b", Name: "beta"}}, projects)
}

func TestIdentityConnectForbidden(t *testing.T) {
	identity := newTestIdentity(t, newFakeOpenStack(), translateError(gophercloud.ErrDefault403{}))

	_, err := identity.Connect(context.Background(), models.Scope{TrustID: "trust-1", ProjectID: "project-t"})
	require.Error(t, err)
	assert.True(t, cloud.IsForbidden(err))
	assert.Contains(t, err.Error(), "trust:trust-1")
}

func TestCinderStore(t *testing.T) {
	fake := newFakeOpenStack()
	identity := newTestIdentity(t, fake, nil)
	ctx := context.Background()

	store, err := identity.Connect(ctx, models.Scope{ProjectID: "project-a"})
	require.NoError(t, err)

	volumes, err := store.ListVolumes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Volume{{
		ID:       "vol-1",
		Name:     "data",
		Status:   models.VolumeStatusInUse,
		Size:     10,
		Metadata: map[string]string{models.MetadataAutomaticSnapshots: "true"},
	}}, volumes)

	snapshots, err := store.ListSnapshots(ctx, cloud.ListSnapshotsOpts{Status: models.SnapshotStatusAvailable, VolumeID: "vol-1"})
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "snap-1", snapshots[0].ID)
	assert.Equal(t, time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC), snapshots[0].CreatedAt)
	assert.Equal(t, "2021-09-01", snapshots[0].Metadata[models.MetadataExpireAt])
	require.Len(t, fake.queries, 1)
	assert.Contains(t, fake.queries[0], "status=available")
	assert.Contains(t, fake.queries[0], "volume_id=vol-1")

	created, err := store.CreateSnapshot(ctx, cloud.CreateSnapshotOpts{
		VolumeID:    "vol-1",
		Description: "Automatic daily snapshot",
		Metadata:    map[string]string{models.MetadataExpireAt: "2021-09-15"},
		Force:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "snap-new", created.ID)
	assert.Equal(t, models.SnapshotStatusCreating, created.Status)
	require.Len(t, fake.created, 1)
	assert.Equal(t, true, fake.created[0]["force"])
	assert.Equal(t, "Automatic daily snapshot", fake.created[0]["description"])

	got, err := store.GetSnapshot(ctx, "snap-new")
	require.NoError(t, err)
	assert.Equal(t, "2021-09-15", got.Metadata[models.MetadataExpireAt])

	require.NoError(t, store.DeleteSnapshot(ctx, "snap-new"))
	_, err = store.GetSnapshot(ctx, "snap-new")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
	assert.ErrorIs(t, store.DeleteSnapshot(ctx, "snap-new"), cloud.ErrNotFound)
}

func TestCinderStoreCancelledContext(t *testing.T) {
	identity := newTestIdentity(t, newFakeOpenStack(), nil)
	store, err := identity.Connect(context.Background(), models.Scope{ProjectID: "project-a"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.ListVolumes(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadAuthOptionsFromEnv(t *testing.T) {
	t.Setenv("OS_AUTH_URL", "https://keystone.example.com/v3")
	t.Setenv("OS_USERNAME", "snapshooter")
	t.Setenv("OS_PASSWORD", "secret")
	t.Setenv("OS_USER_DOMAIN_NAME", "Default")
	t.Setenv("OS_REGION_NAME", "RegionOne")

	authOpts, endpoint, err := loadAuthOptions(Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://keystone.example.com/v3", authOpts.IdentityEndpoint)
	assert.Equal(t, "snapshooter", authOpts.Username)
	assert.Equal(t, "RegionOne", endpoint.Region)

	_, endpoint, err = loadAuthOptions(Options{Region: "RegionTwo"})
	require.NoError(t, err)
	assert.Equal(t, "RegionTwo", endpoint.Region)
}
