// Package openstack implements the cloud interfaces on OpenStack: Keystone
// for tenant enumeration and scoped authentication, Cinder for volumes and
// snapshots.
package openstack

import (
	"context"
	"fmt"
	"os"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/extensions/trusts"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/projects"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/tokens"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/users"
	"github.com/gophercloud/utils/openstack/clientconfig"
	"github.com/rs/zerolog"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
)

// Options configure the openstack provider
type Options struct {
	// Cloud names a clouds.yaml entry; empty reads the OS_* variables
	Cloud string
	// Region overrides the region of the credentials
	Region string
}

// scopedAuth authenticates a provider client acting within scope
type scopedAuth func(ctx context.Context, scope models.Scope) (*gophercloud.ProviderClient, error)

// Identity implements cloud.Identity with Keystone v3
type Identity struct {
	identity *gophercloud.ServiceClient
	userID   string
	endpoint gophercloud.EndpointOpts
	scoped   scopedAuth
	logger   zerolog.Logger
}

// NewIdentity authenticates with the base credentials and resolves the
// caller's user
func NewIdentity(ctx context.Context, opts Options, logger zerolog.Logger) (*Identity, error) {
	authOpts, endpoint, err := loadAuthOptions(opts)
	if err != nil {
		return nil, err
	}
	authOpts.AllowReauth = true

	provider, err := openstack.NewClient(authOpts.IdentityEndpoint)
	if err != nil {
		return nil, fmt.Errorf("error creating OpenStack client: %w", err)
	}
	provider.Context = ctx
	if err := openstack.Authenticate(provider, authOpts); err != nil {
		return nil, fmt.Errorf("error authenticating to %s: %w", authOpts.IdentityEndpoint, translateError(err))
	}

	userID, err := currentUserID(provider)
	if err != nil {
		return nil, err
	}

	identity, err := openstack.NewIdentityV3(provider, endpoint)
	if err != nil {
		return nil, fmt.Errorf("error creating identity client: %w", err)
	}

	logger = logger.With().Str("component", "openstack").Logger()
	logger.Debug().Str("user", userID).Str("region", endpoint.Region).Msg("Authenticated")
	return newIdentity(identity, userID, endpoint, scopedAuthenticator(authOpts), logger), nil
}

func newIdentity(identity *gophercloud.ServiceClient, userID string, endpoint gophercloud.EndpointOpts, scoped scopedAuth, logger zerolog.Logger) *Identity {
	return &Identity{
		identity: identity,
		userID:   userID,
		endpoint: endpoint,
		scoped:   scoped,
		logger:   logger,
	}
}

// loadAuthOptions reads the credentials from clouds.yaml when opts.Cloud is
// set and from the OS_* environment otherwise
func loadAuthOptions(opts Options) (gophercloud.AuthOptions, gophercloud.EndpointOpts, error) {
	endpoint := gophercloud.EndpointOpts{Region: opts.Region}

	if opts.Cloud == "" {
		authOpts, err := openstack.AuthOptionsFromEnv()
		if err != nil {
			return authOpts, endpoint, fmt.Errorf("error reading OpenStack credentials from environment: %w", err)
		}
		if endpoint.Region == "" {
			endpoint.Region = os.Getenv("OS_REGION_NAME")
		}
		return authOpts, endpoint, nil
	}

	clientOpts := &clientconfig.ClientOpts{Cloud: opts.Cloud}
	authOpts, err := clientconfig.AuthOptions(clientOpts)
	if err != nil {
		return gophercloud.AuthOptions{}, endpoint, fmt.Errorf("error reading cloud %s: %w", opts.Cloud, err)
	}
	if endpoint.Region == "" {
		entry, err := clientconfig.GetCloudFromYAML(clientOpts)
		if err != nil {
			return gophercloud.AuthOptions{}, endpoint, fmt.Errorf("error reading cloud %s: %w", opts.Cloud, err)
		}
		endpoint.Region = entry.RegionName
	}
	return *authOpts, endpoint, nil
}

func currentUserID(provider *gophercloud.ProviderClient) (string, error) {
	result, ok := provider.GetAuthResult().(tokens.CreateResult)
	if !ok {
		return "", fmt.Errorf("unexpected authentication result %T", provider.GetAuthResult())
	}
	user, err := result.ExtractUser()
	if err != nil {
		return "", fmt.Errorf("error extracting current user: %w", err)
	}
	return user.ID, nil
}

// scopedAuthenticator returns a function authenticating with base rescoped
// to a project or a trust
func scopedAuthenticator(base gophercloud.AuthOptions) scopedAuth {
	return func(ctx context.Context, scope models.Scope) (*gophercloud.ProviderClient, error) {
		authOpts := base
		authOpts.TenantID = ""
		authOpts.TenantName = ""
		authOpts.Scope = nil

		provider, err := openstack.NewClient(authOpts.IdentityEndpoint)
		if err != nil {
			return nil, err
		}
		provider.Context = ctx

		if scope.IsTrust() {
			ext := trusts.AuthOptsExt{AuthOptionsBuilder: &authOpts, TrustID: scope.TrustID}
			err = openstack.AuthenticateV3(provider, ext, gophercloud.EndpointOpts{})
		} else {
			authOpts.Scope = &gophercloud.AuthScope{ProjectID: scope.ProjectID}
			err = openstack.Authenticate(provider, authOpts)
		}
		if err != nil {
			return nil, translateError(err)
		}
		return provider, nil
	}
}

// ListTrusts returns the trusts delegated to the caller
func (i *Identity) ListTrusts(_ context.Context) ([]models.Trust, error) {
	pages, err := trusts.List(i.identity, trusts.ListOpts{TrusteeUserID: i.userID}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("error listing trusts: %w", translateError(err))
	}
	all, err := trusts.ExtractTrusts(pages)
	if err != nil {
		return nil, fmt.Errorf("error extracting trusts: %w", err)
	}

	result := make([]models.Trust, 0, len(all))
	for _, trust := range all {
		result = append(result, models.Trust{ID: trust.ID, ProjectID: trust.ProjectID})
	}
	return result, nil
}

// ListProjects returns the projects the caller is a member of
func (i *Identity) ListProjects(_ context.Context) ([]models.Project, error) {
	pages, err := users.ListProjects(i.identity, i.userID).AllPages()
	if err != nil {
		return nil, fmt.Errorf("error listing projects: %w", translateError(err))
	}
	all, err := projects.ExtractProjects(pages)
	if err != nil {
		return nil, fmt.Errorf("error extracting projects: %w", err)
	}

	result := make([]models.Project, 0, len(all))
	for _, project := range all {
		result = append(result, models.Project{ID: project.ID, Name: project.Name})
	}
	return result, nil
}

// Connect authenticates within scope and returns its block storage
func (i *Identity) Connect(ctx context.Context, scope models.Scope) (cloud.BlockStorage, error) {
	provider, err := i.scoped(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("error authenticating as %s: %w", scope, err)
	}
	client, err := openstack.NewBlockStorageV3(provider, i.endpoint)
	if err != nil {
		return nil, fmt.Errorf("error creating block storage client for %s: %w", scope, translateError(err))
	}
	return NewCinderStore(client, i.logger), nil
}
