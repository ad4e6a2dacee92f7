// Package aws implements the cloud interfaces on EC2 EBS. The caller's own
// account is the single project; IAM roles assumed through STS play the role
// of delegated trusts.
package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
	"github.com/younsl/snapshooter/pkg/utils"
)

// STSAPI is the subset of the STS client used by Identity
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Options configure the aws provider
type Options struct {
	Region string
	// Profile is the shared config profile, empty for the default chain
	Profile string
	// RoleARNs are assumed as delegated tenants
	RoleARNs    []string
	SessionName string
	// WireLogging logs SDK requests and responses at trace level
	WireLogging bool
}

// Identity implements cloud.Identity for AWS accounts
type Identity struct {
	cfg    aws.Config
	opts   Options
	logger zerolog.Logger

	newEC2 func(aws.Config) EC2API
	newSTS func(aws.Config) STSAPI

	mu      sync.Mutex
	account string
}

// NewIdentity loads the default AWS configuration for opts.Region
func NewIdentity(ctx context.Context, opts Options, logger zerolog.Logger) (*Identity, error) {
	if opts.Region == "" {
		opts.Region = utils.GetDefaultRegion()
	}
	if !utils.IsValidRegion(opts.Region) {
		return nil, fmt.Errorf("invalid AWS region %q", opts.Region)
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.WireLogging {
		loadOpts = append(loadOpts,
			config.WithLogger(newSDKLogger(logger)),
			config.WithClientLogMode(aws.LogRequest|aws.LogResponse|aws.LogRetries),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}

	return newIdentity(cfg, opts, logger,
		func(c aws.Config) EC2API { return ec2.NewFromConfig(c) },
		func(c aws.Config) STSAPI { return sts.NewFromConfig(c) },
	), nil
}

func newIdentity(cfg aws.Config, opts Options, logger zerolog.Logger, newEC2 func(aws.Config) EC2API, newSTS func(aws.Config) STSAPI) *Identity {
	logger = logger.With().Str("component", "aws").Logger()
	logger.Debug().
		Str("region", opts.Region).
		Str("region_name", utils.GetRegionDescriptiveName(opts.Region)).
		Int("roles", len(opts.RoleARNs)).
		Msg("AWS provider configured")
	return &Identity{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		newEC2: newEC2,
		newSTS: newSTS,
	}
}

// callerAccount returns the account of the base credentials. Only a
// successful lookup is cached.
func (i *Identity) callerAccount(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.account != "" {
		return i.account, nil
	}

	out, err := i.newSTS(i.cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("error getting caller identity: %w", translateError(err))
	}
	i.account = aws.ToString(out.Account)
	return i.account, nil
}

// ListTrusts returns one trust per configured role, scoped to the role's account
func (i *Identity) ListTrusts(_ context.Context) ([]models.Trust, error) {
	trusts := make([]models.Trust, 0, len(i.opts.RoleARNs))
	for _, roleARN := range i.opts.RoleARNs {
		parsed, err := arn.Parse(roleARN)
		if err != nil {
			return nil, fmt.Errorf("invalid role ARN %q: %w", roleARN, err)
		}
		trusts = append(trusts, models.Trust{ID: roleARN, ProjectID: parsed.AccountID})
	}
	return trusts, nil
}

// ListProjects returns the caller's own account
func (i *Identity) ListProjects(ctx context.Context) ([]models.Project, error) {
	account, err := i.callerAccount(ctx)
	if err != nil {
		return nil, err
	}
	return []models.Project{{ID: account, Name: account}}, nil
}

// Connect returns an EBS store acting within scope. Trust scopes assume the
// role and verify the credentials so a denied role is reported here.
func (i *Identity) Connect(ctx context.Context, scope models.Scope) (cloud.BlockStorage, error) {
	if !scope.IsTrust() {
		account, err := i.callerAccount(ctx)
		if err != nil {
			return nil, err
		}
		if scope.ProjectID != account {
			return nil, fmt.Errorf("account %s is not the caller account: %w", scope.ProjectID, cloud.ErrForbidden)
		}
		return NewEBSStore(i.newEC2(i.cfg), i.opts.Region, i.logger), nil
	}

	cfg := i.cfg.Copy()
	provider := stscreds.NewAssumeRoleProvider(i.newSTS(i.cfg), scope.TrustID, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = i.opts.SessionName
	})
	cfg.Credentials = aws.NewCredentialsCache(provider)

	out, err := i.newSTS(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("error assuming role %s: %w", scope.TrustID, translateError(err))
	}
	i.logger.Debug().Str("role", scope.TrustID).Str("account", aws.ToString(out.Account)).Msg("Assumed role")
	return NewEBSStore(i.newEC2(cfg), i.opts.Region, i.logger), nil
}
