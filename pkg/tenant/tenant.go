// Package tenant enumerates the tenant scopes a caller may act within and
// fans a per-tenant operation out across them with bounded concurrency.
package tenant

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/younsl/snapshooter/internal/logging"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the default number of tenants processed at once
const DefaultConcurrency = 20

// Operation processes one tenant through a client bound to its scope
type Operation func(ctx context.Context, store cloud.BlockStorage, scope models.Scope) (models.Summary, error)

// Enumerate lists every scope the caller may act within: delegated trusts
// first, then direct project memberships, each in the order the identity
// service returns them.
func Enumerate(ctx context.Context, identity cloud.Identity) ([]models.Scope, error) {
	trusts, err := identity.ListTrusts(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing trusts: %w", err)
	}
	projects, err := identity.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing projects: %w", err)
	}

	scopes := make([]models.Scope, 0, len(trusts)+len(projects))
	for _, trust := range trusts {
		scopes = append(scopes, models.Scope{TrustID: trust.ID, ProjectID: trust.ProjectID})
	}
	for _, project := range projects {
		scopes = append(scopes, models.Scope{ProjectID: project.ID})
	}
	return scopes, nil
}

// Harness runs an operation on every tenant scope of an identity
type Harness struct {
	identity    cloud.Identity
	concurrency int
	logger      zerolog.Logger

	// OnSkip is called for every tenant skipped for lack of rights
	OnSkip func(scope models.Scope)
}

// NewHarness creates a Harness running at most concurrency tenants at once
func NewHarness(identity cloud.Identity, concurrency int, logger zerolog.Logger) *Harness {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Harness{
		identity:    identity,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "tenant").Logger(),
	}
}

// Run invokes op once per tenant scope and returns the summaries of the
// tenants that completed, in enumeration order. Tenants denied with
// cloud.ErrForbidden are logged and skipped. Any other error aborts the run
// and is returned; tenants not yet started are not processed.
func (h *Harness) Run(ctx context.Context, op Operation) ([]models.Summary, error) {
	scopes, err := Enumerate(ctx, h.identity)
	if err != nil {
		return nil, err
	}
	h.logger.Debug().Int("tenants", len(scopes)).Int("concurrency", h.concurrency).Msg("Dispatching tenants")

	results := make([]*models.Summary, len(scopes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)

	for i, scope := range scopes {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			summary, err := h.runOne(gctx, scope, op)
			if err != nil {
				if cloud.IsForbidden(err) {
					logger := logging.WithScope(h.logger, scope)
					logger.Info().Err(err).Msg("No rights on this tenant, skipping")
					if h.OnSkip != nil {
						h.OnSkip(scope)
					}
					return nil
				}
				return fmt.Errorf("tenant %s: %w", scope, err)
			}
			summary.Scope = scope
			results[i] = &summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summaries := make([]models.Summary, 0, len(results))
	for _, r := range results {
		if r != nil {
			summaries = append(summaries, *r)
		}
	}
	return summaries, nil
}

func (h *Harness) runOne(ctx context.Context, scope models.Scope, op Operation) (models.Summary, error) {
	store, err := h.identity.Connect(ctx, scope)
	if err != nil {
		return models.Summary{}, fmt.Errorf("error connecting to %s: %w", scope, err)
	}
	return op(ctx, store, scope)
}

// RunOnAll is a convenience wrapper building a Harness and running op
func RunOnAll(ctx context.Context, identity cloud.Identity, op Operation, concurrency int, logger zerolog.Logger) ([]models.Summary, error) {
	return NewHarness(identity, concurrency, logger).Run(ctx, op)
}
