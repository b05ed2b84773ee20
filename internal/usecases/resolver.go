package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"neowhatai/internal/entities"
	"neowhatai/internal/interfaces"
	"neowhatai/internal/repository"
)

var ErrTenantNotFound = errors.New("tenant not found")

// TenantResolver maps an inbound delivery to exactly one active tenant.
type TenantResolver struct {
	tenants        interfaces.TenantStore
	singleFallback bool
	logger         *slog.Logger
}

// NewTenantResolver builds a resolver. singleFallback enables the best-effort
// rule that picks the only active tenant when a delivery carries no session hint.
func NewTenantResolver(tenants interfaces.TenantStore, singleFallback bool, logger *slog.Logger) *TenantResolver {
	return &TenantResolver{
		tenants:        tenants,
		singleFallback: singleFallback,
		logger:         logger.With("component", "resolver"),
	}
}

// Resolve returns the tenant for sessionHint. The tenant's SessionID, not the hint,
// is the session to reply on.
func (r *TenantResolver) Resolve(ctx context.Context, sessionHint string) (*entities.Tenant, error) {
	if sessionHint != "" {
		tenant, err := r.tenants.GetActiveBySession(ctx, sessionHint)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				r.logger.Error("tenant lookup failed", "session_id", sessionHint, "error", err)
			}
			return nil, fmt.Errorf("session %q: %w", sessionHint, ErrTenantNotFound)
		}
		return tenant, nil
	}

	if !r.singleFallback {
		return nil, fmt.Errorf("no session hint: %w", ErrTenantNotFound)
	}

	active, err := r.tenants.ListActive(ctx, 2)
	if err != nil {
		r.logger.Error("list active tenants failed", "error", err)
		return nil, fmt.Errorf("no session hint: %w", ErrTenantNotFound)
	}
	if len(active) != 1 {
		r.logger.Warn("single tenant fallback refused", "active_tenants", len(active))
		return nil, fmt.Errorf("no session hint, %d candidate tenants: %w", len(active), ErrTenantNotFound)
	}

	r.logger.Warn("no session hint, using the only active tenant", "tenant_id", active[0].ID)
	return &active[0], nil
}
