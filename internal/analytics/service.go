// Package analytics serves the procurement dashboard views over a repository with an
// optional versioned Redis cache.
package analytics

import (
	"context"
	"log/slog"

	"github.com/bulog/serapan/internal/procurement"
)

// Repository loads the raw dashboard inputs.
type Repository interface {
	Transactions(ctx context.Context, f procurement.Filter) ([]procurement.TransactionRecord, error)
	RegionTargets(ctx context.Context) ([]procurement.RegionTarget, error)
	BranchTargets(ctx context.Context) ([]procurement.BranchTarget, error)
}

// Service coordinates dashboard computations with the cache layer.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService wires a Repository with a Cache helper. A nil cache loads directly.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// fetch resolves key through the cache, running load on a miss.
func fetch[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	var out T
	loader := func(ctx context.Context) (any, error) { return load(ctx) }
	if s.cache == nil {
		return load(ctx)
	}
	versioned, err := s.cache.BuildKey(ctx, key)
	if err != nil {
		return out, err
	}
	if err := s.cache.FetchJSON(ctx, versioned, &out, loader); err != nil {
		return out, err
	}
	return out, nil
}

// Invalidate drops every cached view, typically after a successful reconciliation.
func (s *Service) Invalidate(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return err
	}
	s.logger.Info("dashboard cache invalidated")
	return nil
}
