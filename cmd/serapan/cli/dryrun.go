package cli

import (
	"context"
	"fmt"

	"github.com/bulog/serapan/internal/reconcile"
)

// Directory lists the offices known to a store.
type Directory interface {
	ListKanwil(ctx context.Context) ([]reconcile.Kanwil, error)
	ListKancab(ctx context.Context) ([]reconcile.Kancab, error)
}

// DryRunStore builds an in-memory store seeded with the offices of dir, so a dry run
// resolves names exactly as a real import would. A nil dir yields an empty directory.
func DryRunStore(ctx context.Context, dir Directory) (*reconcile.MemoryStore, error) {
	if dir == nil {
		return reconcile.NewMemoryStore(nil, nil), nil
	}
	kanwils, err := dir.ListKanwil(ctx)
	if err != nil {
		return nil, fmt.Errorf("dry run: list kanwil: %w", err)
	}
	kancabs, err := dir.ListKancab(ctx)
	if err != nil {
		return nil, fmt.Errorf("dry run: list kancab: %w", err)
	}
	return reconcile.NewMemoryStore(kanwils, kancabs), nil
}
