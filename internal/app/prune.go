package app

import (
	"context"
	"errors"
	"fmt"
)

// Prune deletes ledger rows attempted before opts.Before.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	if opts.Before.IsZero() {
		return errors.New("a cutoff time is required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if err := requireLedger(store, "prune"); err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	deleted, err := store.DeletePurchasesBefore(ctx, opts.Before.UTC())
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("deleted", deleted).Time("before", opts.Before.UTC()).Msg("ledger pruned")
	fmt.Fprintf(a.out(), "deleted %d purchases\n", deleted)
	return nil
}
