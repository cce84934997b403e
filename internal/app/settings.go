package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"transfer-sniper/internal/settings"
)

func (a *App) withSettings(ctx context.Context, fn func(*settings.Store) error) error {
	loc, closeLocal, err := a.openLocal(ctx)
	if err != nil {
		return err
	}
	defer closeLocal()
	return fn(loc.settings)
}

// ShowSettings prints the persisted settings as JSON.
func (a *App) ShowSettings(ctx context.Context) error {
	return a.withSettings(ctx, func(store *settings.Store) error {
		return a.printSettings(store.Load(ctx))
	})
}

// ResetSettings restores defaults.
func (a *App) ResetSettings(ctx context.Context) error {
	return a.withSettings(ctx, func(store *settings.Store) error {
		st, err := store.Reset(ctx)
		if err != nil {
			return err
		}
		return a.printSettings(st)
	})
}

// SetSettings applies "path=value" assignments, e.g. "safety.delayBetweenSearches.min=3".
func (a *App) SetSettings(ctx context.Context, assignments []string) error {
	partial, err := parseAssignments(assignments)
	if err != nil {
		return err
	}
	return a.withSettings(ctx, func(store *settings.Store) error {
		next, err := settings.MergeMap(store.Load(ctx), partial)
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := store.Save(ctx, next); err != nil {
			return err
		}
		return a.printSettings(settings.Normalize(next))
	})
}

func (a *App) printSettings(st settings.Settings) error {
	body, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = fmt.Fprintln(a.out(), string(body))
	return err
}

// parseAssignments turns dotted assignments into the nested map MergeMap expects.
// Values stay strings; the weakly typed decoder converts them.
func parseAssignments(assignments []string) (map[string]any, error) {
	root := make(map[string]any)
	for _, raw := range assignments {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, want path=value", raw)
		}
		parts := strings.Split(key, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				if _, exists := node[p]; exists {
					return nil, fmt.Errorf("assignment %q conflicts with an earlier value", raw)
				}
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = strings.TrimSpace(value)
	}
	return root, nil
}
