package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"transfer-sniper/internal/filters"
	"transfer-sniper/internal/market"
)

// viewReader is what filter capture needs from the host page.
type viewReader interface {
	market.ViewState
	CurrentReference(ctx context.Context) (*filters.ReferenceItem, error)
}

// FilterSelection names filters to select or deselect.
type FilterSelection struct {
	IDs []string
	All bool
}

func (a *App) withFilters(ctx context.Context, fn func(*filters.Store) error) error {
	loc, closeLocal, err := a.openLocal(ctx)
	if err != nil {
		return err
	}
	defer closeLocal()
	return fn(loc.filters)
}

// ListFilters prints saved filters with their selection mark.
func (a *App) ListFilters(ctx context.Context) error {
	return a.withFilters(ctx, func(store *filters.Store) error {
		list := store.List()
		if len(list) == 0 {
			fmt.Fprintln(a.out(), "no saved filters")
			return nil
		}
		writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "\tID\tName\tBucket\tSell\tUpdated (UTC)")
		for _, f := range list {
			mark := " "
			if store.IsSelected(f.ID) {
				mark = "*"
			}
			sell := "-"
			if p := f.SellPrice(); p > 0 {
				sell = humanize.Comma(int64(p))
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
				mark, f.ID, sanitizeInline(f.Name), f.Bucket, sell, f.UpdatedAt.UTC().Format("2006-01-02 15:04"))
		}
		return writer.Flush()
	})
}

// SaveFilter captures the host search screen as a new filter.
func (a *App) SaveFilter(ctx context.Context, bucket string) error {
	b, err := market.ParseBucket(bucket)
	if err != nil {
		return err
	}
	browser, err := a.connectBrowser(ctx)
	if err != nil {
		return err
	}
	defer browser.Close()

	return a.withFilters(ctx, func(store *filters.Store) error {
		id, err := captureFilter(ctx, store, browser, b, "")
		if err != nil {
			return err
		}
		f, _ := store.Get(id)
		fmt.Fprintf(a.out(), "saved %s: %s\n", f.ID, f.Name)
		return nil
	})
}

// UpdateFilter replaces a saved filter's criteria with what the host search screen shows.
func (a *App) UpdateFilter(ctx context.Context, id string) error {
	browser, err := a.connectBrowser(ctx)
	if err != nil {
		return err
	}
	defer browser.Close()

	return a.withFilters(ctx, func(store *filters.Store) error {
		if _, err := captureFilter(ctx, store, browser, "", id); err != nil {
			return err
		}
		f, _ := store.Get(id)
		fmt.Fprintf(a.out(), "updated %s: %s\n", f.ID, f.Name)
		return nil
	})
}

// captureFilter saves a new filter, or updates id when it is set, from the view's current state.
func captureFilter(ctx context.Context, store *filters.Store, view viewReader, bucket market.Bucket, id string) (string, error) {
	if baseline, err := view.DefaultCriteria(ctx); err == nil {
		store.SetBaseline(baseline)
	}
	crit, err := view.CurrentCriteria(ctx)
	if err != nil {
		return "", err
	}
	if len(crit) == 0 {
		return "", errors.New("host search screen has no criteria; open the transfer market search first")
	}
	ref, err := view.CurrentReference(ctx)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, store.Update(ctx, id, crit, ref)
	}
	return store.Save(ctx, bucket, crit, ref)
}

// RemoveFilter deletes one saved filter.
func (a *App) RemoveFilter(ctx context.Context, id string) error {
	return a.withFilters(ctx, func(store *filters.Store) error {
		if err := store.Remove(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out(), "removed %s\n", id)
		return store.SaveSelection(ctx)
	})
}

// ClearFilters deletes every saved filter.
func (a *App) ClearFilters(ctx context.Context) error {
	return a.withFilters(ctx, func(store *filters.Store) error {
		if err := store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out(), "all filters removed")
		return store.SaveSelection(ctx)
	})
}

// SelectFilters marks filters active for the next run.
func (a *App) SelectFilters(ctx context.Context, sel FilterSelection) error {
	return a.withFilters(ctx, func(store *filters.Store) error {
		if sel.All {
			store.SelectAll()
		}
		for _, id := range sel.IDs {
			if err := store.Select(id); err != nil {
				return err
			}
		}
		fmt.Fprintf(a.out(), "%d filters selected\n", len(store.SelectedIDs()))
		return store.SaveSelection(ctx)
	})
}

// DeselectFilters clears the active mark.
func (a *App) DeselectFilters(ctx context.Context, sel FilterSelection) error {
	return a.withFilters(ctx, func(store *filters.Store) error {
		if sel.All {
			store.DeselectAll()
		}
		for _, id := range sel.IDs {
			store.Deselect(id)
		}
		fmt.Fprintf(a.out(), "%d filters selected\n", len(store.SelectedIDs()))
		return store.SaveSelection(ctx)
	})
}

// ExportFilters writes saved filters as YAML to path, or to the command output when path is "-" or empty.
func (a *App) ExportFilters(ctx context.Context, path string) error {
	return a.withFilters(ctx, func(store *filters.Store) error {
		if path == "" || path == "-" {
			return store.Export(a.out())
		}
		if err := ensureDir(path); err != nil {
			return err
		}
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		return store.Export(file)
	})
}

// ImportFilters appends filters from a YAML file, or stdin when path is "-".
func (a *App) ImportFilters(ctx context.Context, path string, stdin io.Reader) error {
	return a.withFilters(ctx, func(store *filters.Store) error {
		var r io.Reader = stdin
		if path != "-" {
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			r = file
		}
		n, err := store.Import(ctx, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out(), "imported %d filters\n", n)
		return nil
	})
}
