package filters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"transfer-sniper/internal/market"
)

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte) error {
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func newTestStore(kv Persister) *Store {
	n := 0
	return NewStore(kv, Options{
		Now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("f%d", n)
		},
	}, zerolog.Nop())
}

func TestSaveAssignsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)

	a, err := s.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 1000}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	b, _ := s.Save(ctx, "", market.Criteria{}, nil)
	if a == b {
		t.Fatal("ids must be unique")
	}

	f, ok := s.Get(b)
	if !ok {
		t.Fatal("saved filter should be retrievable")
	}
	if f.Bucket != market.BucketPlayer {
		t.Fatalf("empty bucket should default to player, got %q", f.Bucket)
	}
	if f.Name != DefaultName {
		t.Fatalf("empty criteria should be named %q, got %q", DefaultName, f.Name)
	}
}

func TestSaveZeroesEngineOwnedBidBounds(t *testing.T) {
	s := newTestStore(nil)
	crit := market.Criteria{"minBid": 500, "maxBid": 900, "minBuy": 1000}
	id, _ := s.Save(context.Background(), market.BucketPlayer, crit, nil)

	f, _ := s.Get(id)
	if f.Criteria.Int(market.KeyMinBid) != 0 || f.Criteria.Int(market.KeyMaxBid) != 0 {
		t.Fatalf("bid bounds should be zeroed, got %v", f.Criteria)
	}
	if crit.Int(market.KeyMinBid) != 500 {
		t.Fatal("caller's criteria must not be mutated")
	}
}

func TestNameKeepsDisplayedBidBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	id, err := s.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 1000, "maxBid": 900}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	f, _ := s.Get(id)
	if f.Name != "Min: 1,000, Bid Max: 900" {
		t.Fatalf("unexpected name %q", f.Name)
	}
	if f.Criteria.Int(market.KeyMaxBid) != 0 {
		t.Fatalf("stored maxBid should be zeroed, got %v", f.Criteria)
	}

	if err := s.Update(ctx, id, market.Criteria{"minBid": 250}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	f, _ = s.Get(id)
	if f.Name != "Bid Min: 250" {
		t.Fatalf("unexpected updated name %q", f.Name)
	}
}

func TestSaveRejectsUnknownBucket(t *testing.T) {
	s := newTestStore(nil)
	if _, err := s.Save(context.Background(), "staf", market.Criteria{"minBuy": 1000}, nil); err == nil {
		t.Fatal("expected unknown bucket error")
	}
	if len(s.List()) != 0 {
		t.Fatal("rejected filter must not be stored")
	}

	id, err := s.Save(context.Background(), " Staff ", market.Criteria{}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if f, _ := s.Get(id); f.Bucket != market.BucketStaff {
		t.Fatalf("bucket should be normalised, got %q", f.Bucket)
	}
}

func TestImportRejectsUnknownBucket(t *testing.T) {
	doc := `filters:
  - name: good
    bucket: player
    criteria:
      minBuy: 1000
  - name: typo
    bucket: staf
    criteria:
      league: 13
`
	s := newTestStore(nil)
	n, err := s.Import(context.Background(), strings.NewReader(doc))
	if err == nil || !strings.Contains(err.Error(), "staf") {
		t.Fatalf("expected unknown bucket error, got %v", err)
	}
	if n != 0 || len(s.List()) != 0 {
		t.Fatalf("nothing should be imported, got n=%d list=%d", n, len(s.List()))
	}
}

func TestLoadDropsUnknownBucket(t *testing.T) {
	kv := newMemKV()
	kv.data[DefaultKey] = []byte(`[{"id":"ok","bucket":"club","criteria":{}},{"id":"bad","bucket":"staf","criteria":{}}]`)
	kv.data[DefaultSelectionKey] = []byte(`["ok","bad"]`)

	s := newTestStore(kv)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	list := s.List()
	if len(list) != 1 || list[0].ID != "ok" || list[0].Bucket != market.BucketClub {
		t.Fatalf("unexpected filters after load %+v", list)
	}
	if s.IsSelected("bad") || !s.IsSelected("ok") {
		t.Fatalf("unexpected selection %v", s.SelectedIDs())
	}
}

func TestUpdateKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	id, _ := s.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 1000}, nil)
	before, _ := s.Get(id)

	ref := &ReferenceItem{FirstName: "Kylian", LastName: "Mbappe", Rating: 91}
	if err := s.Update(ctx, id, market.Criteria{"maxBuy": 25000}, ref); err != nil {
		t.Fatalf("update: %v", err)
	}

	after, _ := s.Get(id)
	if after.ID != before.ID || !after.CreatedAt.Equal(before.CreatedAt) {
		t.Fatal("identity must survive update")
	}
	if after.Criteria.Int(market.KeyMaxBuy) != 25000 {
		t.Fatalf("criteria not updated: %v", after.Criteria)
	}
	if after.Name != "Kylian Mbappe (91) | Max: 25,000" {
		t.Fatalf("unexpected name %q", after.Name)
	}
}

func TestUpdateUnknownReportsNotFound(t *testing.T) {
	s := newTestStore(nil)
	err := s.Update(context.Background(), "missing", market.Criteria{}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatal("update on unknown id must not create a filter")
	}
}

func TestRemoveDropsSelection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	a, _ := s.Save(ctx, market.BucketPlayer, market.Criteria{}, nil)
	b, _ := s.Save(ctx, market.BucketPlayer, market.Criteria{}, nil)
	s.SelectAll()

	if err := s.Remove(ctx, a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.IsSelected(a) {
		t.Fatal("removed filter must leave the selection")
	}
	if ids := s.SelectedIDs(); len(ids) != 1 || ids[0] != b {
		t.Fatalf("unexpected selection %v", ids)
	}
	if err := s.Remove(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove should report ErrNotFound, got %v", err)
	}
}

func TestSelectionManagement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	a, _ := s.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 100}, nil)
	b, _ := s.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 200}, nil)
	c, _ := s.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 300}, nil)

	if err := s.Select("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("selecting unknown id should fail, got %v", err)
	}

	_ = s.Select(c)
	_ = s.Select(a)
	if ids := s.SelectedIDs(); len(ids) != 2 || ids[0] != a || ids[1] != c {
		t.Fatalf("selected ids should follow save order, got %v", ids)
	}

	sel := s.Selected()
	sel[0].Criteria.Set(market.KeyMinBuy, 999)
	if f, _ := s.Get(a); f.Criteria.Int(market.KeyMinBuy) != 100 {
		t.Fatal("Selected must return copies")
	}

	s.Deselect(a)
	if s.IsSelected(a) || !s.IsSelected(c) {
		t.Fatal("deselect should only affect one id")
	}

	s.SelectAll()
	if len(s.SelectedIDs()) != 3 || !s.IsSelected(b) {
		t.Fatal("select all should mark every filter")
	}
	s.DeselectAll()
	if len(s.SelectedIDs()) != 0 {
		t.Fatal("deselect all should empty the selection")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := newTestStore(kv)
	id, _ := s.Save(ctx, market.BucketClub, market.Criteria{"minBuy": 1500, "sellPrice": 3000}, &ReferenceItem{FirstName: "A", LastName: "B", Rating: 80})

	reloaded := newTestStore(kv)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	f, ok := reloaded.Get(id)
	if !ok {
		t.Fatal("filter should survive reload")
	}
	if f.Bucket != market.BucketClub || f.SellPrice() != 3000 || f.Reference.Label() != "A B (80)" {
		t.Fatalf("unexpected reloaded filter %+v", f)
	}

	if err := reloaded.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	again := newTestStore(kv)
	_ = again.Load(ctx)
	if len(again.List()) != 0 {
		t.Fatal("clear should persist an empty set")
	}
}

func TestSelectionSurvivesReload(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := newTestStore(kv)
	a, _ := s.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 1000}, nil)
	b, _ := s.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 2000}, nil)
	if err := s.Select(b); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.SaveSelection(ctx); err != nil {
		t.Fatalf("save selection: %v", err)
	}

	reloaded := newTestStore(kv)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if reloaded.IsSelected(a) || !reloaded.IsSelected(b) {
		t.Fatalf("expected only %s selected, got %v", b, reloaded.SelectedIDs())
	}

	if err := reloaded.Remove(ctx, b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	again := newTestStore(kv)
	_ = again.Load(ctx)
	if len(again.SelectedIDs()) != 0 {
		t.Fatalf("selection of removed filter should be dropped, got %v", again.SelectedIDs())
	}
}

func TestLoadCorruptBlobStartsEmpty(t *testing.T) {
	kv := newMemKV()
	kv.data[DefaultKey] = []byte("not json")
	s := newTestStore(kv)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("corrupt blob should not error: %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatal("corrupt blob should leave the store empty")
	}
}

func TestYAMLExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(nil)
	_, _ = src.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 1000, "rarities": []any{1, 3}}, nil)
	_, _ = src.Save(ctx, market.BucketStaff, market.Criteria{"league": 13}, nil)

	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newTestStore(nil)
	n, err := dst.Import(ctx, &buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported filters, got %d", n)
	}
	list := dst.List()
	if list[0].Criteria.Int(market.KeyMinBuy) != 1000 || list[1].Bucket != market.BucketStaff {
		t.Fatalf("imported filters differ: %+v", list)
	}
	if list[0].Name != "Min: 1,000, Rarities: 2" {
		t.Fatalf("unexpected imported name %q", list[0].Name)
	}
}
