// Package filters stores the user's saved search criteria and which of them are active.
package filters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"transfer-sniper/internal/market"
)

// DefaultKey is the blob key saved filters are stored under.
const DefaultKey = "saved_filters"

// DefaultSelectionKey is the blob key the active selection is stored under.
const DefaultSelectionKey = "selected_filters"

// ErrNotFound is returned for operations on an unknown filter id.
var ErrNotFound = errors.New("filters: not found")

// ReferenceItem is a snapshot of the item a filter targets.
type ReferenceItem struct {
	ID         int64  `json:"id" yaml:"id"`
	FirstName  string `json:"firstName" yaml:"firstName"`
	LastName   string `json:"lastName" yaml:"lastName"`
	CommonName string `json:"commonName,omitempty" yaml:"commonName,omitempty"`
	Rating     int    `json:"rating" yaml:"rating"`
}

// Label renders "First Last (rating)", or "" when the snapshot has no name.
func (r *ReferenceItem) Label() string {
	if r == nil {
		return ""
	}
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		name = strings.TrimSpace(r.CommonName)
	}
	if name == "" {
		return ""
	}
	rating := "?"
	if r.Rating > 0 {
		rating = fmt.Sprint(r.Rating)
	}
	return fmt.Sprintf("%s (%s)", name, rating)
}

// Filter is one saved search.
type Filter struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Bucket    market.Bucket   `json:"bucket" yaml:"bucket"`
	Reference *ReferenceItem  `json:"reference,omitempty" yaml:"reference,omitempty"`
	Criteria  market.Criteria `json:"criteria" yaml:"criteria"`
	CreatedAt time.Time       `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt" yaml:"updatedAt"`
}

// SellPrice is the auto-relist price stored with the criteria, or 0.
func (f Filter) SellPrice() int {
	return f.Criteria.Int(market.KeySellPrice)
}

func (f Filter) clone() Filter {
	out := f
	out.Criteria = f.Criteria.Clone()
	if f.Reference != nil {
		ref := *f.Reference
		out.Reference = &ref
	}
	return out
}

// Persister is the blob storage saved filters live in.
type Persister interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Options tune a Store.
type Options struct {
	Key          string
	SelectionKey string
	Baseline     market.Criteria
	Now          func() time.Time
	NewID        func() string
}

// Store holds saved filters in insertion order plus the active selection.
type Store struct {
	mu       sync.RWMutex
	filters  []Filter
	selected map[string]struct{}

	kv       Persister
	key      string
	selKey   string
	baseline market.Criteria
	now      func() time.Time
	newID    func() string
	logger   zerolog.Logger
}

// NewStore constructs an empty store. kv may be nil for a purely in-memory store.
func NewStore(kv Persister, opts Options, logger zerolog.Logger) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.SelectionKey == "" {
		opts.SelectionKey = DefaultSelectionKey
	}
	if opts.Baseline == nil {
		opts.Baseline = BaselineCriteria()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Store{
		selected: make(map[string]struct{}),
		kv:       kv,
		key:      opts.Key,
		selKey:   opts.SelectionKey,
		baseline: opts.Baseline.Clone(),
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   logger.With().Str("component", "filters").Logger(),
	}
}

// Load replaces the in-memory filters with the persisted set. A corrupt blob is logged and ignored.
func (s *Store) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load filters: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil
	}

	var loaded []Filter
	if err := json.Unmarshal(raw, &loaded); err != nil {
		s.logger.Warn().Err(err).Msg("saved filters corrupt; starting empty")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = s.filters[:0]
	seen := make(map[string]struct{}, len(loaded))
	for _, f := range loaded {
		if f.ID == "" {
			f.ID = s.newID()
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		b, err := market.ParseBucket(string(f.Bucket))
		if err != nil {
			s.logger.Warn().Err(err).Str("filter_id", f.ID).Str("name", f.Name).Msg("dropping saved filter")
			continue
		}
		f.Bucket = b
		seen[f.ID] = struct{}{}
		if f.Criteria == nil {
			f.Criteria = market.Criteria{}
		}
		s.filters = append(s.filters, f)
	}
	s.loadSelectionLocked(ctx, seen)
	for id := range s.selected {
		if _, ok := seen[id]; !ok {
			delete(s.selected, id)
		}
	}
	return nil
}

func (s *Store) loadSelectionLocked(ctx context.Context, known map[string]struct{}) {
	raw, ok, err := s.kv.Get(ctx, s.selKey)
	if err != nil || !ok || len(raw) == 0 {
		return
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		s.logger.Warn().Err(err).Msg("saved selection corrupt; ignoring")
		return
	}
	for _, id := range ids {
		if _, ok := known[id]; ok {
			s.selected[id] = struct{}{}
		}
	}
}

// SaveSelection persists the active selection so the next process starts with it.
func (s *Store) SaveSelection(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	body, err := json.Marshal(s.SelectedIDs())
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}
	if err := s.kv.Put(ctx, s.selKey, body); err != nil {
		return fmt.Errorf("persist selection: %w", err)
	}
	return nil
}

// SetBaseline swaps the default criteria names are diffed against.
func (s *Store) SetBaseline(baseline market.Criteria) {
	if baseline == nil {
		return
	}
	s.mu.Lock()
	s.baseline = baseline.Clone()
	s.mu.Unlock()
}

// Save stores criteria as a new filter and returns its id.
// An unknown bucket is rejected.
func (s *Store) Save(ctx context.Context, bucket market.Bucket, criteria market.Criteria, ref *ReferenceItem) (string, error) {
	b, err := market.ParseBucket(string(bucket))
	if err != nil {
		return "", fmt.Errorf("save filter: %w", err)
	}

	s.mu.Lock()
	now := s.now()
	f := Filter{
		ID:        s.newID(),
		Bucket:    b,
		Reference: cloneRef(ref),
		Criteria:  sanitize(criteria),
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Named from the criteria as displayed, before the bid bounds are cleared.
	f.Name = Name(criteria, s.baseline, f.Reference)
	s.filters = append(s.filters, f)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info().Str("filter_id", f.ID).Str("name", f.Name).Msg("filter saved")
	return f.ID, s.persist(ctx, snapshot)
}

// Update replaces the criteria and reference item of an existing filter in place.
// The id and creation time never change.
func (s *Store) Update(ctx context.Context, id string, criteria market.Criteria, ref *ReferenceItem) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	f := &s.filters[idx]
	f.Criteria = sanitize(criteria)
	f.Reference = cloneRef(ref)
	f.Name = Name(criteria, s.baseline, f.Reference)
	f.UpdatedAt = s.now()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	return s.persist(ctx, snapshot)
}

// Remove deletes a filter and drops it from the selection.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	s.filters = append(s.filters[:idx], s.filters[idx+1:]...)
	delete(s.selected, id)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	return s.persist(ctx, snapshot)
}

// Clear deletes every filter and empties the selection.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.filters = nil
	s.selected = make(map[string]struct{})
	s.mu.Unlock()

	return s.persist(ctx, []Filter{})
}

// Get returns a copy of one filter.
func (s *Store) Get(id string) (Filter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return Filter{}, false
	}
	return s.filters[idx].clone(), true
}

// List returns copies of all filters in save order.
func (s *Store) List() []Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Select marks a filter active.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return fmt.Errorf("select %s: %w", id, ErrNotFound)
	}
	s.selected[id] = struct{}{}
	return nil
}

// Deselect clears a filter's active mark. Unknown ids are ignored.
func (s *Store) Deselect(id string) {
	s.mu.Lock()
	delete(s.selected, id)
	s.mu.Unlock()
}

// SelectAll marks every filter active.
func (s *Store) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.filters {
		s.selected[f.ID] = struct{}{}
	}
}

// DeselectAll empties the selection.
func (s *Store) DeselectAll() {
	s.mu.Lock()
	s.selected = make(map[string]struct{})
	s.mu.Unlock()
}

// IsSelected reports whether id is active.
func (s *Store) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[id]
	return ok
}

// SelectedIDs lists active ids in save order.
func (s *Store) SelectedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.selected))
	for _, f := range s.filters {
		if _, ok := s.selected[f.ID]; ok {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// Selected returns copies of the active filters in save order.
func (s *Store) Selected() []Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Filter, 0, len(s.selected))
	for _, f := range s.filters {
		if _, ok := s.selected[f.ID]; ok {
			out = append(out, f.clone())
		}
	}
	return out
}

func (s *Store) indexLocked(id string) int {
	for i := range s.filters {
		if s.filters[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []Filter {
	out := make([]Filter, len(s.filters))
	for i, f := range s.filters {
		out[i] = f.clone()
	}
	return out
}

func (s *Store) persist(ctx context.Context, filters []Filter) error {
	if s.kv == nil {
		return nil
	}
	body, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	if err := s.kv.Put(ctx, s.key, body); err != nil {
		return fmt.Errorf("persist filters: %w", err)
	}
	return nil
}

// sanitize copies criteria and zeroes the bid bounds, which the engine owns per request.
func sanitize(c market.Criteria) market.Criteria {
	out := c.Clone()
	out.Set(market.KeyMinBid, 0)
	out.Set(market.KeyMaxBid, 0)
	return out
}

func cloneRef(ref *ReferenceItem) *ReferenceItem {
	if ref == nil {
		return nil
	}
	cp := *ref
	return &cp
}
