package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
)

// DefaultKey is the blob key settings are stored under.
const DefaultKey = "sniper_settings"

// Persister is the blob storage the store reads from and writes to.
type Persister interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Store loads and saves Settings as a JSON blob.
type Store struct {
	kv     Persister
	key    string
	logger zerolog.Logger
}

// NewStore constructs a settings store. An empty key selects DefaultKey.
func NewStore(kv Persister, key string, logger zerolog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{kv: kv, key: key, logger: logger.With().Str("component", "settings").Logger()}
}

// Load returns persisted settings merged field by field over Defaults.
// Missing, unreadable or corrupt blobs yield Defaults. Out-of-range values are clamped.
func (s *Store) Load(ctx context.Context) Settings {
	if s.kv == nil {
		return Defaults()
	}
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("settings unreadable; using defaults")
		return Defaults()
	}
	if !ok || len(raw) == 0 {
		return Defaults()
	}
	merged, err := Merge(Defaults(), raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("settings blob corrupt; using defaults")
		return Defaults()
	}
	return Normalize(merged)
}

// Save persists settings after normalising them.
func (s *Store) Save(ctx context.Context, st Settings) error {
	if s.kv == nil {
		return fmt.Errorf("settings: no persistence configured")
	}
	body, err := json.Marshal(Normalize(st))
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.kv.Put(ctx, s.key, body); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Reset overwrites persisted settings with Defaults and returns them.
func (s *Store) Reset(ctx context.Context) (Settings, error) {
	d := Defaults()
	if err := s.Save(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// Merge decodes a JSON blob over base. Keys absent from the blob keep base's value;
// scalar values are weakly typed so "5" decodes into an int field.
func Merge(base Settings, raw []byte) (Settings, error) {
	var partial map[string]any
	if err := json.Unmarshal(raw, &partial); err != nil {
		return base, fmt.Errorf("decode settings json: %w", err)
	}
	return MergeMap(base, partial)
}

// MergeMap applies a partial settings map over base.
func MergeMap(base Settings, partial map[string]any) (Settings, error) {
	out := base
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return base, fmt.Errorf("settings decoder: %w", err)
	}
	if err := dec.Decode(partial); err != nil {
		return base, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}
