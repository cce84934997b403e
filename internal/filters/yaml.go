package filters

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"transfer-sniper/internal/market"
)

type exportDoc struct {
	Filters []Filter `yaml:"filters"`
}

// Export writes all filters as a YAML document.
func (s *Store) Export(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(exportDoc{Filters: s.List()}); err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	return enc.Close()
}

// Import appends filters from a YAML document produced by Export. Imported filters get
// fresh ids so they never collide with existing ones. A document with an unknown bucket is
// rejected before anything is stored. It returns the number imported.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	var doc exportDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode filters: %w", err)
	}

	for i, f := range doc.Filters {
		if _, err := market.ParseBucket(string(f.Bucket)); err != nil {
			return 0, fmt.Errorf("filter %d (%s): %w", i+1, f.Name, err)
		}
	}

	imported := 0
	for _, f := range doc.Filters {
		if _, err := s.Save(ctx, f.Bucket, f.Criteria, f.Reference); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
