package filters

import (
	"testing"

	"transfer-sniper/internal/market"
)

func TestNameDefaultBaseline(t *testing.T) {
	base := BaselineCriteria()
	if got := Name(base.Clone(), base, nil); got != DefaultName {
		t.Fatalf("baseline criteria should be %q, got %q", DefaultName, got)
	}
	if got := Name(market.Criteria{}, base, nil); got != DefaultName {
		t.Fatalf("empty criteria should be %q, got %q", DefaultName, got)
	}
}

func TestNameRendersDifferences(t *testing.T) {
	base := BaselineCriteria()
	crit := base.Merge(market.Criteria{
		"minBuy":    1000,
		"ovrMin":    84,
		"_position": "ST",
		"club":      73,
	})
	if got := Name(crit, base, nil); got != "Min: 1,000, OVR: 84+, Pos: ST" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestNameTruncatesToFour(t *testing.T) {
	base := BaselineCriteria()
	crit := base.Merge(market.Criteria{
		"minBuy":   500,
		"maxBuy":   2000,
		"ovrMin":   80,
		"ovrMax":   85,
		"nation":   18,
		"league":   13,
		"rarities": []any{3.0},
	})
	if got := Name(crit, base, nil); got != "Min: 500, Max: 2,000, OVR: 80+, OVR: -85" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestNameWithReferenceItem(t *testing.T) {
	base := BaselineCriteria()
	ref := &ReferenceItem{FirstName: "Erling", LastName: "Haaland"}

	if got := Name(base.Merge(market.Criteria{"league": 13}), base, ref); got != "Erling Haaland (?)" {
		t.Fatalf("non-price changes should not appear beside a reference item, got %q", got)
	}
	if got := Name(base.Merge(market.Criteria{"maxBuy": 150000}), base, ref); got != "Erling Haaland (?) | Max: 150,000" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := Name(base, base, &ReferenceItem{}); got != DefaultName {
		t.Fatalf("nameless reference should fall back, got %q", got)
	}
}
