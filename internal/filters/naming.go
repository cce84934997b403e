package filters

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"transfer-sniper/internal/market"
)

// DefaultName is used when a filter differs from the baseline in no interesting field.
const DefaultName = "Default Filter"

const (
	nameDelimiter = ", "
	maxNameParts  = 4
)

type fieldFormat struct {
	key   string
	price bool
	// render returns "" when the value is not worth naming.
	render func(v any) string
}

// interestingFields is the ordered allow-list of fields that contribute to a filter name.
var interestingFields = []fieldFormat{
	{key: market.KeyMinBuy, price: true, render: priceField("Min")},
	{key: market.KeyMaxBuy, price: true, render: priceField("Max")},
	{key: market.KeyMinBid, price: true, render: priceField("Bid Min")},
	{key: market.KeyMaxBid, price: true, render: priceField("Bid Max")},
	{key: "ovrMin", render: numberField("OVR: %d+")},
	{key: "ovrMax", render: numberField("OVR: -%d")},
	{key: "_position", render: stringField("Pos")},
	{key: "nation", render: numberField("Nation: %d")},
	{key: "league", render: numberField("League: %d")},
	{key: "rarities", render: func(v any) string {
		if n := market.Len(v); n > 0 {
			return fmt.Sprintf("Rarities: %d", n)
		}
		return ""
	}},
}

// BaselineCriteria is the host's untouched search form, used when the view state cannot supply one.
func BaselineCriteria() market.Criteria {
	return market.Criteria{
		market.KeyMinBuy: 0,
		market.KeyMaxBuy: 0,
		market.KeyMinBid: 0,
		market.KeyMaxBid: 0,
		"ovrMin":         45,
		"ovrMax":         99,
		"_position":      "any",
		"nation":         -1,
		"league":         -1,
		"club":           -1,
		"level":          "any",
		"rarities":       []any{},
	}
}

// Name renders a short human-readable label for criteria, diffing against baseline.
func Name(criteria, baseline market.Criteria, ref *ReferenceItem) string {
	changes := make([]string, 0, maxNameParts)
	priceChanges := make([]string, 0, 4)

	for _, f := range interestingFields {
		v, ok := criteria[f.key]
		if !ok || !changed(f, v, baseline[f.key]) {
			continue
		}
		rendered := f.render(v)
		if rendered == "" {
			continue
		}
		changes = append(changes, rendered)
		if f.price {
			priceChanges = append(priceChanges, rendered)
		}
	}

	if ref != nil && ref.Label() != "" {
		if len(priceChanges) > 0 {
			return ref.Label() + " | " + strings.Join(priceChanges, nameDelimiter)
		}
		return ref.Label()
	}

	if len(changes) == 0 {
		return DefaultName
	}
	if len(changes) > maxNameParts {
		changes = changes[:maxNameParts]
	}
	return strings.Join(changes, nameDelimiter)
}

func changed(f fieldFormat, v, base any) bool {
	if f.price {
		n, ok := market.Number(v)
		return ok && n > 0 && !market.Equal(v, base)
	}
	return !market.Equal(v, base)
}

func priceField(label string) func(any) string {
	return func(v any) string {
		n, ok := market.Number(v)
		if !ok || n <= 0 {
			return ""
		}
		return fmt.Sprintf("%s: %s", label, humanize.Comma(int64(n)))
	}
}

func numberField(format string) func(any) string {
	return func(v any) string {
		n, ok := market.Number(v)
		if !ok || n < 0 {
			return ""
		}
		return fmt.Sprintf(format, int64(n))
	}
}

func stringField(label string) func(any) string {
	return func(v any) string {
		s, ok := v.(string)
		if !ok || s == "" || s == "any" {
			return ""
		}
		return fmt.Sprintf("%s: %s", label, s)
	}
}
