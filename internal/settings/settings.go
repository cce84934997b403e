// Package settings holds the user-tunable sniper parameters and their persistence.
package settings

import (
	"fmt"
)

// Rotation selects how the engine cycles through selected filters.
type Rotation string

const (
	RotationSequential Rotation = "sequential"
	RotationPerCycle   Rotation = "per-cycle"
	RotationRandom     Rotation = "random"
)

// ParseRotation validates a rotation name.
func ParseRotation(s string) (Rotation, error) {
	switch r := Rotation(s); r {
	case RotationSequential, RotationPerCycle, RotationRandom:
		return r, nil
	case "":
		return RotationSequential, nil
	default:
		return "", fmt.Errorf("unknown filter rotation %q", s)
	}
}

// Range is an inclusive integer interval.
type Range struct {
	Min int `json:"min" mapstructure:"min"`
	Max int `json:"max" mapstructure:"max"`
}

// Floor is an opt-in cache-defeat price floor with its cap.
type Floor struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	Amount  int  `json:"amount" mapstructure:"amount"`
}

// Search groups search behaviour toggles.
type Search struct {
	DryRun         bool     `json:"dryRun" mapstructure:"dryRun"`
	FilterRotation Rotation `json:"filterRotation" mapstructure:"filterRotation"`
	RandomMinBid   Floor    `json:"randomMinBid" mapstructure:"randomMinBid"`
	RandomMinBuy   Floor    `json:"randomMinBuy" mapstructure:"randomMinBuy"`
	WinSound       bool     `json:"enableWinSound" mapstructure:"enableWinSound"`
	FailSound      bool     `json:"enableFailSound" mapstructure:"enableFailSound"`
	ErrorSound     bool     `json:"enableErrorSound" mapstructure:"enableErrorSound"`
	SortResults    bool     `json:"sortResults" mapstructure:"sortResults"`
}

// Safety groups pacing parameters. Delays are in seconds.
type Safety struct {
	DelayBetweenSearches Range `json:"delayBetweenSearches" mapstructure:"delayBetweenSearches"`
	EnableCycles         bool  `json:"enableCycles" mapstructure:"enableCycles"`
	CyclesPerPause       Range `json:"cyclesPerPause" mapstructure:"cyclesPerPause"`
	DelayBetweenCycles   Range `json:"delayBetweenCycles" mapstructure:"delayBetweenCycles"`
}

// Settings is the full sniper parameter record.
type Settings struct {
	Search Search `json:"search" mapstructure:"search"`
	Safety Safety `json:"safety" mapstructure:"safety"`
}

// Defaults returns the built-in parameter set.
func Defaults() Settings {
	return Settings{
		Search: Search{
			DryRun:         false,
			FilterRotation: RotationSequential,
			RandomMinBid:   Floor{Enabled: false, Amount: 300},
			RandomMinBuy:   Floor{Enabled: false, Amount: 300},
			WinSound:       true,
			FailSound:      true,
			ErrorSound:     true,
		},
		Safety: Safety{
			DelayBetweenSearches: Range{Min: 2, Max: 6},
			EnableCycles:         true,
			CyclesPerPause:       Range{Min: 10, Max: 15},
			DelayBetweenCycles:   Range{Min: 10, Max: 15},
		},
	}
}

// Normalize clamps ranges so min <= max and nothing is negative. Cycle counts are at least one.
func Normalize(s Settings) Settings {
	s.Safety.DelayBetweenSearches = clamp(s.Safety.DelayBetweenSearches, 0)
	s.Safety.CyclesPerPause = clamp(s.Safety.CyclesPerPause, 1)
	s.Safety.DelayBetweenCycles = clamp(s.Safety.DelayBetweenCycles, 0)
	s.Search.RandomMinBid.Amount = max(0, s.Search.RandomMinBid.Amount)
	s.Search.RandomMinBuy.Amount = max(0, s.Search.RandomMinBuy.Amount)
	if _, err := ParseRotation(string(s.Search.FilterRotation)); err != nil || s.Search.FilterRotation == "" {
		s.Search.FilterRotation = RotationSequential
	}
	return s
}

// Validate rejects inverted or negative ranges and unknown rotations.
func (s Settings) Validate() error {
	ranges := []struct {
		name string
		r    Range
	}{
		{"safety.delayBetweenSearches", s.Safety.DelayBetweenSearches},
		{"safety.cyclesPerPause", s.Safety.CyclesPerPause},
		{"safety.delayBetweenCycles", s.Safety.DelayBetweenCycles},
	}
	for _, item := range ranges {
		if item.r.Min < 0 {
			return fmt.Errorf("%s.min cannot be negative", item.name)
		}
		if item.r.Min > item.r.Max {
			return fmt.Errorf("%s.min must not exceed max", item.name)
		}
	}
	if s.Safety.EnableCycles && s.Safety.CyclesPerPause.Min < 1 {
		return fmt.Errorf("safety.cyclesPerPause.min must be at least 1")
	}
	if _, err := ParseRotation(string(s.Search.FilterRotation)); err != nil {
		return err
	}
	return nil
}

func clamp(r Range, floor int) Range {
	r.Min = max(floor, r.Min)
	r.Max = max(r.Min, r.Max)
	return r
}
