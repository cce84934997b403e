package sniper

import (
	"transfer-sniper/internal/market"
	"transfer-sniper/internal/settings"
)

// Floors is one entry of the cache-defeat ladder. Only the fields flagged Set* are written
// into a request.
type Floors struct {
	MinBid    int
	MinBuy    int
	SetMinBid bool
	SetMinBuy bool
}

// LadderOptions holds the ladder constants.
type LadderOptions struct {
	BidStart   int
	BuyStart   int
	DefaultCap int
}

// Ladder is the deterministic, repeating sequence of price floors the engine walks so that
// consecutive requests never share a parameter tuple.
type Ladder []Floors

// Values returns [0, start, start+50, ...] up to and including limit. Steps are 50 below
// 1,000 and 1,000 from there on.
func Values(start, limit int) []int {
	values := []int{0}
	if start <= 0 {
		return values
	}
	for v := start; v <= limit; {
		values = append(values, v)
		if v >= 1000 {
			v += 1000
		} else {
			v += 50
		}
	}
	return values
}

// BuildLadder derives the ladder from the search settings.
func BuildLadder(search settings.Search, opts LadderOptions) Ladder {
	bidOn := search.RandomMinBid.Enabled
	buyOn := search.RandomMinBuy.Enabled

	switch {
	case !bidOn && !buyOn:
		return cross(Values(opts.BidStart, opts.DefaultCap), Values(opts.BuyStart, opts.DefaultCap))
	case bidOn && buyOn:
		return cross(Values(opts.BidStart, search.RandomMinBid.Amount), Values(opts.BuyStart, search.RandomMinBuy.Amount))
	case bidOn:
		bids := Values(opts.BidStart, search.RandomMinBid.Amount)
		out := make(Ladder, len(bids))
		for i, b := range bids {
			out[i] = Floors{MinBid: b, SetMinBid: true}
		}
		return out
	default:
		buys := Values(opts.BuyStart, search.RandomMinBuy.Amount)
		out := make(Ladder, len(buys))
		for i, b := range buys {
			out[i] = Floors{MinBuy: b, SetMinBuy: true}
		}
		return out
	}
}

func cross(bids, buys []int) Ladder {
	out := make(Ladder, 0, len(bids)*len(buys))
	for _, bid := range bids {
		for _, buy := range buys {
			out = append(out, Floors{MinBid: bid, MinBuy: buy, SetMinBid: true, SetMinBuy: true})
		}
	}
	return out
}

// At returns the entry for the n-th search.
func (l Ladder) At(n int) Floors {
	if len(l) == 0 {
		return Floors{}
	}
	return l[n%len(l)]
}

// Apply writes the n-th entry into c.
func (l Ladder) Apply(c market.Criteria, n int) {
	f := l.At(n)
	if f.SetMinBid {
		c.Set(market.KeyMinBid, f.MinBid)
	}
	if f.SetMinBuy {
		c.Set(market.KeyMinBuy, f.MinBuy)
	}
}
