package sniper

import (
	"testing"

	"transfer-sniper/internal/market"
	"transfer-sniper/internal/settings"
)

var testLadderOpts = LadderOptions{BidStart: 150, BuyStart: 200, DefaultCap: 300}

func TestValues(t *testing.T) {
	tests := []struct {
		name         string
		start, limit int
		want         []int
	}{
		{"default bid", 150, 300, []int{0, 150, 200, 250, 300}},
		{"default buy", 200, 300, []int{0, 200, 250, 300}},
		{"below start", 150, 100, []int{0}},
		{"crosses one thousand", 900, 3000, []int{0, 900, 950, 1000, 2000, 3000}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Values(tc.start, tc.limit)
			if len(got) != len(tc.want) {
				t.Fatalf("Values(%d, %d) = %v, want %v", tc.start, tc.limit, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("Values(%d, %d) = %v, want %v", tc.start, tc.limit, got, tc.want)
				}
			}
		})
	}

	if n := len(Values(150, 3000)); n != 21 {
		t.Fatalf("expected 21 steps up to 3,000, got %d", n)
	}
}

func TestBuildLadderDefaultCrossProduct(t *testing.T) {
	l := BuildLadder(settings.Defaults().Search, testLadderOpts)
	if len(l) != 20 {
		t.Fatalf("default ladder should be 5x4, got %d", len(l))
	}
	if f := l.At(0); f.MinBid != 0 || f.MinBuy != 0 || !f.SetMinBid || !f.SetMinBuy {
		t.Fatalf("unexpected first entry %+v", f)
	}
	if f := l.At(1); f.MinBid != 0 || f.MinBuy != 200 {
		t.Fatalf("unexpected second entry %+v", f)
	}
	if f := l.At(20); f != l.At(0) {
		t.Fatal("ladder must wrap around")
	}
}

func TestBuildLadderSingleFloor(t *testing.T) {
	s := settings.Defaults().Search
	s.RandomMinBid = settings.Floor{Enabled: true, Amount: 250}
	l := BuildLadder(s, testLadderOpts)
	if len(l) != 4 {
		t.Fatalf("bid-only ladder should have 4 entries, got %d", len(l))
	}
	crit := market.Criteria{"minBuy": 1000}
	l.Apply(crit, 3)
	if crit.Int(market.KeyMinBid) != 250 || crit.Int(market.KeyMinBuy) != 1000 {
		t.Fatalf("bid-only ladder must leave minBuy alone, got %v", crit)
	}

	s = settings.Defaults().Search
	s.RandomMinBuy = settings.Floor{Enabled: true, Amount: 200}
	l = BuildLadder(s, testLadderOpts)
	crit = market.Criteria{"minBid": 150}
	l.Apply(crit, 1)
	if len(l) != 2 || crit.Int(market.KeyMinBuy) != 200 || crit.Int(market.KeyMinBid) != 150 {
		t.Fatalf("buy-only ladder misapplied: %v (len %d)", crit, len(l))
	}
}

func TestBuildLadderBothCapped(t *testing.T) {
	s := settings.Defaults().Search
	s.RandomMinBid = settings.Floor{Enabled: true, Amount: 150}
	s.RandomMinBuy = settings.Floor{Enabled: true, Amount: 1000}
	l := BuildLadder(s, testLadderOpts)
	bids, buys := len(Values(150, 150)), len(Values(200, 1000))
	if len(l) != bids*buys {
		t.Fatalf("expected %d entries, got %d", bids*buys, len(l))
	}
	last := l.At(len(l) - 1)
	if last.MinBid != 150 || last.MinBuy != 1000 {
		t.Fatalf("last entry should sit at both caps, got %+v", last)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		resp market.SearchResponse
		want Failure
	}{
		{market.SearchResponse{Status: 429}, FailureCaptcha},
		{market.SearchResponse{Status: 521}, FailureCaptcha},
		{market.SearchResponse{StatusText: market.CaptchaRequired}, FailureCaptcha},
		{market.SearchResponse{Status: 458, ErrorCode: market.CaptchaRequired}, FailureCaptcha},
		{market.SearchResponse{Status: 503}, FailureMaintenance},
		{market.SearchResponse{Status: 512}, FailureMaintenance},
		{market.SearchResponse{Status: 500}, FailureTransient},
		{market.SearchResponse{}, FailureTransient},
	}
	for _, tc := range tests {
		if got := Classify(tc.resp); got != tc.want {
			t.Errorf("Classify(%+v) = %s, want %s", tc.resp, got, tc.want)
		}
	}
	if FailureTransient.Fatal() || !FailureMaintenance.Fatal() {
		t.Fatal("only transient failures are retryable")
	}
}
