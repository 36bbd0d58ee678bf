package market

import (
	"testing"
)

func TestSimFeedSnapshotShape(t *testing.T) {
	feed := NewSimFeed(42)

	snap, err := feed.GetSnapshot("SPY")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if snap.Symbol != "SPY" {
		t.Errorf("expected symbol SPY, got %s", snap.Symbol)
	}
	if snap.Price <= 0 {
		t.Errorf("price should be positive, got %f", snap.Price)
	}
	if snap.Bid >= snap.Ask {
		t.Errorf("bid %f should be below ask %f", snap.Bid, snap.Ask)
	}
	if snap.Bid >= snap.Price || snap.Ask <= snap.Price {
		t.Errorf("last price %f should sit inside the spread [%f, %f]", snap.Price, snap.Bid, snap.Ask)
	}
}

func TestSimFeedRejectsEmptySymbol(t *testing.T) {
	feed := NewSimFeed(42)

	if _, err := feed.GetSnapshot(""); err == nil {
		t.Error("expected error for empty symbol")
	}
	if _, err := feed.GetIndicators("SPY", 0); err == nil {
		t.Error("expected error for non-positive window")
	}
}

func TestSimFeedIndicatorsAreComputable(t *testing.T) {
	feed := NewSimFeed(42)

	ind, err := feed.GetIndicators("QQQ", 50)
	if err != nil {
		t.Fatalf("GetIndicators failed: %v", err)
	}
	if ind.RSI < 0 || ind.RSI > 100 {
		t.Errorf("RSI out of range: %f", ind.RSI)
	}
	if ind.ATR <= 0 {
		t.Errorf("ATR should be positive for a random walk: %f", ind.ATR)
	}
	if ind.AvgVolume <= 0 {
		t.Errorf("average volume should be positive: %f", ind.AvgVolume)
	}
}

func TestSimFeedUnknownSymbolGetsDefaultPrice(t *testing.T) {
	feed := NewSimFeed(42)

	snap, err := feed.GetSnapshot("ZZZZ")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if snap.Price < 90 || snap.Price > 110 {
		t.Errorf("unknown symbol should start near the default price, got %f", snap.Price)
	}
}
