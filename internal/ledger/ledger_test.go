package ledger

import (
	"math"
	"testing"

	"execution-core/internal/gateway"
)

var key = Key{UserID: "u1", Exchange: "sim", Symbol: "BTC/USDT"}

func TestWeightedAverageEntryPrice(t *testing.T) {
	l := New()
	l.Ensure(key)

	l.ApplyFill(key, gateway.SideBuy, 2, 100)
	pos := l.ApplyFill(key, gateway.SideBuy, 3, 200)

	if pos.Quantity != 5 {
		t.Fatalf("quantity=%v, expected 5", pos.Quantity)
	}
	if math.Abs(pos.AvgEntryPrice-160) > 1e-9 {
		t.Fatalf("avg entry=%v, expected 160", pos.AvgEntryPrice)
	}
}

func TestPartialReductionKeepsEntryPrice(t *testing.T) {
	l := New()
	l.ApplyFill(key, gateway.SideBuy, 4, 100)
	pos := l.ApplyFill(key, gateway.SideSell, 1, 120)

	if pos.Quantity != 3 {
		t.Fatalf("quantity=%v, expected 3", pos.Quantity)
	}
	if pos.AvgEntryPrice != 100 {
		t.Fatalf("avg entry=%v, expected unchanged 100", pos.AvgEntryPrice)
	}
}

func TestEpsilonSnapToFlat(t *testing.T) {
	l := New()
	l.ApplyFill(key, gateway.SideBuy, 1.0, 100)
	l.SetProtection(key, 90, "sl-1", 120, "tp-1")

	pos := l.ApplyFill(key, gateway.SideSell, 0.99995, 110)

	if !pos.IsFlat() {
		t.Fatalf("quantity=%v, expected snap to flat below epsilon", pos.Quantity)
	}
	assertCleared(t, pos)
}

func TestFlatInvariantClearsEverything(t *testing.T) {
	l := New()
	l.ApplyFill(key, gateway.SideBuy, 2, 50)
	l.SetProtection(key, 45, "sl-9", 60, "tp-9")
	l.MarkPrice(key, 55)

	l.Close(key)

	pos, ok := l.Get(key)
	if !ok {
		t.Fatal("position should still exist after close")
	}
	if !pos.IsFlat() {
		t.Fatalf("quantity=%v, expected 0", pos.Quantity)
	}
	assertCleared(t, pos)
}

func TestSignFlipOpensFreshPosition(t *testing.T) {
	l := New()
	l.ApplyFill(key, gateway.SideBuy, 1, 100)
	pos := l.ApplyFill(key, gateway.SideSell, 3, 110)

	if pos.Quantity != -2 {
		t.Fatalf("quantity=%v, expected -2", pos.Quantity)
	}
	if pos.AvgEntryPrice != 110 {
		t.Fatalf("avg entry=%v, expected fill price 110 after flip", pos.AvgEntryPrice)
	}
}

func TestMarkPriceUnrealizedPnL(t *testing.T) {
	l := New()
	l.ApplyFill(key, gateway.SideBuy, 2, 100)
	l.MarkPrice(key, 130)

	pos, _ := l.Get(key)
	if pos.UnrealizedPnL != 60 {
		t.Fatalf("unrealized=%v, expected 60", pos.UnrealizedPnL)
	}

	short := Key{UserID: "u1", Exchange: "sim", Symbol: "ETH/USDT"}
	l.ApplyFill(short, gateway.SideSell, 2, 100)
	l.MarkPrice(short, 90)
	sp, _ := l.Get(short)
	if sp.UnrealizedPnL != 20 {
		t.Fatalf("short unrealized=%v, expected 20", sp.UnrealizedPnL)
	}
}

func TestOpenPositionCount(t *testing.T) {
	l := New()
	l.Ensure(key)
	if n := l.OpenPositionCount("u1"); n != 0 {
		t.Fatalf("count=%d, expected 0 for flat positions", n)
	}
	l.ApplyFill(key, gateway.SideBuy, 1, 10)
	l.ApplyFill(Key{UserID: "u2", Exchange: "sim", Symbol: "BTC/USDT"}, gateway.SideBuy, 1, 10)
	if n := l.OpenPositionCount("u1"); n != 1 {
		t.Fatalf("count=%d, expected 1", n)
	}
}

func assertCleared(t *testing.T, pos Position) {
	t.Helper()
	if pos.AvgEntryPrice != 0 {
		t.Fatalf("avg entry=%v, expected 0 when flat", pos.AvgEntryPrice)
	}
	if pos.StopLossPrice != 0 || pos.StopLossOrderID != "" {
		t.Fatalf("stop-loss state not cleared: %v %q", pos.StopLossPrice, pos.StopLossOrderID)
	}
	if pos.TakeProfitPrice != 0 || pos.TakeProfitOrderID != "" {
		t.Fatalf("take-profit state not cleared: %v %q", pos.TakeProfitPrice, pos.TakeProfitOrderID)
	}
	if pos.UnrealizedPnL != 0 {
		t.Fatalf("unrealized=%v, expected 0 when flat", pos.UnrealizedPnL)
	}
}
