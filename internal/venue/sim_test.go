package venue

import (
	"context"
	"testing"

	"execution-core/internal/gateway"
)

func testUniverse() []Config {
	cfgs := []Config{
		{Name: "alpha", FeeBps: 10, SpreadBps: 4, BasePrices: map[string]float64{"BTC/USDT": 50000}},
		{Name: "bravo", FeeBps: 10, SpreadBps: 8, BasePrices: map[string]float64{"BTC/USDT": 50000}},
	}
	for i := range cfgs {
		applyDefaults(&cfgs[i])
	}
	return cfgs
}

func TestOrderBookShape(t *testing.T) {
	s := NewSimulator(testUniverse(), 42)

	book, err := s.GetOrderBook(context.Background(), "alpha", "BTC/USDT", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(book.Bids) != 5 || len(book.Asks) != 5 {
		t.Fatalf("levels bids=%d asks=%d, expected 5/5", len(book.Bids), len(book.Asks))
	}
	if book.BestBid().Price >= book.BestAsk().Price {
		t.Fatalf("crossed book: bid %.2f >= ask %.2f", book.BestBid().Price, book.BestAsk().Price)
	}
	for i := 1; i < 5; i++ {
		if book.Asks[i].Price <= book.Asks[i-1].Price {
			t.Fatalf("asks not ascending at level %d", i)
		}
		if book.Bids[i].Price >= book.Bids[i-1].Price {
			t.Fatalf("bids not descending at level %d", i)
		}
	}
}

func TestUnknownVenueAndSymbol(t *testing.T) {
	s := NewSimulator(testUniverse(), 42)

	if _, err := s.GetCurrentPrice(context.Background(), "nope", "BTC/USDT"); err == nil {
		t.Fatal("expected error for unknown venue")
	}
	if _, err := s.GetCurrentPrice(context.Background(), "alpha", "DOGE/USDT"); err == nil {
		t.Fatal("expected error for unlisted symbol")
	}
}

func TestMarketOrderFillsWithFees(t *testing.T) {
	s := NewSimulator(testUniverse(), 42)
	s.SetPrice("alpha", "BTC/USDT", 50000)

	res, err := s.PlaceOrder(context.Background(), gateway.OrderRequest{
		UserID: "u1",
		Venue:  "alpha",
		Symbol: "BTC/USDT",
		Type:   gateway.TypeMarket,
		Side:   gateway.SideBuy,
		Amount: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("order rejected: %s", res.Err)
	}
	if res.Filled != 0.5 {
		t.Fatalf("filled=%v, expected 0.5", res.Filled)
	}
	if res.Price <= 49000 || res.Price >= 51000 {
		t.Fatalf("fill price %.2f implausibly far from mark", res.Price)
	}
	if res.Cost <= res.Price*res.Filled {
		t.Fatalf("cost %.2f should include fees above notional %.2f", res.Cost, res.Price*res.Filled)
	}
}

func TestGatewayLevelRiskCheck(t *testing.T) {
	s := NewSimulator(testUniverse(), 42)
	s.SetRiskAssessor(rejectAll{})

	res, err := s.PlaceOrder(context.Background(), gateway.OrderRequest{
		UserID:    "u1",
		Venue:     "alpha",
		Symbol:    "BTC/USDT",
		Type:      gateway.TypeMarket,
		Side:      gateway.SideBuy,
		Amount:    1,
		RiskCheck: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected rejection from gateway-level risk check")
	}

	// Without the flag the risk hook is bypassed.
	res, err = s.PlaceOrder(context.Background(), gateway.OrderRequest{
		UserID: "u1",
		Venue:  "alpha",
		Symbol: "BTC/USDT",
		Type:   gateway.TypeMarket,
		Side:   gateway.SideBuy,
		Amount: 1,
	})
	if err != nil || !res.Success {
		t.Fatalf("success=%v err=%v, expected fill without risk check", res.Success, err)
	}
}

func TestCancelTracksRestingOrders(t *testing.T) {
	s := NewSimulator(testUniverse(), 42)

	id, err := s.PlaceStopOrder(context.Background(), gateway.ProtectiveOrderRequest{
		UserID: "u1", Venue: "alpha", Symbol: "BTC/USDT", Side: gateway.SideSell, Amount: 1, TriggerPrice: 45000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CancelOrder(context.Background(), "u1", "alpha", id, "BTC/USDT"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if err := s.CancelOrder(context.Background(), "u1", "alpha", id, "BTC/USDT"); err == nil {
		t.Fatal("second cancel should fail for unknown order")
	}
}

type rejectAll struct{}

func (rejectAll) AssessOrderRisk(ctx context.Context, userID, symbol string, side gateway.Side, qty, price float64) (gateway.Assessment, error) {
	return gateway.Assessment{Approved: false, Violations: []string{"test"}}, nil
}

func (rejectAll) EmergencyStopCheck(ctx context.Context, userID string) (bool, string, error) {
	return false, "", nil
}
