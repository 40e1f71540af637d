package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"execution-core/internal/gateway"
	"execution-core/internal/ledger"
)

// fakeGateway records orders and serves pinned prices.
type fakeGateway struct {
	mu           sync.Mutex
	prices       map[string]float64
	placed       []gateway.OrderRequest
	cancelled    []string
	rejectOrders bool
	nextID       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{prices: make(map[string]float64)}
}

func (g *fakeGateway) setPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

func (g *fakeGateway) placedOrders() []gateway.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.OrderRequest(nil), g.placed...)
}

func (g *fakeGateway) GetCurrentPrice(ctx context.Context, venue, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

func (g *fakeGateway) GetOrderBook(ctx context.Context, venue, symbol string, depth int) (gateway.OrderBook, error) {
	return gateway.OrderBook{}, fmt.Errorf("not implemented")
}

func (g *fakeGateway) GetTicker(ctx context.Context, venue, symbol string) (gateway.Ticker, error) {
	return gateway.Ticker{}, fmt.Errorf("not implemented")
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placed = append(g.placed, req)
	if g.rejectOrders {
		return gateway.OrderResult{Success: false, Err: "rejected by test"}, nil
	}
	price := req.Price
	if price == 0 {
		price = g.prices[req.Symbol]
	}
	g.nextID++
	return gateway.OrderResult{
		Success: true,
		OrderID: fmt.Sprintf("ord-%d", g.nextID),
		Filled:  req.Amount,
		Price:   price,
		Cost:    price * req.Amount,
	}, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, userID, venue, orderID, symbol string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *fakeGateway) PlaceStopOrder(ctx context.Context, req gateway.ProtectiveOrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return fmt.Sprintf("stop-%d", g.nextID), nil
}

func (g *fakeGateway) PlaceLimitOrder(ctx context.Context, req gateway.ProtectiveOrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return fmt.Sprintf("tp-%d", g.nextID), nil
}

// fakeRisk approves everything unless tripped.
type fakeRisk struct {
	mu        sync.Mutex
	triggered bool
	reason    string
}

func (r *fakeRisk) AssessOrderRisk(ctx context.Context, userID, symbol string, side gateway.Side, qty, price float64) (gateway.Assessment, error) {
	return gateway.Assessment{Approved: true}, nil
}

func (r *fakeRisk) EmergencyStopCheck(ctx context.Context, userID string) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.triggered, r.reason, nil
}

type fakePositions struct {
	records []gateway.PositionRecord
}

func (p *fakePositions) GetCurrentPositions(ctx context.Context, userID, venue string) ([]gateway.PositionRecord, error) {
	return p.records, nil
}

func newTestCoordinator(t *testing.T, gw *fakeGateway, rk *fakeRisk) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Options{Gateway: gw, Risk: rk})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c
}

func activeSession(t *testing.T, c *Coordinator, p CreateParams) string {
	t.Helper()
	id, err := c.CreateSession(p)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !c.StartSession(context.Background(), id) {
		s, _ := c.Session(id)
		t.Fatalf("StartSession failed: %s", s.ErrorMessage)
	}
	return id
}

func TestEndToEndScenario(t *testing.T) {
	gw := newFakeGateway()
	gw.setPrice("BTC/USDT", 50000)
	c := newTestCoordinator(t, gw, &fakeRisk{})
	ctx := context.Background()

	id := activeSession(t, c, CreateParams{
		UserID:           "1",
		Exchange:         "sim",
		Symbols:          []string{"BTC/USDT"},
		Mode:             ModeFullAuto,
		MaxDailyTrades:   10,
		MaxOpenPositions: 1,
	})

	if !c.SubmitSignal(&Signal{UserID: "1", Exchange: "sim", Symbol: "BTC/USDT", Type: SignalBuy, Quantity: 1}) {
		t.Fatal("BUY signal should be accepted")
	}
	c.tick(ctx)

	key := ledger.Key{UserID: "1", Exchange: "sim", Symbol: "BTC/USDT"}
	pos, _ := c.Ledger().Get(key)
	if pos.Quantity != 1 {
		t.Fatalf("quantity=%v, expected 1 after tick", pos.Quantity)
	}
	s, _ := c.Session(id)
	if s.TotalTrades != 1 {
		t.Fatalf("total_trades=%d, expected 1", s.TotalTrades)
	}

	// Second BUY hits the max-open-positions limit during execution.
	if !c.SubmitSignal(&Signal{UserID: "1", Exchange: "sim", Symbol: "BTC/USDT", Type: SignalBuy, Quantity: 1}) {
		t.Fatal("submission itself is structural only and should pass")
	}
	c.tick(ctx)
	pos, _ = c.Ledger().Get(key)
	if pos.Quantity != 1 {
		t.Fatalf("quantity=%v, expected unchanged 1 after limit rejection", pos.Quantity)
	}
	if st := c.Stats(); st.SignalsFailed != 1 {
		t.Fatalf("failed=%d, expected 1", st.SignalsFailed)
	}

	// CLOSE flattens and clears protective state.
	if !c.SubmitSignal(&Signal{UserID: "1", Exchange: "sim", Symbol: "BTC/USDT", Type: SignalClose, Quantity: 1}) {
		t.Fatal("CLOSE signal should be accepted")
	}
	c.tick(ctx)
	pos, _ = c.Ledger().Get(key)
	if !pos.IsFlat() {
		t.Fatalf("quantity=%v, expected flat after close", pos.Quantity)
	}
	if pos.StopLossOrderID != "" || pos.TakeProfitOrderID != "" {
		t.Fatal("protective order ids must be cleared on close")
	}
}

func TestSubmitSignalValidation(t *testing.T) {
	gw := newFakeGateway()
	c := newTestCoordinator(t, gw, &fakeRisk{})
	activeSession(t, c, CreateParams{UserID: "1", Exchange: "sim", Symbols: []string{"BTC/USDT"}})

	tests := []struct {
		name string
		sig  Signal
	}{
		{"zero quantity", Signal{UserID: "1", Exchange: "sim", Symbol: "BTC/USDT", Type: SignalBuy, Quantity: 0}},
		{"negative quantity", Signal{UserID: "1", Exchange: "sim", Symbol: "BTC/USDT", Type: SignalSell, Quantity: -2}},
		{"unknown type", Signal{UserID: "1", Exchange: "sim", Symbol: "BTC/USDT", Type: "HOLD", Quantity: 1}},
		{"missing separator", Signal{UserID: "1", Exchange: "sim", Symbol: "BTCUSDT", Type: SignalBuy, Quantity: 1}},
		{"no session for symbol", Signal{UserID: "1", Exchange: "sim", Symbol: "ETH/USDT", Type: SignalBuy, Quantity: 1}},
		{"no session for user", Signal{UserID: "2", Exchange: "sim", Symbol: "BTC/USDT", Type: SignalBuy, Quantity: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.sig
			if c.SubmitSignal(&sig) {
				t.Fatal("expected rejection")
			}
		})
	}
}

func TestStartSessionEmergencyStop(t *testing.T) {
	gw := newFakeGateway()
	rk := &fakeRisk{triggered: true, reason: "daily loss limit"}
	c := newTestCoordinator(t, gw, rk)

	id, err := c.CreateSession(CreateParams{UserID: "1", Exchange: "sim", Symbols: []string{"BTC/USDT"}})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if c.StartSession(context.Background(), id) {
		t.Fatal("start should fail while emergency stop is active")
	}
	s, _ := c.Session(id)
	if s.Status != StatusError {
		t.Fatalf("status=%s, expected ERROR", s.Status)
	}
	if !strings.Contains(s.ErrorMessage, "daily loss limit") {
		t.Fatalf("error message %q should carry the stop reason", s.ErrorMessage)
	}

	// Session stays usable for retry after the stop clears.
	rk.mu.Lock()
	rk.triggered = false
	rk.mu.Unlock()
	if !c.StartSession(context.Background(), id) {
		t.Fatal("retry should succeed once the stop clears")
	}
	s, _ = c.Session(id)
	if s.Status != StatusActive || s.ErrorMessage != "" {
		t.Fatalf("status=%s err=%q, expected clean ACTIVE", s.Status, s.ErrorMessage)
	}
}

func TestStartSessionHydratesPositions(t *testing.T) {
	gw := newFakeGateway()
	c, err := NewCoordinator(Options{
		Gateway: gw,
		Risk:    &fakeRisk{},
		Positions: &fakePositions{records: []gateway.PositionRecord{
			{Symbol: "BTC/USDT", Quantity: 2, AvgCost: 45000, UnrealizedPnL: 1000},
			{Symbol: "XRP/USDT", Quantity: 5, AvgCost: 1}, // not in session, ignored
		}},
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	activeSession(t, c, CreateParams{UserID: "1", Exchange: "sim", Symbols: []string{"BTC/USDT"}})

	pos, _ := c.Ledger().Get(ledger.Key{UserID: "1", Exchange: "sim", Symbol: "BTC/USDT"})
	if pos.Quantity != 2 || pos.AvgEntryPrice != 45000 {
		t.Fatalf("hydrated qty=%v avg=%v, expected 2 @ 45000", pos.Quantity, pos.AvgEntryPrice)
	}
	if _, ok := c.Ledger().Get(ledger.Key{UserID: "1", Exchange: "sim", Symbol: "XRP/USDT"}); ok {
		t.Fatal("symbol outside the session must not be hydrated")
	}
}

func TestDailyTradeLimitNeverOvershoots(t *testing.T) {
	gw := newFakeGateway()
	gw.setPrice("BTC/USDT", 100)
	c := newTestCoordinator(t, gw, &fakeRisk{})
	ctx := context.Background()

	id := activeSession(t, c, CreateParams{
		UserID:           "1",
		Exchange:         "sim",
		Symbols:          []string{"BTC/USDT"},
		MaxDailyTrades:   2,
		MaxOpenPositions: 10,
	})

	for i := 0; i < 4; i++ {
		c.SubmitSignal(&Signal{UserID: "1", Exchange: "sim", Symbol: "BTC/USDT", Type: SignalBuy, Quantity: 1})
	}
	c.tick(ctx)

	s, _ := c.Session(id)
	if s.TotalTrades != 2 {
		t.Fatalf("total_trades=%d, expected exactly the limit 2", s.TotalTrades)
	}
	if st := c.Stats(); st.SignalsFailed != 2 {
		t.Fatalf("failed=%d, expected 2 over-limit rejections", st.SignalsFailed)
	}
}

func TestStopSessionCancelsTrackedOrders(t *testing.T) {
	gw := newFakeGateway()
	gw.setPrice("BTC/USDT", 100)
	c := newTestCoordinator(t, gw, &fakeRisk{})
	ctx := context.Background()

	id := activeSession(t, c, CreateParams{
		UserID:            "1",
		Exchange:          "sim",
		Symbols:           []string{"BTC/USDT"},
		StopLossEnabled:   true,
		TakeProfitEnabled: true,
	})

	c.SubmitSignal(&Signal{
		UserID: "1", Exchange: "sim", Symbol: "BTC/USDT",
		Type: SignalBuy, Quantity: 1, StopLoss: 90, TakeProfit: 120,
	})
	c.tick(ctx)

	if !c.StopSession(ctx, id) {
		t.Fatal("StopSession should succeed")
	}
	s, _ := c.Session(id)
	if s.Status != StatusStopped {
		t.Fatalf("status=%s, expected STOPPED", s.Status)
	}
	gw.mu.Lock()
	cancelled := len(gw.cancelled)
	gw.mu.Unlock()
	if cancelled != 2 {
		t.Fatalf("cancelled=%d, expected both protective orders", cancelled)
	}
}

func TestEngineStartStop(t *testing.T) {
	gw := newFakeGateway()
	c := newTestCoordinator(t, gw, &fakeRisk{})
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(ctx); err == nil {
		t.Fatal("second Start must fail while running")
	}

	id := activeSession(t, c, CreateParams{UserID: "1", Exchange: "sim", Symbols: []string{"BTC/USDT"}})

	c.Stop(ctx)
	if c.IsRunning() {
		t.Fatal("engine should report stopped")
	}
	s, _ := c.Session(id)
	if s.Status != StatusStopped {
		t.Fatalf("status=%s, expected sessions stopped on engine stop", s.Status)
	}

	// Restart works after a clean stop.
	if err := c.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	c.Stop(ctx)
}
