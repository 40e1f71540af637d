package venue

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"execution-core/internal/gateway"
)

// Simulator is an in-process ExchangeGateway over a set of simulated venues.
// Each venue keeps a per-symbol random-walk price, a synthetic depth profile,
// fee/latency/failure characteristics, and an optional request rate limit.
type Simulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	venues map[string]*venueState

	// Risk hook consulted when OrderRequest.RiskCheck is set.
	risk gateway.RiskAssessor

	orders map[string]struct{} // ids of resting orders eligible for cancel
}

type venueState struct {
	cfg     Config
	prices  map[string]float64
	limiter *rate.Limiter
	volume  map[string]float64
}

// NewSimulator builds a simulator from venue configs. A zero seed derives one
// from the clock; fixed seeds give deterministic books for tests.
func NewSimulator(configs []Config, seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Simulator{
		rng:    rand.New(rand.NewSource(seed)),
		venues: make(map[string]*venueState, len(configs)),
		orders: make(map[string]struct{}),
	}
	for _, cfg := range configs {
		vs := &venueState{
			cfg:    cfg,
			prices: make(map[string]float64, len(cfg.BasePrices)),
			volume: make(map[string]float64, len(cfg.BasePrices)),
		}
		for sym, px := range cfg.BasePrices {
			vs.prices[sym] = px
			vs.volume[sym] = px * 1000 // seed 24h volume at 1000 units notional
		}
		if cfg.RateLimit > 0 {
			vs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
		}
		s.venues[cfg.Name] = vs
	}
	log.Printf("venue: simulator ready with %d venues", len(s.venues))
	return s
}

var _ gateway.ExchangeGateway = (*Simulator)(nil)

// SetRiskAssessor wires the gateway-level risk check.
func (s *Simulator) SetRiskAssessor(r gateway.RiskAssessor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risk = r
}

// Venues lists the simulated venue names.
func (s *Simulator) Venues() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.venues))
	for name := range s.venues {
		names = append(names, name)
	}
	return names
}

func (s *Simulator) GetCurrentPrice(ctx context.Context, venue, symbol string) (float64, error) {
	if err := s.pace(ctx, venue); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, err := s.venueLocked(venue)
	if err != nil {
		return 0, err
	}
	return s.walkLocked(vs, symbol)
}

func (s *Simulator) GetOrderBook(ctx context.Context, venue, symbol string, depth int) (gateway.OrderBook, error) {
	if err := s.pace(ctx, venue); err != nil {
		return gateway.OrderBook{}, err
	}
	s.mu.Lock()
	vs, err := s.venueLocked(venue)
	if err != nil {
		s.mu.Unlock()
		return gateway.OrderBook{}, err
	}
	if s.failLocked(vs) {
		s.mu.Unlock()
		return gateway.OrderBook{}, fmt.Errorf("venue %s: simulated outage", venue)
	}
	mid, err := s.walkLocked(vs, symbol)
	if err != nil {
		s.mu.Unlock()
		return gateway.OrderBook{}, err
	}
	if depth <= 0 || depth > vs.cfg.DepthLevels {
		depth = vs.cfg.DepthLevels
	}
	halfSpread := mid * vs.cfg.SpreadBps / 20000.0
	book := gateway.OrderBook{Venue: venue, Symbol: symbol, Timestamp: time.Now()}
	for i := 0; i < depth; i++ {
		step := float64(i) * halfSpread
		size := vs.cfg.LevelSize * (1 + 0.5*float64(i)) * (0.8 + 0.4*s.rng.Float64())
		book.Bids = append(book.Bids, gateway.PriceLevel{Price: mid - halfSpread - step, Size: size})
		book.Asks = append(book.Asks, gateway.PriceLevel{Price: mid + halfSpread + step, Size: size})
	}
	s.mu.Unlock()

	if err := s.latency(ctx, venue); err != nil {
		return gateway.OrderBook{}, err
	}
	return book, nil
}

func (s *Simulator) GetTicker(ctx context.Context, venue, symbol string) (gateway.Ticker, error) {
	if err := s.pace(ctx, venue); err != nil {
		return gateway.Ticker{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, err := s.venueLocked(venue)
	if err != nil {
		return gateway.Ticker{}, err
	}
	px, err := s.walkLocked(vs, symbol)
	if err != nil {
		return gateway.Ticker{}, err
	}
	return gateway.Ticker{
		Venue:     venue,
		Symbol:    symbol,
		LastPrice: px,
		Volume24h: vs.volume[symbol],
	}, nil
}

func (s *Simulator) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	if err := s.pace(ctx, req.Venue); err != nil {
		return gateway.OrderResult{}, err
	}
	if err := s.latency(ctx, req.Venue); err != nil {
		return gateway.OrderResult{}, err
	}

	s.mu.Lock()
	vs, err := s.venueLocked(req.Venue)
	if err != nil {
		s.mu.Unlock()
		return gateway.OrderResult{}, err
	}
	if s.failLocked(vs) {
		s.mu.Unlock()
		return gateway.OrderResult{Success: false, Err: "simulated venue rejection"}, nil
	}
	mark, err := s.walkLocked(vs, req.Symbol)
	if err != nil {
		s.mu.Unlock()
		return gateway.OrderResult{}, err
	}
	risk := s.risk
	s.mu.Unlock()

	if req.RiskCheck && risk != nil {
		assessment, err := risk.AssessOrderRisk(ctx, req.UserID, req.Symbol, req.Side, req.Amount, mark)
		if err != nil {
			return gateway.OrderResult{}, err
		}
		if !assessment.Approved {
			return gateway.OrderResult{
				Success: false,
				Err:     fmt.Sprintf("risk rejected: %v", assessment.Violations),
			}, nil
		}
	}

	fillPrice := mark
	if req.Type == gateway.TypeLimit && req.Price > 0 {
		fillPrice = req.Price
	} else {
		// Market fills cross the spread plus slippage noise.
		s.mu.Lock()
		slip := mark * vs.cfg.SpreadBps / 10000.0 * (0.5 + s.rng.Float64())
		s.mu.Unlock()
		if req.Side == gateway.SideBuy {
			fillPrice = mark + slip
		} else {
			fillPrice = mark - slip
		}
	}

	fee := fillPrice * req.Amount * vs.cfg.FeeBps / 10000.0
	id := uuid.NewString()

	s.mu.Lock()
	s.orders[id] = struct{}{}
	vs.volume[req.Symbol] += fillPrice * req.Amount
	s.mu.Unlock()

	return gateway.OrderResult{
		Success: true,
		OrderID: id,
		Filled:  req.Amount,
		Price:   fillPrice,
		Cost:    fillPrice*req.Amount + fee,
	}, nil
}

func (s *Simulator) CancelOrder(ctx context.Context, userID, venue, orderID, symbol string) error {
	if err := s.pace(ctx, venue); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.venueLocked(venue); err != nil {
		return err
	}
	if _, ok := s.orders[orderID]; !ok {
		return fmt.Errorf("venue %s: unknown order %s", venue, orderID)
	}
	delete(s.orders, orderID)
	return nil
}

func (s *Simulator) PlaceStopOrder(ctx context.Context, req gateway.ProtectiveOrderRequest) (string, error) {
	return s.placeResting(ctx, req.Venue)
}

func (s *Simulator) PlaceLimitOrder(ctx context.Context, req gateway.ProtectiveOrderRequest) (string, error) {
	return s.placeResting(ctx, req.Venue)
}

func (s *Simulator) placeResting(ctx context.Context, venue string) (string, error) {
	if err := s.pace(ctx, venue); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.venueLocked(venue); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.orders[id] = struct{}{}
	return id, nil
}

// --- internals ---

func (s *Simulator) venueLocked(name string) (*venueState, error) {
	vs, ok := s.venues[name]
	if !ok {
		return nil, fmt.Errorf("unknown venue %q", name)
	}
	return vs, nil
}

// walkLocked advances the random-walk price for a symbol and returns it.
func (s *Simulator) walkLocked(vs *venueState, symbol string) (float64, error) {
	px, ok := vs.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("venue %s: symbol %q not listed", vs.cfg.Name, symbol)
	}
	px *= 1 + (s.rng.Float64()-0.5)*0.001
	vs.prices[symbol] = px
	return px, nil
}

func (s *Simulator) failLocked(vs *venueState) bool {
	return vs.cfg.FailRate > 0 && s.rng.Float64() < vs.cfg.FailRate
}

// pace applies the venue's request rate limit.
func (s *Simulator) pace(ctx context.Context, venue string) error {
	s.mu.Lock()
	vs, ok := s.venues[venue]
	var limiter *rate.Limiter
	if ok {
		limiter = vs.limiter
	}
	s.mu.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// latency sleeps within the venue's configured latency band.
func (s *Simulator) latency(ctx context.Context, venue string) error {
	s.mu.Lock()
	vs, ok := s.venues[venue]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	minMs, maxMs := vs.cfg.LatencyMinMs, vs.cfg.LatencyMaxMs
	span := maxMs - minMs
	delayMs := minMs
	if span > 0 {
		delayMs += s.rng.Intn(span + 1)
	}
	s.mu.Unlock()
	if delayMs <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
		return nil
	}
}

// SetPrice pins a symbol's price on one venue. Test hook.
func (s *Simulator) SetPrice(venue, symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vs, ok := s.venues[venue]; ok {
		vs.prices[symbol] = price
	}
}
