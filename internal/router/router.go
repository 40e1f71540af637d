package router

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"execution-core/internal/events"
	"execution-core/internal/gateway"
)

// Defaults for venues with no execution history yet. They keep the rankings
// meaningful before the first fills come back.
const (
	defaultSuccessRate = 0.90
	defaultUptime      = 0.99
	defaultLatency     = 100 * time.Millisecond

	confidenceBase = 0.7
)

// Options configures a Router.
type Options struct {
	Gateway gateway.ExchangeGateway
	Risk    gateway.RiskAssessor
	Venues  []string    // venues probed for liquidity
	Bus     *events.Bus // optional

	HistorySize int // bounded decision/result history, default 500
}

// Router splits parent orders into per-venue fragments and executes the plan.
// All state is instance-owned; two Routers never share venue statistics.
type Router struct {
	gw     gateway.ExchangeGateway
	risk   gateway.RiskAssessor
	venues []string
	bus    *events.Bus

	historySize int

	mu        sync.RWMutex
	stats     map[string]*venueRecord
	decisions []RoutingDecision
	results   []OrderExecutionResult
	byStrat   map[RoutingStrategy]int
	executed  int
	failed    int
}

type venueRecord struct {
	orders       int
	successes    int
	totalLatency time.Duration
}

// NewRouter builds a Router over the given venue set.
func NewRouter(opts Options) (*Router, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("router: gateway is required")
	}
	if opts.Risk == nil {
		return nil, fmt.Errorf("router: risk assessor is required")
	}
	if len(opts.Venues) == 0 {
		return nil, fmt.Errorf("router: at least one venue is required")
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 500
	}
	return &Router{
		gw:          opts.Gateway,
		risk:        opts.Risk,
		venues:      append([]string(nil), opts.Venues...),
		bus:         opts.Bus,
		historySize: opts.HistorySize,
		stats:       make(map[string]*venueRecord),
		byStrat:     make(map[RoutingStrategy]int),
	}, nil
}

// RouteOrder computes a fragmentation plan for the parent order. A risk
// rejection aborts before any fragment is created; venues that fail the
// liquidity probe are excluded, not retried.
func (r *Router) RouteOrder(ctx context.Context, p ParentOrder) (RoutingDecision, error) {
	if p.Quantity <= 0 {
		return RoutingDecision{}, fmt.Errorf("router: quantity must be positive")
	}
	if !p.Strategy.Valid() {
		return RoutingDecision{}, fmt.Errorf("router: unknown strategy %q", p.Strategy)
	}
	if p.Urgency == "" {
		p.Urgency = UrgencyMedium
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	liquidity := r.GatherLiquidity(ctx, p.Symbol)
	if len(liquidity) == 0 {
		return RoutingDecision{}, fmt.Errorf("router: no venue supports %s", p.Symbol)
	}

	assessment, err := r.risk.AssessOrderRisk(ctx, p.UserID, p.Symbol, p.Side, p.Quantity, p.LimitPrice)
	if err != nil {
		return RoutingDecision{}, fmt.Errorf("router: risk assessment: %w", err)
	}
	if !assessment.Approved {
		return RoutingDecision{}, fmt.Errorf("router: order rejected by risk: %s",
			strings.Join(assessment.Violations, "; "))
	}

	var frags []OrderFragment
	switch p.Strategy.resolve() {
	case StrategyBestPrice:
		frags = r.fragmentBestPrice(liquidity, p)
	case StrategyMinimalImpact:
		frags = r.fragmentMinimalImpact(liquidity, p)
	case StrategyFastestFill:
		frags = r.fragmentFastestFill(liquidity, p)
	case StrategyBalanced:
		frags = r.fragmentBalanced(liquidity, p)
	}
	if len(frags) == 0 {
		return RoutingDecision{}, fmt.Errorf("router: no executable liquidity for %s %s %.4f",
			p.Side, p.Symbol, p.Quantity)
	}

	decision := RoutingDecision{
		ParentID:           p.ID,
		Symbol:             p.Symbol,
		Side:               p.Side,
		Strategy:           p.Strategy,
		Urgency:            p.Urgency,
		Fragments:          frags,
		ExpectedCompletion: p.Urgency.completionEstimate(),
		CreatedAt:          time.Now(),
	}
	allocated := 0.0
	weightedSlip := 0.0
	for _, f := range frags {
		decision.EstimatedCost += f.EstimatedCost
		allocated += f.Quantity
		weightedSlip += f.EstimatedSlippage * f.Quantity
	}
	if allocated > 0 {
		decision.EstimatedSlippage = weightedSlip / allocated
	}
	decision.Confidence = r.confidence(p, frags, allocated)
	decision.Reasoning = r.reasoning(p, decision, allocated)

	r.mu.Lock()
	r.decisions = append(r.decisions, decision)
	if len(r.decisions) > r.historySize {
		r.decisions = r.decisions[len(r.decisions)-r.historySize:]
	}
	r.byStrat[p.Strategy]++
	r.mu.Unlock()

	r.publish(events.EventRouteDecided, decision)
	log.Printf("router: %s %s %.4f %s via %d venue(s), confidence %.2f",
		p.Side, p.Symbol, p.Quantity, p.Strategy, len(frags), decision.Confidence)
	return decision, nil
}

// GatherLiquidity probes every configured venue for a usable quote. A venue
// that errors or returns an empty book is left out of the snapshot.
func (r *Router) GatherLiquidity(ctx context.Context, symbol string) []VenueLiquidity {
	var out []VenueLiquidity
	for _, venue := range r.venues {
		book, err := r.gw.GetOrderBook(ctx, venue, symbol, 5)
		if err != nil {
			log.Printf("router: orderbook %s %s: %v", venue, symbol, err)
			continue
		}
		bid, ask := book.BestBid(), book.BestAsk()
		if bid.Price <= 0 || ask.Price <= 0 {
			continue
		}

		liq := VenueLiquidity{
			Venue:    venue,
			BestBid:  bid.Price,
			BestAsk:  ask.Price,
			BidSize:  bid.Size,
			AskSize:  ask.Size,
			BidDepth: book.DepthSize(gateway.SideSell),
			AskDepth: book.DepthSize(gateway.SideBuy),
			Spread:   ask.Price - bid.Price,
		}
		if ticker, err := r.gw.GetTicker(ctx, venue, symbol); err == nil {
			liq.Volume24h = ticker.Volume24h
		}
		out = append(out, liq)
	}
	return out
}

// confidence starts from a fixed base and adjusts for liquidity sufficiency,
// venue diversification and historical venue performance. Clamped to [0,1].
func (r *Router) confidence(p ParentOrder, frags []OrderFragment, allocated float64) float64 {
	score := confidenceBase

	// Liquidity sufficiency: full allocation earns the bonus, shortfall
	// costs proportionally.
	fillRatio := allocated / p.Quantity
	if fillRatio >= 1-1e-9 {
		score += 0.1
	} else {
		score -= 0.2 * (1 - fillRatio)
	}

	if len(frags) >= 2 {
		score += 0.05
	}

	perf := 0.0
	for _, f := range frags {
		perf += r.successRate(f.Venue) - defaultSuccessRate
	}
	score += perf / float64(len(frags))

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (r *Router) reasoning(p ParentOrder, d RoutingDecision, allocated float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s routed %.4f/%.4f %s across %d venue(s)",
		p.Strategy, allocated, p.Quantity, p.Symbol, len(d.Fragments))
	if resolved := p.Strategy.resolve(); resolved != p.Strategy {
		fmt.Fprintf(&b, " (delegated to %s)", resolved)
	}
	fmt.Fprintf(&b, "; est. cost %.2f, est. slippage %.4f%%, expected completion %s",
		d.EstimatedCost, d.EstimatedSlippage*100, d.ExpectedCompletion)
	return b.String()
}

// performanceScore ranks a venue for the fastest-fill strategy: 40% success
// rate, 30% inverse latency, 30% uptime.
func (r *Router) performanceScore(venue string) float64 {
	r.mu.RLock()
	rec := r.stats[venue]
	r.mu.RUnlock()

	success, latency := defaultSuccessRate, defaultLatency
	if rec != nil && rec.orders > 0 {
		success = float64(rec.successes) / float64(rec.orders)
		latency = rec.totalLatency / time.Duration(rec.orders)
	}
	latencyScore := float64(defaultLatency) / float64(defaultLatency+latency)
	return 0.4*success + 0.3*latencyScore + 0.3*defaultUptime
}

func (r *Router) successRate(venue string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := r.stats[venue]
	if rec == nil || rec.orders == 0 {
		return defaultSuccessRate
	}
	return float64(rec.successes) / float64(rec.orders)
}

// Decisions returns the most recent routing decisions, newest last.
func (r *Router) Decisions(limit int) []RoutingDecision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.decisions) {
		limit = len(r.decisions)
	}
	return append([]RoutingDecision(nil), r.decisions[len(r.decisions)-limit:]...)
}

// Stats aggregates routing and per-venue execution statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		DecisionsMade:     len(r.decisions),
		FragmentsExecuted: r.executed,
		FragmentsFailed:   r.failed,
		StrategyBreakdown: make(map[RoutingStrategy]int, len(r.byStrat)),
	}
	for strat, n := range r.byStrat {
		s.StrategyBreakdown[strat] = n
	}
	for _, venue := range r.venues {
		vs := VenueStats{Venue: venue, SuccessRate: defaultSuccessRate, AvgLatency: defaultLatency, Uptime: defaultUptime}
		if rec := r.stats[venue]; rec != nil && rec.orders > 0 {
			vs.Orders = rec.orders
			vs.Successes = rec.successes
			vs.SuccessRate = float64(rec.successes) / float64(rec.orders)
			vs.AvgLatency = rec.totalLatency / time.Duration(rec.orders)
		}
		s.Venues = append(s.Venues, vs)
	}
	return s
}

func (r *Router) publish(e events.Event, payload any) {
	if r.bus != nil {
		r.bus.Publish(e, payload)
	}
}
