package router

import (
	"time"

	"execution-core/internal/gateway"
)

// RoutingStrategy selects the fragmentation algorithm for a parent order.
type RoutingStrategy string

const (
	StrategyBestPrice     RoutingStrategy = "BEST_PRICE"
	StrategyMinimalImpact RoutingStrategy = "MINIMAL_IMPACT"
	StrategyFastestFill   RoutingStrategy = "FASTEST_FILL"
	StrategyBalanced      RoutingStrategy = "BALANCED"

	// Time-sliced strategies delegate to the impact/balanced algorithms; a
	// real slicing scheduler is a possible future extension.
	StrategyIceberg RoutingStrategy = "ICEBERG"
	StrategyTWAP    RoutingStrategy = "TWAP"
	StrategyVWAP    RoutingStrategy = "VWAP"
)

// Valid reports whether the strategy is one of the known algorithms.
func (s RoutingStrategy) Valid() bool {
	switch s {
	case StrategyBestPrice, StrategyMinimalImpact, StrategyFastestFill,
		StrategyBalanced, StrategyIceberg, StrategyTWAP, StrategyVWAP:
		return true
	}
	return false
}

// resolve maps alias strategies onto the algorithm that actually runs.
func (s RoutingStrategy) resolve() RoutingStrategy {
	switch s {
	case StrategyIceberg:
		return StrategyMinimalImpact
	case StrategyTWAP, StrategyVWAP:
		return StrategyBalanced
	}
	return s
}

// Urgency is a caller-supplied hint influencing venue count, expected
// completion time and parallel-vs-sequential execution.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// completionEstimate is a label attached to the decision, not an enforced
// deadline.
func (u Urgency) completionEstimate() time.Duration {
	switch u {
	case UrgencyCritical:
		return 5 * time.Second
	case UrgencyHigh:
		return 15 * time.Second
	case UrgencyLow:
		return 5 * time.Minute
	default:
		return 30 * time.Second
	}
}

// ParentOrder is the routing request: one logical order to be split across
// venues.
type ParentOrder struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Side       gateway.Side    `json:"side"`
	Quantity   float64         `json:"quantity"`
	LimitPrice float64         `json:"limit_price,omitempty"`
	Strategy   RoutingStrategy `json:"strategy"`
	Urgency    Urgency         `json:"urgency"`
}

// OrderFragment is one child order targeted at a single venue. Priority 0 is
// the most urgent; lower executes earlier in sequential mode.
type OrderFragment struct {
	Venue             string            `json:"venue"`
	Side              gateway.Side      `json:"side"`
	Quantity          float64           `json:"quantity"`
	LimitPrice        float64           `json:"limit_price,omitempty"`
	Type              gateway.OrderType `json:"order_type"`
	EstimatedPrice    float64           `json:"estimated_price"`
	EstimatedCost     float64           `json:"estimated_cost"`
	EstimatedSlippage float64           `json:"estimated_slippage"`
	Priority          int               `json:"priority"`
}

// RoutingDecision is the fragmentation plan for one parent order.
type RoutingDecision struct {
	ParentID           string          `json:"parent_id"`
	Symbol             string          `json:"symbol"`
	Side               gateway.Side    `json:"side"`
	Strategy           RoutingStrategy `json:"strategy"`
	Urgency            Urgency         `json:"urgency"`
	Fragments          []OrderFragment `json:"fragments"`
	EstimatedCost      float64         `json:"estimated_cost"`
	EstimatedSlippage  float64         `json:"estimated_slippage"`
	ExpectedCompletion time.Duration   `json:"expected_completion"`
	Confidence         float64         `json:"confidence"`
	Reasoning          string          `json:"reasoning"`
	CreatedAt          time.Time       `json:"created_at"`
}

// OrderExecutionResult is the outcome of one fragment.
type OrderExecutionResult struct {
	Venue    string        `json:"venue"`
	OrderID  string        `json:"order_id,omitempty"`
	Success  bool          `json:"success"`
	Quantity float64       `json:"quantity"`
	Price    float64       `json:"price"`
	Cost     float64       `json:"cost"`
	Slippage float64       `json:"slippage"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// VenueLiquidity is one venue's snapshot used by the fragmentation
// algorithms. Depth fields are the summed size of the top five levels.
type VenueLiquidity struct {
	Venue     string  `json:"venue"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	BidSize   float64 `json:"bid_size"`
	AskSize   float64 `json:"ask_size"`
	BidDepth  float64 `json:"bid_depth"`
	AskDepth  float64 `json:"ask_depth"`
	Volume24h float64 `json:"volume_24h"`
	Spread    float64 `json:"spread"`
}

// topSize is the opposite-side top-of-book size for the taker direction.
func (l VenueLiquidity) topSize(side gateway.Side) float64 {
	if side == gateway.SideBuy {
		return l.AskSize
	}
	return l.BidSize
}

// depth is the opposite-side five-level depth for the taker direction.
func (l VenueLiquidity) depth(side gateway.Side) float64 {
	if side == gateway.SideBuy {
		return l.AskDepth
	}
	return l.BidDepth
}

// execPrice is the best executable price for the taker direction.
func (l VenueLiquidity) execPrice(side gateway.Side) float64 {
	if side == gateway.SideBuy {
		return l.BestAsk
	}
	return l.BestBid
}

// VenueStats is the running per-venue performance record used by the
// fastest-fill ranking and the confidence score.
type VenueStats struct {
	Venue       string        `json:"venue"`
	Orders      int           `json:"orders"`
	Successes   int           `json:"successes"`
	SuccessRate float64       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	Uptime      float64       `json:"uptime"`
}

// Stats is the aggregate router view exposed to callers.
type Stats struct {
	DecisionsMade     int                     `json:"decisions_made"`
	FragmentsExecuted int                     `json:"fragments_executed"`
	FragmentsFailed   int                     `json:"fragments_failed"`
	StrategyBreakdown map[RoutingStrategy]int `json:"strategy_breakdown"`
	Venues            []VenueStats            `json:"venues"`
}
