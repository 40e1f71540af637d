package gateway

import (
	"context"
	"time"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the reversing side for a close.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType distinguishes market, limit and protective order flavors.
type OrderType string

const (
	TypeMarket     OrderType = "MARKET"
	TypeLimit      OrderType = "LIMIT"
	TypeStopMarket OrderType = "STOP_MARKET"
)

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a depth snapshot for one venue and symbol.
type OrderBook struct {
	Venue     string
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the top bid level, zeroed when the book is empty.
func (b OrderBook) BestBid() PriceLevel {
	if len(b.Bids) == 0 {
		return PriceLevel{}
	}
	return b.Bids[0]
}

// BestAsk returns the top ask level, zeroed when the book is empty.
func (b OrderBook) BestAsk() PriceLevel {
	if len(b.Asks) == 0 {
		return PriceLevel{}
	}
	return b.Asks[0]
}

// DepthSize sums level sizes on one side of the book.
func (b OrderBook) DepthSize(side Side) float64 {
	levels := b.Asks
	if side == SideSell {
		levels = b.Bids
	}
	var total float64
	for _, lv := range levels {
		total += lv.Size
	}
	return total
}

// Ticker carries 24h trading statistics for a symbol on one venue.
type Ticker struct {
	Venue     string
	Symbol    string
	LastPrice float64
	Volume24h float64
}

// OrderRequest describes one order sent to a venue.
type OrderRequest struct {
	UserID    string
	Venue     string
	Symbol    string
	Type      OrderType
	Side      Side
	Amount    float64
	Price     float64 // 0 for market orders
	RiskCheck bool
}

// OrderResult is the venue's answer to an order placement.
type OrderResult struct {
	Success bool
	OrderID string
	Filled  float64
	Price   float64
	Cost    float64
	Err     string
}

// ProtectiveOrderRequest describes a resting stop-loss or take-profit order.
type ProtectiveOrderRequest struct {
	UserID       string
	Venue        string
	Symbol       string
	Side         Side
	Amount       float64
	TriggerPrice float64
}

// ExchangeGateway abstracts venue connectivity. Implementations must be safe
// for concurrent use; every method is a suspension point for the caller.
type ExchangeGateway interface {
	GetCurrentPrice(ctx context.Context, venue, symbol string) (float64, error)
	GetOrderBook(ctx context.Context, venue, symbol string, depth int) (OrderBook, error)
	GetTicker(ctx context.Context, venue, symbol string) (Ticker, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, userID, venue, orderID, symbol string) error
	PlaceStopOrder(ctx context.Context, req ProtectiveOrderRequest) (string, error)
	PlaceLimitOrder(ctx context.Context, req ProtectiveOrderRequest) (string, error)
}

// Assessment is the outcome of a risk review for a proposed order.
type Assessment struct {
	Approved   bool
	Violations []string
	RiskScore  float64
}

// RiskAssessor approves or rejects proposed orders and reports emergency stops.
type RiskAssessor interface {
	AssessOrderRisk(ctx context.Context, userID, symbol string, side Side, qty, price float64) (Assessment, error)
	EmergencyStopCheck(ctx context.Context, userID string) (triggered bool, reason string, err error)
}

// PositionRecord is an externally sourced position used to hydrate the ledger.
type PositionRecord struct {
	Symbol        string
	Quantity      float64
	AvgCost       float64
	UnrealizedPnL float64
}

// PositionDataSource supplies current holdings at session start.
type PositionDataSource interface {
	GetCurrentPositions(ctx context.Context, userID, venue string) ([]PositionRecord, error)
}
