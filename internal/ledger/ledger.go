package ledger

import (
	"sync"
	"time"

	"execution-core/internal/gateway"
)

// CloseEpsilon is the residual quantity below which a position is considered
// fully flat after a reduction.
const CloseEpsilon = 1e-4

// Position is the net holding for one (user, exchange, symbol) triple.
// Quantity is signed: positive long, negative short, zero flat.
type Position struct {
	UserID        string  `json:"user_id"`
	Exchange      string  `json:"exchange"`
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`

	// Protective order state; zero price means not set.
	StopLossPrice     float64 `json:"stop_loss_price,omitempty"`
	StopLossOrderID   string  `json:"stop_loss_order_id,omitempty"`
	TakeProfitPrice   float64 `json:"take_profit_price,omitempty"`
	TakeProfitOrderID string  `json:"take_profit_order_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// IsFlat reports whether the position holds nothing.
func (p Position) IsFlat() bool {
	return p.Quantity == 0
}

// Key identifies a position.
type Key struct {
	UserID   string
	Exchange string
	Symbol   string
}

// Ledger is the in-memory registry of positions. All mutation funnels through
// the session coordinator's single consumer loop; the mutex exists for
// read-side snapshots taken by API queries.
type Ledger struct {
	mu        sync.RWMutex
	positions map[Key]*Position
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{positions: make(map[Key]*Position)}
}

// Ensure creates a zeroed position for the key if absent.
func (l *Ledger) Ensure(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[k]; !ok {
		l.positions[k] = &Position{
			UserID:    k.UserID,
			Exchange:  k.Exchange,
			Symbol:    k.Symbol,
			UpdatedAt: time.Now(),
		}
	}
}

// Hydrate overwrites quantity, entry price and unrealized PnL from an external
// position record. Used once at session start.
func (l *Ledger) Hydrate(k Key, rec gateway.PositionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.ensureLocked(k)
	p.Quantity = rec.Quantity
	p.AvgEntryPrice = rec.AvgCost
	p.UnrealizedPnL = rec.UnrealizedPnL
	p.UpdatedAt = time.Now()
	if p.Quantity == 0 {
		clearLocked(p)
	}
}

// ApplyFill mutates the position for a fill. Buys add signed quantity, sells
// subtract. Same-direction fills re-average the entry price; opposite fills
// reduce the position, snapping to flat when the remainder falls below
// CloseEpsilon. A fill large enough to flip the sign opens a fresh position at
// the fill price.
func (l *Ledger) ApplyFill(k Key, side gateway.Side, qty, price float64) Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.ensureLocked(k)
	delta := qty
	if side == gateway.SideSell {
		delta = -qty
	}

	switch {
	case p.Quantity == 0 || sameSign(p.Quantity, delta):
		total := p.AvgEntryPrice*abs(p.Quantity) + price*abs(delta)
		p.Quantity += delta
		if p.Quantity != 0 {
			p.AvgEntryPrice = total / abs(p.Quantity)
		}
	default:
		remaining := p.Quantity + delta
		if abs(remaining) < CloseEpsilon {
			clearLocked(p)
		} else if sameSign(remaining, p.Quantity) {
			// Partial reduction keeps the entry price.
			p.Quantity = remaining
		} else {
			// Sign flip: residual is a new position at the fill price.
			p.Quantity = remaining
			p.AvgEntryPrice = price
		}
	}
	p.UpdatedAt = time.Now()
	return *p
}

// Close fully flattens the position and clears protective state.
func (l *Ledger) Close(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[k]; ok {
		clearLocked(p)
		p.UpdatedAt = time.Now()
	}
}

// SetProtection records stop-loss/take-profit prices and their venue order
// ids. Zero price arguments leave the respective side untouched.
func (l *Ledger) SetProtection(k Key, slPrice float64, slOrderID string, tpPrice float64, tpOrderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.ensureLocked(k)
	if slPrice > 0 {
		p.StopLossPrice = slPrice
		p.StopLossOrderID = slOrderID
	}
	if tpPrice > 0 {
		p.TakeProfitPrice = tpPrice
		p.TakeProfitOrderID = tpOrderID
	}
	p.UpdatedAt = time.Now()
}

// MarkPrice recomputes unrealized PnL against a live price.
func (l *Ledger) MarkPrice(k Key, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[k]
	if !ok || p.Quantity == 0 {
		return
	}
	p.UnrealizedPnL = (price - p.AvgEntryPrice) * p.Quantity
	p.UpdatedAt = time.Now()
}

// Get returns a copy of the position, and whether it exists.
func (l *Ledger) Get(k Key) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[k]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// NonFlat returns copies of every position with a non-zero quantity.
func (l *Ledger) NonFlat() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		if p.Quantity != 0 {
			out = append(out, *p)
		}
	}
	return out
}

// UserPositions returns copies of every position owned by the user.
func (l *Ledger) UserPositions(userID string) []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Position
	for k, p := range l.positions {
		if k.UserID == userID {
			out = append(out, *p)
		}
	}
	return out
}

// OpenPositionCount counts the user's non-flat positions.
func (l *Ledger) OpenPositionCount(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for k, p := range l.positions {
		if k.UserID == userID && p.Quantity != 0 {
			n++
		}
	}
	return n
}

// AggregateUnrealizedPnL sums unrealized PnL across all positions.
func (l *Ledger) AggregateUnrealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, p := range l.positions {
		total += p.UnrealizedPnL
	}
	return total
}

func (l *Ledger) ensureLocked(k Key) *Position {
	p, ok := l.positions[k]
	if !ok {
		p = &Position{UserID: k.UserID, Exchange: k.Exchange, Symbol: k.Symbol}
		l.positions[k] = p
	}
	return p
}

// clearLocked enforces the flat-position invariant: no entry price, no
// protective state once quantity reaches zero.
func clearLocked(p *Position) {
	p.Quantity = 0
	p.AvgEntryPrice = 0
	p.UnrealizedPnL = 0
	p.StopLossPrice = 0
	p.StopLossOrderID = ""
	p.TakeProfitPrice = 0
	p.TakeProfitOrderID = ""
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
