package risk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"execution-core/internal/gateway"
)

// Config holds the limit set evaluated for every proposed order.
type Config struct {
	MaxOrderValue    float64 // notional cap for a single order
	MaxTotalExposure float64 // notional cap across a user's open orders
	MaxDailyLoss     float64 // realized loss that trips the emergency stop
	MinOrderSize     float64 // dust filter
}

// DefaultConfig mirrors the config package defaults.
func DefaultConfig() Config {
	return Config{
		MaxOrderValue:    250000,
		MaxTotalExposure: 1000000,
		MaxDailyLoss:     50000,
		MinOrderSize:     1e-6,
	}
}

// Assessor is an in-memory RiskAssessor. It tracks per-user exposure and
// realized daily loss, and supports a manual emergency stop per user as well
// as an automatic one when the daily loss limit is breached.
type Assessor struct {
	mu       sync.RWMutex
	cfg      Config
	exposure map[string]float64 // user -> open notional
	dayLoss  map[string]float64 // user -> realized loss today
	stops    map[string]string  // user -> emergency stop reason
	day      string
}

// NewAssessor creates an assessor with the given limits.
func NewAssessor(cfg Config) *Assessor {
	log.Printf("risk: assessor initialized max_order=%.0f max_exposure=%.0f max_daily_loss=%.0f",
		cfg.MaxOrderValue, cfg.MaxTotalExposure, cfg.MaxDailyLoss)
	return &Assessor{
		cfg:      cfg,
		exposure: make(map[string]float64),
		dayLoss:  make(map[string]float64),
		stops:    make(map[string]string),
		day:      today(),
	}
}

var _ gateway.RiskAssessor = (*Assessor)(nil)

// AssessOrderRisk approves or rejects a proposed order. A zero price (market
// order with unknown mark) skips the notional checks but still honors the
// emergency stop and size floor.
func (a *Assessor) AssessOrderRisk(ctx context.Context, userID, symbol string, side gateway.Side, qty, price float64) (gateway.Assessment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDayLocked()

	var violations []string

	if reason, stopped := a.stops[userID]; stopped {
		violations = append(violations, "emergency stop active: "+reason)
	}
	if qty < a.cfg.MinOrderSize {
		violations = append(violations, fmt.Sprintf("quantity %.8f below minimum order size", qty))
	}

	notional := qty * price
	if price > 0 {
		if a.cfg.MaxOrderValue > 0 && notional > a.cfg.MaxOrderValue {
			violations = append(violations, fmt.Sprintf("order value %.2f exceeds limit %.2f", notional, a.cfg.MaxOrderValue))
		}
		if a.cfg.MaxTotalExposure > 0 && a.exposure[userID]+notional > a.cfg.MaxTotalExposure {
			violations = append(violations, fmt.Sprintf("total exposure %.2f would exceed limit %.2f",
				a.exposure[userID]+notional, a.cfg.MaxTotalExposure))
		}
	}

	score := 0.0
	if price > 0 && a.cfg.MaxOrderValue > 0 {
		score = notional / a.cfg.MaxOrderValue
		if score > 1 {
			score = 1
		}
	}

	return gateway.Assessment{
		Approved:   len(violations) == 0,
		Violations: violations,
		RiskScore:  score,
	}, nil
}

// EmergencyStopCheck reports whether the user's trading is halted.
func (a *Assessor) EmergencyStopCheck(ctx context.Context, userID string) (bool, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDayLocked()

	if reason, ok := a.stops[userID]; ok {
		return true, reason, nil
	}
	if a.cfg.MaxDailyLoss > 0 && a.dayLoss[userID] >= a.cfg.MaxDailyLoss {
		reason := fmt.Sprintf("daily loss %.2f reached limit %.2f", a.dayLoss[userID], a.cfg.MaxDailyLoss)
		a.stops[userID] = reason
		return true, reason, nil
	}
	return false, "", nil
}

// TriggerEmergencyStop halts a user's trading until ClearEmergencyStop.
func (a *Assessor) TriggerEmergencyStop(userID, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops[userID] = reason
	log.Printf("risk: emergency stop set for user %s: %s", userID, reason)
}

// ClearEmergencyStop re-enables a user's trading.
func (a *Assessor) ClearEmergencyStop(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.stops, userID)
}

// RecordExposure adjusts the user's open notional after fills; negative delta
// on closes.
func (a *Assessor) RecordExposure(userID string, delta float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exposure[userID] += delta
	if a.exposure[userID] < 0 {
		a.exposure[userID] = 0
	}
}

// RecordLoss accumulates realized loss for the day. Profits pass a negative
// loss and reduce the running total, floored at zero.
func (a *Assessor) RecordLoss(userID string, loss float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDayLocked()
	a.dayLoss[userID] += loss
	if a.dayLoss[userID] < 0 {
		a.dayLoss[userID] = 0
	}
}

func (a *Assessor) rollDayLocked() {
	if d := today(); d != a.day {
		a.day = d
		a.dayLoss = make(map[string]float64)
	}
}

func today() string {
	return time.Now().Format("2006-01-02")
}
