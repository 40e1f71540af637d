package engine

import (
	"strings"
	"time"
)

// SignalType is the closed set of trading instructions.
type SignalType string

const (
	SignalBuy   SignalType = "BUY"
	SignalSell  SignalType = "SELL"
	SignalClose SignalType = "CLOSE"
)

// Valid reports whether the type is one of the three known instructions.
func (t SignalType) Valid() bool {
	switch t {
	case SignalBuy, SignalSell, SignalClose:
		return true
	}
	return false
}

// SessionStatus is the trading session lifecycle state.
type SessionStatus string

const (
	StatusInactive SessionStatus = "INACTIVE"
	StatusActive   SessionStatus = "ACTIVE"
	StatusPaused   SessionStatus = "PAUSED"
	StatusStopping SessionStatus = "STOPPING"
	StatusStopped  SessionStatus = "STOPPED"
	StatusError    SessionStatus = "ERROR"
)

// ExecutionMode describes how much autonomy the session has.
type ExecutionMode string

const (
	ModeManual   ExecutionMode = "MANUAL"
	ModeSemiAuto ExecutionMode = "SEMI_AUTO"
	ModeFullAuto ExecutionMode = "FULL_AUTO"
)

// symbolSeparator must appear in every tradable symbol (e.g. BTC/USDT).
const symbolSeparator = "/"

// Signal is one BUY/SELL/CLOSE instruction to be turned into orders.
type Signal struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	StrategyID string     `json:"strategy_id,omitempty"`
	Exchange   string     `json:"exchange"`
	Symbol     string     `json:"symbol"`
	Type       SignalType `json:"signal_type"`
	Quantity   float64    `json:"quantity"`
	LimitPrice float64    `json:"limit_price,omitempty"` // 0 means market order
	StopLoss   float64    `json:"stop_loss,omitempty"`
	TakeProfit float64    `json:"take_profit,omitempty"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Executed   bool       `json:"executed"`
}

// validate checks the structural invariants enforced at submission time.
func (s *Signal) validate() string {
	if s.Quantity <= 0 {
		return "quantity must be positive"
	}
	if !s.Type.Valid() {
		return "unknown signal type " + string(s.Type)
	}
	if !strings.Contains(s.Symbol, symbolSeparator) {
		return "symbol missing separator: " + s.Symbol
	}
	return ""
}

// Session is a user's configured trading context for one exchange and a
// symbol set. Owned and mutated exclusively by the Coordinator.
type Session struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Exchange   string        `json:"exchange"`
	Symbols    []string      `json:"symbols"`
	StrategyID string        `json:"strategy_id,omitempty"`
	Status     SessionStatus `json:"status"`
	Mode       ExecutionMode `json:"execution_mode"`

	MaxDailyTrades    int  `json:"max_daily_trades"`
	MaxOpenPositions  int  `json:"max_open_positions"`
	StopLossEnabled   bool `json:"stop_loss_enabled"`
	TakeProfitEnabled bool `json:"take_profit_enabled"`

	TotalTrades int `json:"total_trades"`

	// Order id -> symbol, so cancellation can target the right book.
	OpenOrderIDs       map[string]string `json:"-"`
	ProtectiveOrderIDs map[string]string `json:"-"`

	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	StoppedAt    time.Time `json:"stopped_at,omitempty"`
}

func (s *Session) hasSymbol(symbol string) bool {
	for _, sym := range s.Symbols {
		if sym == symbol {
			return true
		}
	}
	return false
}

// snapshot returns a copy safe to hand to callers; the id sets are not shared.
func (s *Session) snapshot() Session {
	cp := *s
	cp.Symbols = append([]string(nil), s.Symbols...)
	cp.OpenOrderIDs = nil
	cp.ProtectiveOrderIDs = nil
	return cp
}

// Stats is the aggregate engine view exposed to callers.
type Stats struct {
	Running         bool    `json:"running"`
	ActiveSessions  int     `json:"active_sessions"`
	QueuedSignals   int     `json:"queued_signals"`
	SignalsExecuted uint64  `json:"signals_executed"`
	SignalsFailed   uint64  `json:"signals_failed"`
	SuccessRate     float64 `json:"success_rate"`
	OpenPositions   int     `json:"open_positions"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
}

// CreateParams are the inputs to CreateSession.
type CreateParams struct {
	UserID            string        `json:"user_id"`
	Exchange          string        `json:"exchange"`
	Symbols           []string      `json:"symbols"`
	StrategyID        string        `json:"strategy_id,omitempty"`
	Mode              ExecutionMode `json:"execution_mode"`
	MaxDailyTrades    int           `json:"max_daily_trades"`
	MaxOpenPositions  int           `json:"max_open_positions"`
	StopLossEnabled   bool          `json:"stop_loss_enabled"`
	TakeProfitEnabled bool          `json:"take_profit_enabled"`
}
