package engine

import (
	"context"
	"fmt"
	"log"

	"execution-core/internal/events"
	"execution-core/internal/gateway"
	"execution-core/internal/ledger"
)

// executeSignal runs one dequeued signal to completion. Failures are counted
// and logged, never retried; the signal is discarded either way.
func (c *Coordinator) executeSignal(ctx context.Context, sig *Signal) {
	s := c.findActiveSession(sig.UserID, sig.Exchange, sig.Symbol)
	if s == nil {
		log.Printf("engine: dropping signal %s: no active session for user %s %s %s",
			sig.ID, sig.UserID, sig.Exchange, sig.Symbol)
		c.markFailed()
		return
	}

	if reason := c.checkSessionLimits(s, sig); reason != "" {
		log.Printf("engine: signal %s rejected: %s", sig.ID, reason)
		c.publish(events.EventSignalRejected, reason)
		c.markFailed()
		return
	}

	var err error
	switch sig.Type {
	case SignalBuy:
		err = c.executeEntry(ctx, s, sig, gateway.SideBuy)
	case SignalSell:
		err = c.executeEntry(ctx, s, sig, gateway.SideSell)
	case SignalClose:
		err = c.executeClose(ctx, s, sig)
	}

	sig.Executed = true
	if err != nil {
		log.Printf("engine: signal %s failed: %v", sig.ID, err)
		c.publish(events.EventOrderRejected, err.Error())
		c.markFailed()
		return
	}

	c.mu.Lock()
	s.TotalTrades++
	c.mu.Unlock()
	c.publish(events.EventSignalExecuted, *sig)
	c.markExecuted()
}

// checkSessionLimits enforces daily-trade and open-position caps before any
// order leaves the engine, so limits can never overshoot.
func (c *Coordinator) checkSessionLimits(s *Session, sig *Signal) string {
	c.mu.RLock()
	total, maxTrades, maxOpen := s.TotalTrades, s.MaxDailyTrades, s.MaxOpenPositions
	c.mu.RUnlock()

	if total >= maxTrades {
		return fmt.Sprintf("daily trade limit reached (%d)", maxTrades)
	}
	if sig.Type == SignalBuy || sig.Type == SignalSell {
		if open := c.ledger.OpenPositionCount(sig.UserID); open >= maxOpen {
			return fmt.Sprintf("max open positions reached (%d)", maxOpen)
		}
	}
	return ""
}

// executeEntry places a market or limit order and, on success, records the
// fill and any protective resting orders carried by the signal.
func (c *Coordinator) executeEntry(ctx context.Context, s *Session, sig *Signal, side gateway.Side) error {
	orderType := gateway.TypeMarket
	if sig.LimitPrice > 0 {
		orderType = gateway.TypeLimit
	}

	res, err := c.gw.PlaceOrder(ctx, gateway.OrderRequest{
		UserID:    sig.UserID,
		Venue:     sig.Exchange,
		Symbol:    sig.Symbol,
		Type:      orderType,
		Side:      side,
		Amount:    sig.Quantity,
		Price:     sig.LimitPrice,
		RiskCheck: true,
	})
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("order rejected: %s", res.Err)
	}

	filled := res.Filled
	if filled == 0 {
		filled = sig.Quantity
	}

	key := ledger.Key{UserID: sig.UserID, Exchange: sig.Exchange, Symbol: sig.Symbol}
	pos := c.ledger.ApplyFill(key, side, filled, res.Price)
	c.publish(events.EventOrderFilled, res)

	if orderType == gateway.TypeLimit {
		c.mu.Lock()
		s.OpenOrderIDs[res.OrderID] = sig.Symbol
		c.mu.Unlock()
	}

	c.placeProtectiveOrders(ctx, s, sig, side, pos)
	return nil
}

// placeProtectiveOrders submits stop-loss / take-profit resting orders when
// the signal carries those prices and the session has the feature enabled.
// Failures are logged, not fatal: the engine's own trigger loop is the
// fallback exit path.
func (c *Coordinator) placeProtectiveOrders(ctx context.Context, s *Session, sig *Signal, side gateway.Side, pos ledger.Position) {
	key := ledger.Key{UserID: sig.UserID, Exchange: sig.Exchange, Symbol: sig.Symbol}
	exitSide := side.Opposite()

	var slID, tpID string
	if sig.StopLoss > 0 && s.StopLossEnabled {
		id, err := c.gw.PlaceStopOrder(ctx, gateway.ProtectiveOrderRequest{
			UserID:       sig.UserID,
			Venue:        sig.Exchange,
			Symbol:       sig.Symbol,
			Side:         exitSide,
			Amount:       abs(pos.Quantity),
			TriggerPrice: sig.StopLoss,
		})
		if err != nil {
			log.Printf("engine: stop-loss order for %s failed: %v", sig.Symbol, err)
		} else {
			slID = id
			c.mu.Lock()
			s.ProtectiveOrderIDs[id] = sig.Symbol
			c.mu.Unlock()
		}
	}
	if sig.TakeProfit > 0 && s.TakeProfitEnabled {
		id, err := c.gw.PlaceLimitOrder(ctx, gateway.ProtectiveOrderRequest{
			UserID:       sig.UserID,
			Venue:        sig.Exchange,
			Symbol:       sig.Symbol,
			Side:         exitSide,
			Amount:       abs(pos.Quantity),
			TriggerPrice: sig.TakeProfit,
		})
		if err != nil {
			log.Printf("engine: take-profit order for %s failed: %v", sig.Symbol, err)
		} else {
			tpID = id
			c.mu.Lock()
			s.ProtectiveOrderIDs[id] = sig.Symbol
			c.mu.Unlock()
		}
	}

	if sig.StopLoss > 0 || sig.TakeProfit > 0 {
		c.ledger.SetProtection(key, sig.StopLoss, slID, sig.TakeProfit, tpID)
	}
}

// executeClose flattens the position with an opposite-side market order, then
// cancels protective orders and zeroes the ledger entry.
func (c *Coordinator) executeClose(ctx context.Context, s *Session, sig *Signal) error {
	key := ledger.Key{UserID: sig.UserID, Exchange: sig.Exchange, Symbol: sig.Symbol}
	pos, ok := c.ledger.Get(key)
	if !ok || pos.IsFlat() {
		return fmt.Errorf("close %s: no open position", sig.Symbol)
	}

	side := gateway.SideSell
	if pos.Quantity < 0 {
		side = gateway.SideBuy
	}

	res, err := c.gw.PlaceOrder(ctx, gateway.OrderRequest{
		UserID: sig.UserID,
		Venue:  sig.Exchange,
		Symbol: sig.Symbol,
		Type:   gateway.TypeMarket,
		Side:   side,
		Amount: abs(pos.Quantity),
	})
	if err != nil {
		return fmt.Errorf("close order: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("close rejected: %s", res.Err)
	}

	for _, id := range []string{pos.StopLossOrderID, pos.TakeProfitOrderID} {
		if id == "" {
			continue
		}
		if err := c.gw.CancelOrder(ctx, sig.UserID, sig.Exchange, id, sig.Symbol); err != nil {
			log.Printf("engine: cancel protective order %s: %v", id, err)
		}
		c.mu.Lock()
		delete(s.ProtectiveOrderIDs, id)
		c.mu.Unlock()
	}

	c.ledger.Close(key)
	c.publish(events.EventOrderFilled, res)
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
