package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"execution-core/internal/events"
	"execution-core/internal/ledger"
)

const (
	mainLoopBackoff    = 5 * time.Second
	monitorLoopBackoff = 10 * time.Second

	// Monitoring alert thresholds.
	aggregateLossAlert = -50000.0
	openPositionsAlert = 100
)

// mainLoop drives signal execution, PnL marking, protective triggers and
// session purging at a fixed cadence. A bad iteration backs off and the loop
// continues; only cancellation ends it.
func (c *Coordinator) mainLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.mainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.safeTick(ctx); err != nil {
				log.Printf("engine: main loop iteration failed: %v", err)
				if !sleepCtx(ctx, mainLoopBackoff) {
					return
				}
			}
		}
	}
}

func (c *Coordinator) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	c.tick(ctx)
	return nil
}

// tick is one main-loop iteration.
func (c *Coordinator) tick(ctx context.Context) {
	for _, sig := range c.queue.DrainN(c.batchSize) {
		c.executeSignal(ctx, sig)
	}
	c.markPositions(ctx)
	c.checkProtectiveTriggers(ctx)
	c.purgeStopped()
}

// markPositions refreshes unrealized PnL for every non-flat position from a
// live price lookup. Price failures skip the position until the next tick.
func (c *Coordinator) markPositions(ctx context.Context) {
	for _, pos := range c.ledger.NonFlat() {
		price, err := c.gw.GetCurrentPrice(ctx, pos.Exchange, pos.Symbol)
		if err != nil {
			log.Printf("engine: price lookup %s %s: %v", pos.Exchange, pos.Symbol, err)
			continue
		}
		c.ledger.MarkPrice(ledger.Key{UserID: pos.UserID, Exchange: pos.Exchange, Symbol: pos.Symbol}, price)
	}
}

// checkProtectiveTriggers evaluates stop-loss/take-profit conditions and
// synthesizes a CLOSE at the queue head on trigger. Execution stays funneled
// through the signal queue; the trigger never calls the venue directly.
func (c *Coordinator) checkProtectiveTriggers(ctx context.Context) {
	for _, pos := range c.ledger.NonFlat() {
		if pos.StopLossPrice == 0 && pos.TakeProfitPrice == 0 {
			continue
		}
		price, err := c.gw.GetCurrentPrice(ctx, pos.Exchange, pos.Symbol)
		if err != nil {
			continue
		}
		reason := triggerReason(pos, price)
		if reason == "" {
			continue
		}

		closeSig := &Signal{
			ID:         "protective-" + pos.Symbol + "-" + fmt.Sprint(time.Now().UnixMilli()),
			UserID:     pos.UserID,
			Exchange:   pos.Exchange,
			Symbol:     pos.Symbol,
			Type:       SignalClose,
			Quantity:   abs(pos.Quantity),
			Confidence: 1,
			Reason:     reason,
			CreatedAt:  time.Now(),
		}
		c.queue.PushFront(closeSig)
		c.publish(events.EventProtectiveTrigger, *closeSig)
		log.Printf("engine: %s (%s %s), closing position", reason, pos.Exchange, pos.Symbol)
	}
}

// triggerReason applies the direction-aware trigger policy: long positions
// stop out at price <= stop and take profit at price >= target; short
// positions invert both comparisons.
func triggerReason(pos ledger.Position, price float64) string {
	long := pos.Quantity > 0
	if pos.StopLossPrice > 0 {
		if (long && price <= pos.StopLossPrice) || (!long && price >= pos.StopLossPrice) {
			return fmt.Sprintf("stop loss triggered at %.4f (stop %.4f)", price, pos.StopLossPrice)
		}
	}
	if pos.TakeProfitPrice > 0 {
		if (long && price >= pos.TakeProfitPrice) || (!long && price <= pos.TakeProfitPrice) {
			return fmt.Sprintf("take profit triggered at %.4f (target %.4f)", price, pos.TakeProfitPrice)
		}
	}
	return ""
}

// purgeStopped removes sessions stopped longer than the retention window.
// Archival is deletion; there is no durable store behind the session map.
func (c *Coordinator) purgeStopped() {
	cutoff := time.Now().Add(-c.retention)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.sessions {
		if s.Status == StatusStopped && !s.StoppedAt.IsZero() && s.StoppedAt.Before(cutoff) {
			delete(c.sessions, id)
			log.Printf("engine: session %s purged after retention window", id)
		}
	}
}

// monitorLoop recomputes aggregate statistics and emits system-wide risk
// alerts. Monitoring only: it never cancels sessions or orders.
func (c *Coordinator) monitorLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.safeMonitorPass(); err != nil {
				log.Printf("engine: monitor iteration failed: %v", err)
				if !sleepCtx(ctx, monitorLoopBackoff) {
					return
				}
			}
		}
	}
}

func (c *Coordinator) safeMonitorPass() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor panic: %v", r)
		}
	}()
	c.monitorPass()
	return nil
}

func (c *Coordinator) monitorPass() {
	stats := c.Stats()
	log.Printf("engine: stats sessions=%d queued=%d executed=%d failed=%d success=%.1f%% open=%d upnl=%.2f",
		stats.ActiveSessions, stats.QueuedSignals, stats.SignalsExecuted, stats.SignalsFailed,
		stats.SuccessRate*100, stats.OpenPositions, stats.UnrealizedPnL)

	if stats.UnrealizedPnL < aggregateLossAlert {
		c.publish(events.EventRiskAlert, fmt.Sprintf(
			"aggregate unrealized PnL %.2f below threshold %.2f", stats.UnrealizedPnL, aggregateLossAlert))
	}
	if stats.OpenPositions > openPositionsAlert {
		c.publish(events.EventRiskAlert, fmt.Sprintf(
			"open position count %d above threshold %d", stats.OpenPositions, openPositionsAlert))
	}
}

// sleepCtx sleeps unless the context ends first; false means cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
