package router

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"execution-core/internal/events"
	"execution-core/internal/gateway"
)

// ExecuteDecision submits every fragment of the plan. Fragments run in
// parallel for FASTEST_FILL or CRITICAL urgency, strictly sequentially
// otherwise. A failed fragment never aborts its siblings; the caller gets the
// mixed result list and reconciles fill quantity itself.
func (r *Router) ExecuteDecision(ctx context.Context, userID string, d RoutingDecision) []OrderExecutionResult {
	frags := append([]OrderFragment(nil), d.Fragments...)
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].Priority < frags[j].Priority })

	results := make([]OrderExecutionResult, len(frags))
	if d.Strategy == StrategyFastestFill || d.Urgency == UrgencyCritical {
		var wg sync.WaitGroup
		for i, f := range frags {
			wg.Add(1)
			go func(i int, f OrderFragment) {
				defer wg.Done()
				defer func() {
					if rec := recover(); rec != nil {
						results[i] = OrderExecutionResult{
							Venue: f.Venue,
							Err:   fmt.Sprintf("fragment panic: %v", rec),
						}
					}
				}()
				results[i] = r.executeFragment(ctx, userID, d.Symbol, f)
			}(i, f)
		}
		wg.Wait()
	} else {
		for i, f := range frags {
			results[i] = r.executeFragment(ctx, userID, d.Symbol, f)
			if !results[i].Success {
				log.Printf("router: fragment %d/%d on %s failed: %s",
					i+1, len(frags), f.Venue, results[i].Err)
			}
		}
	}

	// Venue statistics update only after all fragments join, so parallel
	// execution never races the counters.
	r.recordResults(results)
	for _, res := range results {
		r.publish(events.EventFragmentExecuted, res)
	}
	return results
}

func (r *Router) executeFragment(ctx context.Context, userID, symbol string, f OrderFragment) OrderExecutionResult {
	start := time.Now()
	res, err := r.gw.PlaceOrder(ctx, gateway.OrderRequest{
		UserID: userID,
		Venue:  f.Venue,
		Symbol: symbol,
		Type:   f.Type,
		Side:   f.Side,
		Amount: f.Quantity,
		Price:  f.LimitPrice,
		// Risk was assessed for the full parent quantity at routing time.
		RiskCheck: false,
	})
	elapsed := time.Since(start)

	if err != nil {
		return OrderExecutionResult{Venue: f.Venue, Duration: elapsed, Err: err.Error()}
	}
	if !res.Success {
		return OrderExecutionResult{Venue: f.Venue, Duration: elapsed, Err: res.Err}
	}

	out := OrderExecutionResult{
		Venue:    f.Venue,
		OrderID:  res.OrderID,
		Success:  true,
		Quantity: res.Filled,
		Price:    res.Price,
		Cost:     res.Cost,
		Duration: elapsed,
	}
	if f.EstimatedPrice > 0 {
		// Positive slippage is adverse: paid more on a buy, received less
		// on a sell.
		out.Slippage = (res.Price - f.EstimatedPrice) / f.EstimatedPrice
		if f.Side == gateway.SideSell {
			out.Slippage = -out.Slippage
		}
	}
	return out
}

func (r *Router) recordResults(results []OrderExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range results {
		rec := r.stats[res.Venue]
		if rec == nil {
			rec = &venueRecord{}
			r.stats[res.Venue] = rec
		}
		rec.orders++
		rec.totalLatency += res.Duration
		if res.Success {
			rec.successes++
			r.executed++
		} else {
			r.failed++
		}
	}
	r.results = append(r.results, results...)
	if len(r.results) > r.historySize {
		r.results = r.results[len(r.results)-r.historySize:]
	}
}
