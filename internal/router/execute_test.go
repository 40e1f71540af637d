package router

import (
	"context"
	"testing"
	"time"

	"execution-core/internal/gateway"
)

func routeFor(t *testing.T, r *Router, strategy RoutingStrategy, urgency Urgency) RoutingDecision {
	t.Helper()
	d, err := r.RouteOrder(context.Background(), ParentOrder{
		UserID: "1", Symbol: "BTC/USDT", Side: gateway.SideBuy,
		Quantity: 9, Strategy: strategy, Urgency: urgency,
	})
	if err != nil {
		t.Fatalf("RouteOrder: %v", err)
	}
	return d
}

func TestFastestFillExecutesFragmentsConcurrently(t *testing.T) {
	gw := threeVenueGateway()
	gw.orderDelay = 50 * time.Millisecond
	r := newTestRouter(t, gw, allowAllRisk{}, "alpha", "bravo", "gamma")

	d := routeFor(t, r, StrategyFastestFill, UrgencyMedium)
	if len(d.Fragments) != 3 {
		t.Fatalf("fragments=%d, expected 3", len(d.Fragments))
	}

	start := time.Now()
	results := r.ExecuteDecision(context.Background(), "1", d)
	elapsed := time.Since(start)

	// Three 50ms placements overlapping: total well under the 150ms a
	// sequential run would need.
	if elapsed >= 140*time.Millisecond {
		t.Fatalf("execution took %s, expected concurrent fragments", elapsed)
	}
	gw.mu.Lock()
	starts := append([]time.Time(nil), gw.starts...)
	gw.mu.Unlock()
	for _, s := range starts {
		if s.Sub(start) > 40*time.Millisecond {
			t.Fatalf("fragment started %s in, expected all starts before any completion", s.Sub(start))
		}
	}
	for _, res := range results {
		if !res.Success {
			t.Fatalf("fragment on %s failed: %s", res.Venue, res.Err)
		}
	}
}

func TestBalancedExecutesFragmentsSequentially(t *testing.T) {
	gw := threeVenueGateway()
	gw.orderDelay = 30 * time.Millisecond
	r := newTestRouter(t, gw, allowAllRisk{}, "alpha", "bravo", "gamma")

	d := routeFor(t, r, StrategyBalanced, UrgencyLow)
	if len(d.Fragments) < 2 {
		t.Fatalf("fragments=%d, expected at least 2", len(d.Fragments))
	}

	r.ExecuteDecision(context.Background(), "1", d)

	gw.mu.Lock()
	starts := append([]time.Time(nil), gw.starts...)
	gw.mu.Unlock()
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < 25*time.Millisecond {
			t.Fatalf("fragment %d started %s after its predecessor, expected strict sequencing", i, gap)
		}
	}
}

func TestCriticalUrgencyForcesParallel(t *testing.T) {
	gw := threeVenueGateway()
	gw.orderDelay = 50 * time.Millisecond
	r := newTestRouter(t, gw, allowAllRisk{}, "alpha", "bravo", "gamma")

	d := routeFor(t, r, StrategyBestPrice, UrgencyCritical)
	if len(d.Fragments) < 2 {
		t.Fatalf("fragments=%d, expected a multi-venue plan", len(d.Fragments))
	}

	start := time.Now()
	r.ExecuteDecision(context.Background(), "1", d)
	if elapsed := time.Since(start); elapsed >= time.Duration(len(d.Fragments))*45*time.Millisecond {
		t.Fatalf("execution took %s, critical urgency must run fragments concurrently", elapsed)
	}
}

func TestFragmentFailureDoesNotAbortSiblings(t *testing.T) {
	gw := threeVenueGateway()
	gw.failVenues["alpha"] = true
	r := newTestRouter(t, gw, allowAllRisk{}, "alpha", "bravo", "gamma")

	d := routeFor(t, r, StrategyBestPrice, UrgencyLow)
	results := r.ExecuteDecision(context.Background(), "1", d)

	var ok, failed int
	for _, res := range results {
		if res.Success {
			ok++
		} else {
			failed++
		}
	}
	if failed == 0 {
		t.Fatal("expected the rigged venue to fail")
	}
	if ok == 0 {
		t.Fatal("sibling fragments must still execute after a failure")
	}

	stats := r.Stats()
	if stats.FragmentsFailed != failed || stats.FragmentsExecuted != ok {
		t.Fatalf("stats executed=%d failed=%d, expected %d/%d",
			stats.FragmentsExecuted, stats.FragmentsFailed, ok, failed)
	}
	for _, vs := range stats.Venues {
		if vs.Venue == "alpha" && vs.Orders > 0 && vs.SuccessRate != 0 {
			t.Fatalf("alpha success rate %.2f, expected 0 after its only order failed", vs.SuccessRate)
		}
	}
}

func TestVenueStatsFeedBackIntoRanking(t *testing.T) {
	gw := threeVenueGateway()
	gw.failVenues["gamma"] = true
	r := newTestRouter(t, gw, allowAllRisk{}, "alpha", "bravo", "gamma")

	// A few executions teach the router that gamma fails.
	for i := 0; i < 3; i++ {
		d := routeFor(t, r, StrategyFastestFill, UrgencyMedium)
		r.ExecuteDecision(context.Background(), "1", d)
	}

	if r.successRate("gamma") != 0 {
		t.Fatalf("gamma success rate %.2f, expected 0", r.successRate("gamma"))
	}
	if r.performanceScore("gamma") >= r.performanceScore("alpha") {
		t.Fatal("failing venue must rank below a healthy one")
	}
}
