package router

import (
	"sort"

	"execution-core/internal/gateway"
)

// Fragment caps as a fraction of the venue's visible liquidity. Eating a full
// level moves the market, so every strategy leaves headroom.
const (
	bestPriceTopCap   = 0.80 // of top-of-book size
	minimalImpactCap  = 0.10 // of 5-level depth
	fastestFillTopCap = 0.90 // of top-of-book size
	balancedTopCap    = 0.70 // of top-of-book size
)

// assumedFeeScore stands in for a per-venue fee schedule the router does not
// yet ingest; all venues are treated as equally priced.
const assumedFeeScore = 0.9

// fragment builds one child order against a venue snapshot, carrying a
// half-spread plus depth-impact slippage estimate.
func (r *Router) fragment(liq VenueLiquidity, p ParentOrder, qty float64, priority int) OrderFragment {
	price := liq.execPrice(p.Side)
	if p.LimitPrice > 0 {
		price = p.LimitPrice
	}
	orderType := gateway.TypeMarket
	if p.LimitPrice > 0 {
		orderType = gateway.TypeLimit
	}

	slip := 0.0
	if mid := (liq.BestBid + liq.BestAsk) / 2; mid > 0 {
		slip = liq.Spread / (2 * mid)
	}
	if depth := liq.depth(p.Side); depth > 0 {
		slip += 0.001 * (qty / depth)
	}

	return OrderFragment{
		Venue:             liq.Venue,
		Side:              p.Side,
		Quantity:          qty,
		LimitPrice:        p.LimitPrice,
		Type:              orderType,
		EstimatedPrice:    price,
		EstimatedCost:     price * qty,
		EstimatedSlippage: slip,
		Priority:          priority,
	}
}

// fragmentBestPrice fills greedily from the cheapest executable venue, taking
// at most 80% of each venue's top-of-book size. Quantity that no venue can
// absorb is dropped from the plan.
func (r *Router) fragmentBestPrice(liquidity []VenueLiquidity, p ParentOrder) []OrderFragment {
	sorted := append([]VenueLiquidity(nil), liquidity...)
	sort.Slice(sorted, func(i, j int) bool {
		if p.Side == gateway.SideBuy {
			return sorted[i].BestAsk < sorted[j].BestAsk
		}
		return sorted[i].BestBid > sorted[j].BestBid
	})

	var frags []OrderFragment
	remaining := p.Quantity
	for i, liq := range sorted {
		if remaining <= 0 {
			break
		}
		limit := liq.topSize(p.Side) * bestPriceTopCap
		if limit <= 0 {
			continue
		}
		qty := remaining
		if qty > limit {
			qty = limit
		}
		frags = append(frags, r.fragment(liq, p, qty, i))
		remaining -= qty
	}
	return frags
}

// fragmentMinimalImpact prefers venues where the requested quantity is small
// relative to the 5-level depth, taking at most 10% of each venue's depth.
func (r *Router) fragmentMinimalImpact(liquidity []VenueLiquidity, p ParentOrder) []OrderFragment {
	type scored struct {
		liq    VenueLiquidity
		impact float64
	}
	var ranked []scored
	for _, liq := range liquidity {
		depth := liq.depth(p.Side)
		if depth <= 0 {
			continue
		}
		ranked = append(ranked, scored{liq, p.Quantity / depth})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].impact < ranked[j].impact })

	var frags []OrderFragment
	remaining := p.Quantity
	for i, s := range ranked {
		if remaining <= 0 {
			break
		}
		limit := s.liq.depth(p.Side) * minimalImpactCap
		qty := remaining
		if qty > limit {
			qty = limit
		}
		frags = append(frags, r.fragment(s.liq, p, qty, i))
		remaining -= qty
	}
	return frags
}

// fragmentFastestFill ranks venues by historical performance, splits the
// order equally across the top 3, and marks every fragment priority 0 so the
// execution phase runs them in parallel.
func (r *Router) fragmentFastestFill(liquidity []VenueLiquidity, p ParentOrder) []OrderFragment {
	type scored struct {
		liq   VenueLiquidity
		score float64
	}
	ranked := make([]scored, 0, len(liquidity))
	for _, liq := range liquidity {
		ranked = append(ranked, scored{liq, r.performanceScore(liq.Venue)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	var frags []OrderFragment
	share := p.Quantity / float64(len(ranked))
	for _, s := range ranked {
		qty := share
		if limit := s.liq.topSize(p.Side) * fastestFillTopCap; qty > limit {
			qty = limit
		}
		if qty <= 0 {
			continue
		}
		frags = append(frags, r.fragment(s.liq, p, qty, 0))
	}
	return frags
}

// fragmentBalanced blends price, depth, historical success and an assumed fee
// factor, concentrates on fewer venues under high urgency, and allocates
// proportionally to score with a 70% top-of-book cap per venue.
func (r *Router) fragmentBalanced(liquidity []VenueLiquidity, p ParentOrder) []OrderFragment {
	type scored struct {
		liq   VenueLiquidity
		score float64
	}

	lo, hi := 0.0, 0.0
	for i, liq := range liquidity {
		price := liq.execPrice(p.Side)
		if i == 0 || price < lo {
			lo = price
		}
		if i == 0 || price > hi {
			hi = price
		}
	}

	ranked := make([]scored, 0, len(liquidity))
	for _, liq := range liquidity {
		// 1.0 at the most attractive executable price, 0.0 at the least.
		priceScore := 1.0
		if hi > lo {
			if p.Side == gateway.SideBuy {
				priceScore = (hi - liq.execPrice(p.Side)) / (hi - lo)
			} else {
				priceScore = (liq.execPrice(p.Side) - lo) / (hi - lo)
			}
		}
		depthScore := 0.0
		if p.Quantity > 0 {
			depthScore = liq.depth(p.Side) / p.Quantity
			if depthScore > 1 {
				depthScore = 1
			}
		}
		score := 0.4*priceScore + 0.3*depthScore + 0.2*r.successRate(liq.Venue) + 0.1*assumedFeeScore
		ranked = append(ranked, scored{liq, score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	venues := 3
	if p.Urgency == UrgencyHigh || p.Urgency == UrgencyCritical {
		venues = 2
	}
	if len(ranked) > venues {
		ranked = ranked[:venues]
	}

	total := 0.0
	for _, s := range ranked {
		total += s.score
	}
	if total <= 0 {
		return nil
	}

	var frags []OrderFragment
	for i, s := range ranked {
		qty := p.Quantity * s.score / total
		if limit := s.liq.topSize(p.Side) * balancedTopCap; qty > limit {
			qty = limit
		}
		if qty <= 0 {
			continue
		}
		frags = append(frags, r.fragment(s.liq, p, qty, i))
	}
	return frags
}
