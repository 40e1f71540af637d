package gateway

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Retrier applies a bounded retry-with-backoff policy and a per-attempt
// timeout to gateway calls. The upstream design had neither; indefinite hangs
// are treated as hard timeout errors here.
type Retrier struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetrier matches the config defaults.
func DefaultRetrier() Retrier {
	return Retrier{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// Do runs fn with the retry policy. The last error is returned verbatim so
// callers can convert it into a structured result at the boundary.
func (r Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := r.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.AttemptTimeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < attempts {
			log.Printf("gateway: %s attempt %d/%d failed: %v", op, attempt, attempts, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if r.MaxDelay > 0 && delay > r.MaxDelay {
				delay = r.MaxDelay
			}
		}
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

// retryingGateway decorates an ExchangeGateway with a Retrier.
type retryingGateway struct {
	inner ExchangeGateway
	r     Retrier
}

// WithRetry wraps gw so every call goes through the retry policy.
func WithRetry(gw ExchangeGateway, r Retrier) ExchangeGateway {
	return &retryingGateway{inner: gw, r: r}
}

func (g *retryingGateway) GetCurrentPrice(ctx context.Context, venue, symbol string) (float64, error) {
	var price float64
	err := g.r.Do(ctx, "get_current_price", func(ctx context.Context) error {
		var err error
		price, err = g.inner.GetCurrentPrice(ctx, venue, symbol)
		return err
	})
	return price, err
}

func (g *retryingGateway) GetOrderBook(ctx context.Context, venue, symbol string, depth int) (OrderBook, error) {
	var book OrderBook
	err := g.r.Do(ctx, "get_orderbook", func(ctx context.Context) error {
		var err error
		book, err = g.inner.GetOrderBook(ctx, venue, symbol, depth)
		return err
	})
	return book, err
}

func (g *retryingGateway) GetTicker(ctx context.Context, venue, symbol string) (Ticker, error) {
	var t Ticker
	err := g.r.Do(ctx, "get_ticker", func(ctx context.Context) error {
		var err error
		t, err = g.inner.GetTicker(ctx, venue, symbol)
		return err
	})
	return t, err
}

func (g *retryingGateway) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	// Order placement is not retried blindly: a timed-out attempt may have
	// reached the venue. Only the per-attempt timeout applies.
	single := g.r
	single.MaxAttempts = 1
	var res OrderResult
	err := single.Do(ctx, "place_order", func(ctx context.Context) error {
		var err error
		res, err = g.inner.PlaceOrder(ctx, req)
		return err
	})
	return res, err
}

func (g *retryingGateway) CancelOrder(ctx context.Context, userID, venue, orderID, symbol string) error {
	return g.r.Do(ctx, "cancel_order", func(ctx context.Context) error {
		return g.inner.CancelOrder(ctx, userID, venue, orderID, symbol)
	})
}

func (g *retryingGateway) PlaceStopOrder(ctx context.Context, req ProtectiveOrderRequest) (string, error) {
	var id string
	err := g.r.Do(ctx, "place_stop_order", func(ctx context.Context) error {
		var err error
		id, err = g.inner.PlaceStopOrder(ctx, req)
		return err
	})
	return id, err
}

func (g *retryingGateway) PlaceLimitOrder(ctx context.Context, req ProtectiveOrderRequest) (string, error) {
	var id string
	err := g.r.Do(ctx, "place_limit_order", func(ctx context.Context) error {
		var err error
		id, err = g.inner.PlaceLimitOrder(ctx, req)
		return err
	})
	return id, err
}
