package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"execution-core/internal/events"
	"execution-core/internal/gateway"
	"execution-core/internal/ledger"
)

// Options configures a Coordinator.
type Options struct {
	Gateway   gateway.ExchangeGateway
	Risk      gateway.RiskAssessor
	Positions gateway.PositionDataSource // optional; hydrates ledger at session start
	Bus       *events.Bus                // optional
	Ledger    *ledger.Ledger

	MainInterval     time.Duration // default 1s
	MonitorInterval  time.Duration // default 30s
	BatchSize        int           // signals drained per tick, default 10
	SessionRetention time.Duration // default 24h
}

// Coordinator owns trading sessions, serializes signal execution through a
// single consumer loop, mutates the position ledger, and manages the
// stop-loss/take-profit lifecycle.
type Coordinator struct {
	gw        gateway.ExchangeGateway
	risk      gateway.RiskAssessor
	positions gateway.PositionDataSource
	bus       *events.Bus
	ledger    *ledger.Ledger

	mainInterval    time.Duration
	monitorInterval time.Duration
	batchSize       int
	retention       time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	queue    *signalQueue

	statsMu  sync.RWMutex
	executed uint64
	failed   uint64

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewCoordinator builds an engine; Start must be called before signals flow.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("engine: gateway is required")
	}
	if opts.Risk == nil {
		return nil, fmt.Errorf("engine: risk assessor is required")
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.New()
	}
	if opts.MainInterval <= 0 {
		opts.MainInterval = time.Second
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.SessionRetention <= 0 {
		opts.SessionRetention = 24 * time.Hour
	}
	return &Coordinator{
		gw:              opts.Gateway,
		risk:            opts.Risk,
		positions:       opts.Positions,
		bus:             opts.Bus,
		ledger:          opts.Ledger,
		mainInterval:    opts.MainInterval,
		monitorInterval: opts.MonitorInterval,
		batchSize:       opts.BatchSize,
		retention:       opts.SessionRetention,
		sessions:        make(map[string]*Session),
		queue:           newSignalQueue(),
	}, nil
}

// Ledger exposes the position ledger for read-only consumers.
func (c *Coordinator) Ledger() *ledger.Ledger {
	return c.ledger
}

// Start spawns the main and monitoring loops. Fails if already running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return fmt.Errorf("engine already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.wg.Add(2)
	go c.mainLoop(runCtx)
	go c.monitorLoop(runCtx)
	log.Printf("engine: started (tick=%s monitor=%s batch=%d)", c.mainInterval, c.monitorInterval, c.batchSize)
	return nil
}

// Stop cancels both loops, waits for them to exit, then stops every
// non-terminal session (cancelling its open orders).
func (c *Coordinator) Stop(ctx context.Context) {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.runMu.Unlock()

	c.wg.Wait()

	for _, s := range c.sessionIDsByStatus(StatusActive, StatusPaused) {
		c.StopSession(ctx, s)
	}
	log.Println("engine: stopped")
}

// IsRunning reports whether the loops are live.
func (c *Coordinator) IsRunning() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.running
}

// CreateSession allocates a new idle session and a zeroed position per symbol.
func (c *Coordinator) CreateSession(p CreateParams) (string, error) {
	if p.UserID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if p.Exchange == "" {
		return "", fmt.Errorf("exchange is required")
	}
	if len(p.Symbols) == 0 {
		return "", fmt.Errorf("at least one symbol is required")
	}
	for _, sym := range p.Symbols {
		if sig := (&Signal{Quantity: 1, Type: SignalBuy, Symbol: sym}).validate(); sig != "" {
			return "", fmt.Errorf("invalid symbol %q", sym)
		}
	}
	if p.Mode == "" {
		p.Mode = ModeManual
	}
	if p.MaxDailyTrades <= 0 {
		p.MaxDailyTrades = 100
	}
	if p.MaxOpenPositions <= 0 {
		p.MaxOpenPositions = 10
	}

	s := &Session{
		ID:                 uuid.NewString(),
		UserID:             p.UserID,
		Exchange:           p.Exchange,
		Symbols:            append([]string(nil), p.Symbols...),
		StrategyID:         p.StrategyID,
		Status:             StatusInactive,
		Mode:               p.Mode,
		MaxDailyTrades:     p.MaxDailyTrades,
		MaxOpenPositions:   p.MaxOpenPositions,
		StopLossEnabled:    p.StopLossEnabled,
		TakeProfitEnabled:  p.TakeProfitEnabled,
		OpenOrderIDs:       make(map[string]string),
		ProtectiveOrderIDs: make(map[string]string),
		CreatedAt:          time.Now(),
	}

	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()

	for _, sym := range s.Symbols {
		c.ledger.Ensure(ledger.Key{UserID: s.UserID, Exchange: s.Exchange, Symbol: sym})
	}

	c.publishSessionState(s)
	log.Printf("engine: session %s created for user %s on %s %v", s.ID, s.UserID, s.Exchange, s.Symbols)
	return s.ID, nil
}

// StartSession runs the emergency-stop pre-check, hydrates positions from the
// external source, and activates the session. Returns false (with the session
// in ERROR state carrying the reason) when the risk check fails.
func (c *Coordinator) StartSession(ctx context.Context, sessionID string) bool {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		log.Printf("engine: start: unknown session %s", sessionID)
		return false
	}

	triggered, reason, err := c.risk.EmergencyStopCheck(ctx, s.UserID)
	if err != nil {
		c.setSessionError(s, fmt.Sprintf("risk check failed: %v", err))
		return false
	}
	if triggered {
		c.setSessionError(s, "emergency stop active: "+reason)
		return false
	}

	if c.positions != nil {
		c.hydratePositions(ctx, s)
	}

	c.mu.Lock()
	s.Status = StatusActive
	s.ErrorMessage = ""
	s.StartedAt = time.Now()
	c.mu.Unlock()

	c.publishSessionState(s)
	log.Printf("engine: session %s active", s.ID)
	return true
}

// PauseSession moves an active session to PAUSED.
func (c *Coordinator) PauseSession(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok || s.Status != StatusActive {
		return false
	}
	s.Status = StatusPaused
	return true
}

// StopSession cancels tracked orders best-effort and marks the session
// STOPPED. Cancellation failures never block the transition.
func (c *Coordinator) StopSession(ctx context.Context, sessionID string) bool {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok || s.Status == StatusStopped || s.Status == StatusStopping {
		c.mu.Unlock()
		return false
	}
	s.Status = StatusStopping
	tracked := make(map[string]string, len(s.OpenOrderIDs)+len(s.ProtectiveOrderIDs))
	for id, sym := range s.OpenOrderIDs {
		tracked[id] = sym
	}
	for id, sym := range s.ProtectiveOrderIDs {
		tracked[id] = sym
	}
	c.mu.Unlock()

	for id, sym := range tracked {
		if err := c.gw.CancelOrder(ctx, s.UserID, s.Exchange, id, sym); err != nil {
			// Best-effort: a failed cancel never blocks the STOPPED transition.
			log.Printf("engine: session %s cancel order %s: %v", s.ID, id, err)
		}
	}

	c.mu.Lock()
	s.OpenOrderIDs = make(map[string]string)
	s.ProtectiveOrderIDs = make(map[string]string)
	s.Status = StatusStopped
	s.StoppedAt = time.Now()
	c.mu.Unlock()

	c.publishSessionState(s)
	log.Printf("engine: session %s stopped", s.ID)
	return true
}

// SubmitSignal validates the signal and enqueues it. Never blocks on
// execution; returns false on structural problems or when no matching ACTIVE
// session exists.
func (c *Coordinator) SubmitSignal(sig *Signal) bool {
	if sig == nil {
		return false
	}
	if reason := sig.validate(); reason != "" {
		log.Printf("engine: signal rejected: %s", reason)
		c.publish(events.EventSignalRejected, reason)
		return false
	}
	if c.findActiveSession(sig.UserID, sig.Exchange, sig.Symbol) == nil {
		log.Printf("engine: signal rejected: no active session for user %s on %s %s",
			sig.UserID, sig.Exchange, sig.Symbol)
		c.publish(events.EventSignalRejected, "no active session")
		return false
	}

	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now()
	}
	c.queue.Push(sig)
	c.publish(events.EventSignalQueued, *sig)
	return true
}

// Sessions returns snapshots of all sessions, optionally filtered by user.
func (c *Coordinator) Sessions(userID string) []Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		if userID != "" && s.UserID != userID {
			continue
		}
		out = append(out, s.snapshot())
	}
	return out
}

// Session returns a snapshot of one session.
func (c *Coordinator) Session(id string) (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Stats aggregates engine counters.
func (c *Coordinator) Stats() Stats {
	c.statsMu.RLock()
	executed, failed := c.executed, c.failed
	c.statsMu.RUnlock()

	total := executed + failed
	rate := 0.0
	if total > 0 {
		rate = float64(executed) / float64(total)
	}

	c.mu.RLock()
	active := 0
	for _, s := range c.sessions {
		if s.Status == StatusActive {
			active++
		}
	}
	c.mu.RUnlock()

	return Stats{
		Running:         c.IsRunning(),
		ActiveSessions:  active,
		QueuedSignals:   c.queue.Len(),
		SignalsExecuted: executed,
		SignalsFailed:   failed,
		SuccessRate:     rate,
		OpenPositions:   len(c.ledger.NonFlat()),
		UnrealizedPnL:   c.ledger.AggregateUnrealizedPnL(),
	}
}

// --- internals ---

func (c *Coordinator) hydratePositions(ctx context.Context, s *Session) {
	records, err := c.positions.GetCurrentPositions(ctx, s.UserID, s.Exchange)
	if err != nil {
		// Hydration is best-effort; the ledger stays zeroed on failure.
		log.Printf("engine: session %s position hydration failed: %v", s.ID, err)
		return
	}
	for _, rec := range records {
		if !s.hasSymbol(rec.Symbol) {
			continue
		}
		c.ledger.Hydrate(ledger.Key{UserID: s.UserID, Exchange: s.Exchange, Symbol: rec.Symbol}, rec)
	}
}

func (c *Coordinator) findActiveSession(userID, exchange, symbol string) *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.sessions {
		if s.UserID == userID && s.Exchange == exchange && s.Status == StatusActive && s.hasSymbol(symbol) {
			return s
		}
	}
	return nil
}

func (c *Coordinator) setSessionError(s *Session, msg string) {
	c.mu.Lock()
	s.Status = StatusError
	s.ErrorMessage = msg
	c.mu.Unlock()
	c.publishSessionState(s)
	log.Printf("engine: session %s error: %s", s.ID, msg)
}

func (c *Coordinator) sessionIDsByStatus(statuses ...SessionStatus) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, s := range c.sessions {
		for _, st := range statuses {
			if s.Status == st {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

func (c *Coordinator) publishSessionState(s *Session) {
	c.mu.RLock()
	snap := s.snapshot()
	c.mu.RUnlock()
	c.publish(events.EventSessionState, snap)
}

func (c *Coordinator) publish(e events.Event, payload any) {
	if c.bus != nil {
		c.bus.Publish(e, payload)
	}
}

func (c *Coordinator) markExecuted() {
	c.statsMu.Lock()
	c.executed++
	c.statsMu.Unlock()
}

func (c *Coordinator) markFailed() {
	c.statsMu.Lock()
	c.failed++
	c.statsMu.Unlock()
}
