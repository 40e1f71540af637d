package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"execution-core/internal/api"
	"execution-core/internal/engine"
	"execution-core/internal/events"
	"execution-core/internal/gateway"
	"execution-core/internal/monitor"
	"execution-core/internal/risk"
	"execution-core/internal/router"
	"execution-core/internal/venue"
	"execution-core/pkg/config"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	venues, err := venue.LoadConfig(cfg.VenueConfigPath)
	if err != nil {
		log.Printf("venue config %s unavailable (%v), using built-in universe", cfg.VenueConfigPath, err)
		venues = venue.DefaultUniverse()
	}
	seed := cfg.VenueSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sim := venue.NewSimulator(venues, seed)

	riskCfg := risk.DefaultConfig()
	riskCfg.MaxOrderValue = cfg.MaxOrderValue
	riskCfg.MaxTotalExposure = cfg.MaxTotalExposure
	riskCfg.MaxDailyLoss = cfg.MaxDailyLoss
	assessor := risk.NewAssessor(riskCfg)
	sim.SetRiskAssessor(assessor)

	gw := gateway.WithRetry(sim, gateway.Retrier{
		MaxAttempts:    cfg.GatewayMaxAttempts,
		BaseDelay:      cfg.GatewayBaseDelay,
		MaxDelay:       2 * time.Second,
		AttemptTimeout: cfg.GatewayAttemptTimeout,
	})

	bus := events.NewBus()

	coord, err := engine.NewCoordinator(engine.Options{
		Gateway:          gw,
		Risk:             assessor,
		Bus:              bus,
		MainInterval:     cfg.MainLoopInterval,
		MonitorInterval:  cfg.MonitorLoopInterval,
		BatchSize:        cfg.SignalBatchSize,
		SessionRetention: cfg.SessionRetention,
	})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	rt, err := router.NewRouter(router.Options{
		Gateway:     gw,
		Risk:        assessor,
		Venues:      sim.Venues(),
		Bus:         bus,
		HistorySize: cfg.RoutingHistorySize,
	})
	if err != nil {
		log.Fatalf("router: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	(&monitor.Monitor{Bus: bus}).Start(ctx)

	if err := coord.Start(ctx); err != nil {
		log.Fatalf("engine start: %v", err)
	}

	srv := api.NewServer(bus, coord, rt, api.SystemMeta{Venues: sim.Venues(), Version: version})
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Engine}
	go func() {
		log.Printf("http: listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	coord.Stop(shutdownCtx)
	bus.Close()
	log.Println("bye")
}
