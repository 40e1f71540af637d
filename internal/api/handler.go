package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"execution-core/internal/engine"
	"execution-core/internal/events"
	"execution-core/internal/router"
)

// Server wires thin HTTP pass-throughs around the coordinator and router.
type Server struct {
	Engine *gin.Engine
	Bus    *events.Bus
	Coord  *engine.Coordinator
	Router *router.Router
	Meta   SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Venues  []string
	Version string
}

func NewServer(bus *events.Bus, coord *engine.Coordinator, rt *router.Router, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                      // panic recovery first
	r.Use(RequestIDMiddleware())               // request id tracking
	r.Use(RequestLogger())                     // request logging, after the id is set
	r.Use(RateLimitMiddleware())               // per-IP rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second)) // request timeout
	r.Use(CORSMiddleware())                    // CORS last before routes

	s := &Server{
		Engine: r,
		Bus:    bus,
		Coord:  coord,
		Router: rt,
		Meta:   meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Engine.GET("/health", s.health)
	s.Engine.GET("/ws", s.websocket)

	api := s.Engine.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/stats", s.getStats)

		api.POST("/sessions", s.createSession)
		api.GET("/sessions", s.listSessions)
		api.GET("/sessions/:id", s.getSession)
		api.POST("/sessions/:id/start", s.startSession)
		api.POST("/sessions/:id/pause", s.pauseSession)
		api.POST("/sessions/:id/stop", s.stopSession)

		api.POST("/signals", s.submitSignal)
		api.GET("/positions", s.getPositions)

		api.POST("/orders/route", s.routeOrder)
		api.POST("/orders/execute", s.executeDecision)
		api.GET("/liquidity", s.getLiquidity)
		api.GET("/routing/stats", s.getRoutingStats)
		api.GET("/routing/decisions", s.getRoutingDecisions)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Engine.Run(addr)
}
