package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"execution-core/internal/engine"
	"execution-core/internal/gateway"
	"execution-core/internal/router"
)

type submitSignalRequest struct {
	UserID     string  `json:"user_id" binding:"required,min=1"`
	StrategyID string  `json:"strategy_id"`
	Exchange   string  `json:"exchange" binding:"required,min=1"`
	Symbol     string  `json:"symbol" binding:"required,min=1"`
	Type       string  `json:"signal_type" binding:"required,oneof=BUY SELL CLOSE"`
	Quantity   float64 `json:"quantity" binding:"gt=0"`
	LimitPrice float64 `json:"limit_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type routeOrderRequest struct {
	UserID     string  `json:"user_id" binding:"required,min=1"`
	Symbol     string  `json:"symbol" binding:"required,min=1"`
	Side       string  `json:"side" binding:"required,oneof=BUY SELL"`
	Quantity   float64 `json:"quantity" binding:"gt=0"`
	LimitPrice float64 `json:"limit_price"`
	Strategy   string  `json:"strategy" binding:"required,min=1"`
	Urgency    string  `json:"urgency"`
}

type executeDecisionRequest struct {
	UserID   string                 `json:"user_id" binding:"required,min=1"`
	Decision router.RoutingDecision `json:"decision" binding:"required"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": s.Coord.IsRunning(),
		"venues":  s.Meta.Venues,
		"version": s.Meta.Version,
	})
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Coord.Stats())
}

func (s *Server) createSession(c *gin.Context) {
	var req engine.CreateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id, err := s.Coord.CreateSession(req)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_session", err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.Coord.Sessions(c.Query("user_id"))})
}

func (s *Server) getSession(c *gin.Context) {
	session, ok := s.Coord.Session(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "not_found", "unknown session")
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) startSession(c *gin.Context) {
	id := c.Param("id")
	if !s.Coord.StartSession(c.Request.Context(), id) {
		// The reason lands on the session's error_message; point the
		// caller at it rather than inventing a second error channel.
		session, ok := s.Coord.Session(id)
		if !ok {
			respondError(c, http.StatusNotFound, "not_found", "unknown session")
			return
		}
		respondError(c, http.StatusConflict, "start_rejected", session.ErrorMessage)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": true})
}

func (s *Server) pauseSession(c *gin.Context) {
	if !s.Coord.PauseSession(c.Param("id")) {
		respondError(c, http.StatusConflict, "pause_rejected", "session not active")
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) stopSession(c *gin.Context) {
	if !s.Coord.StopSession(c.Request.Context(), c.Param("id")) {
		respondError(c, http.StatusConflict, "stop_rejected", "session unknown or already stopped")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

func (s *Server) submitSignal(c *gin.Context) {
	var req submitSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sig := &engine.Signal{
		UserID:     req.UserID,
		StrategyID: req.StrategyID,
		Exchange:   req.Exchange,
		Symbol:     req.Symbol,
		Type:       engine.SignalType(req.Type),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Confidence: req.Confidence,
		Reason:     req.Reason,
	}
	if !s.Coord.SubmitSignal(sig) {
		respondError(c, http.StatusUnprocessableEntity, "signal_rejected",
			"signal failed validation or no active session matches")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "signal_id": sig.ID})
}

func (s *Server) getPositions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": s.Coord.Ledger().UserPositions(userID)})
}

func (s *Server) routeOrder(c *gin.Context) {
	var req routeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	decision, err := s.Router.RouteOrder(c.Request.Context(), router.ParentOrder{
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       gateway.Side(req.Side),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		Strategy:   router.RoutingStrategy(req.Strategy),
		Urgency:    router.Urgency(req.Urgency),
	})
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "routing_rejected", err.Error())
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) executeDecision(c *gin.Context) {
	var req executeDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Decision.Fragments) == 0 {
		respondError(c, http.StatusBadRequest, "invalid_request", "decision has no fragments")
		return
	}
	results := s.Router.ExecuteDecision(c.Request.Context(), req.UserID, req.Decision)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) getLiquidity(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", "symbol is required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"liquidity": s.Router.GatherLiquidity(c.Request.Context(), symbol)})
}

func (s *Server) getRoutingStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Router.Stats())
}

func (s *Server) getRoutingDecisions(c *gin.Context) {
	limit := 50
	if v, ok := c.GetQuery("limit"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": s.Router.Decisions(limit)})
}
