package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"execution-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamableTopics are the bus events a websocket client may subscribe to.
var streamableTopics = map[string]events.Event{
	"sessions":   events.EventSessionState,
	"signals":    events.EventSignalExecuted,
	"fills":      events.EventOrderFilled,
	"protective": events.EventProtectiveTrigger,
	"alerts":     events.EventRiskAlert,
	"routing":    events.EventRouteDecided,
	"fragments":  events.EventFragmentExecuted,
}

func (s *Server) websocket(c *gin.Context) {
	topic := c.DefaultQuery("topic", "sessions")
	event, ok := streamableTopics[topic]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown topic " + topic})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	stream, unsub := s.Bus.Subscribe(event, 100)
	defer unsub()

	for msg := range stream {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
