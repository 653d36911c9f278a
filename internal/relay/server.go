// Package relay implements the pairing and signaling relay server: the
// connection registry, the matchmaking queue, and the partner-addressed
// message router, exposed over a single WebSocket endpoint.
package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/neetil/vibe/internal/config"
	"github.com/neetil/vibe/internal/protocol"
	"github.com/neetil/vibe/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by the router middleware.
		return true
	},
}

// Server wires the registry, matcher, and relay behind a gin router.
type Server struct {
	cfg      *config.Server
	registry *Registry
	matcher  *Matcher
	relay    *Relay
	router   *gin.Engine
}

// NewServer assembles a ready-to-serve relay server from cfg.
func NewServer(cfg *config.Server) *Server {
	s := &Server{
		cfg:      cfg,
		registry: NewRegistry(),
	}
	s.matcher = NewMatcher(s)
	s.relay = NewRelay(s.matcher, s.registry)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(OriginFilter(cfg.AllowedOrigins))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "participants": s.registry.Len()})
	})
	router.GET("/ws", s.handleWS)
	s.router = router

	return s
}

// Handler exposes the router for serving and for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleWS upgrades the connection, admits the participant, and starts
// its read/write pumps. The participant id is server-assigned and never
// leaves the process; clients are anonymous to each other.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		util.LogWarning("relay: upgrade failed: %v", err)
		return
	}

	client := newClient(uuid.New().String(), conn)
	s.registry.Admit(client)
	util.LogInfo("relay: %s connected (%d online)", client.ID, s.registry.Len())

	go client.writePump()
	go client.readPump(s)
}

// drop tears down a departed client: deregister first so no further
// message can be routed to it, then release its pairing state.
func (s *Server) drop(c *Client) {
	if s.registry.Remove(c.ID) == nil {
		return // already dropped
	}
	s.matcher.Disconnect(c.ID)
	c.close()
	util.LogInfo("relay: %s disconnected (%d online)", c.ID, s.registry.Len())
}

// ---------------------------------------------------------------------------
// Events — lifecycle notifications emitted by the Matcher
// ---------------------------------------------------------------------------

func (s *Server) Paired(id string, role protocol.Role) {
	s.registry.Send(id, &protocol.Message{Type: protocol.MsgTypePaired, Role: role})
}

func (s *Server) Waiting(id string) {
	s.registry.Send(id, &protocol.Message{Type: protocol.MsgTypeWaiting})
}

func (s *Server) PartnerLeft(id string) {
	s.registry.Send(id, &protocol.Message{Type: protocol.MsgTypePartnerLeft})
}

func (s *Server) PartnerSkipped(id string) {
	s.registry.Send(id, &protocol.Message{Type: protocol.MsgTypePartnerSkipped})
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// OriginFilter rejects browser connections from origins outside the
// allow-list. An empty allow-list permits every origin (development),
// and requests without an Origin header (native clients) always pass.
func OriginFilter(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || len(allowedOrigins) == 0 {
			c.Next()
			return
		}

		for _, allowed := range allowedOrigins {
			if origin == allowed {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
	}
}
