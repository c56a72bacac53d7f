package adapters

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/peercall/signaling/internal/app"
	"github.com/peercall/signaling/internal/config"
)

// ClientTokenMiddleware tags browsers with a long-lived cookie token.
// Informational only: connection ids come from the transport, never from
// this cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires HTTP routes (REST + WS) with the orchestrator.
// - Static files are served from cfg.StaticPath.
// - REST is under /api/*
// - WebSocket upgrade lives at /ws
func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("PeerCallSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	// POST /api/create-room — mint a fresh room
	api.POST("/create-room", func(c *gin.Context) {
		roomID := orch.CreateRoom()
		c.JSON(http.StatusOK, gin.H{"roomId": roomID})
	})

	// GET /api/room/:roomId — existence lookup for the join screen
	api.GET("/room/:roomId", func(c *gin.Context) {
		st := orch.RoomExists(c.Param("roomId"))
		if !st.Exists {
			c.JSON(http.StatusOK, gin.H{"exists": false})
			return
		}
		c.JSON(http.StatusOK, st)
	})

	// GET /api/debug/rooms — introspection, counters included
	api.GET("/debug/rooms", func(c *gin.Context) {
		rooms := orch.DebugSnapshot()
		c.JSON(http.StatusOK, gin.H{"rooms": rooms, "totalRooms": len(rooms)})
	})

	// GET /api/config/ice — STUN/TURN servers for the client's RTCPeerConnection
	api.GET("/config/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": cfg.WebRTCICEServers()})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, orch.HealthSummary())
	})

	ctl := &SignalWSController{
		Orch:       orch,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	return r
}
