// Package http wires the gin router: the websocket signal endpoint and the
// thin class-lifecycle endpoints around it.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/classpad/liveclass/internal/adapters/signal"
	"github.com/classpad/liveclass/internal/app"
	"github.com/classpad/liveclass/internal/config"
	"github.com/classpad/liveclass/internal/core"
	"github.com/classpad/liveclass/internal/domain"
)

// ParticipantTokenMiddleware issues a stable participant token cookie so a
// reconnecting browser keeps the same participant id without authenticating.
func ParticipantTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("pt")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("pt", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("participant_token", token)
		c.Next()
	}
}

// ConnIDMiddleware mints the connection handle: unique per live connection,
// never reused across reconnects.
func ConnIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("conn_id", uuid.NewString())
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator, records core.ClassRecords, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LiveClassSessions", store))
	r.Use(ParticipantTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", ConnIDMiddleware(), func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("conn_id")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, coord.Registry.List())
	})

	api.POST("/class/:code/start", func(c *gin.Context) {
		code := domain.RoomID(c.Param("code"))
		if err := records.MarkLive(code); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": string(domain.ClassLive)})
	})

	api.POST("/class/:code/end", func(c *gin.Context) {
		code := domain.RoomID(c.Param("code"))
		if err := records.MarkEnded(code); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
			return
		}
		coord.CloseRoom(code)
		c.JSON(http.StatusOK, gin.H{"status": string(domain.ClassEnded)})
	})

	return r
}
