package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"note-sync/internal/config"
	"note-sync/internal/handlers"
	"note-sync/internal/logging"
	"note-sync/internal/middleware"
)

func NewRouter(cfg config.Config, log *logging.Logger, h *handlers.SyncHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	sync := r.Group("/sync")
	sync.Use(middleware.Auth(cfg))
	{
		sync.GET("/pull", h.Pull)
		sync.POST("/push", h.Push)
	}
	return r
}
