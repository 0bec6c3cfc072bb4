// internal/api/route/route.go
//
// Package route registers the gateway's REST endpoints. Unlike the
// teacher's SetupRoutes, there is no auth middleware group here: the
// surface is trusted end to end (spec.md's Non-goals exclude
// authentication).
package route

import (
	"github.com/gin-gonic/gin"

	"s7gateway/internal/api/handler"
)

// SetupRoutes registers the health, read, write and batch endpoints.
func SetupRoutes(router *gin.Engine, plcHandler *handler.PLCHandler) {
	router.Use(gin.Recovery())

	router.GET("/health", plcHandler.Health)

	api := router.Group("/api/plc")
	{
		api.GET("/read", plcHandler.Read)
		api.POST("/write", plcHandler.Write)
		api.POST("/batch", plcHandler.Batch)
	}
}
