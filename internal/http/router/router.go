package router

import (
	"github.com/gin-gonic/gin"

	"actcollective.org/momentum/internal/http/handler"
)

func SetupRoutes(router *gin.Engine, runs *handler.RunHandler, snapshots *handler.SnapshotHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/runs", runs.Trigger)
		v1.GET("/snapshots", snapshots.List)
	}
}
