package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/middleware"
)

// NewRouter assembles the ops HTTP surface. Read endpoints are open; the
// admin group is guarded by the shared ops key.
func NewRouter(ops *OpsHandler, opsKey string) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/entities", ops.ListEntities)
	router.GET("/entities/:symbol", ops.GetEntity)
	router.GET("/watermarks/:dataset/summary", ops.GetSummary)
	router.GET("/watermarks/:dataset/candidates", ops.ListCandidates)

	admin := router.Group("/admin", middleware.RequireAPIKey(opsKey))
	admin.POST("/sync-universe", ops.SyncUniverse)
	admin.POST("/watermarks/:dataset/reset-failed", ops.ResetFailed)
	admin.POST("/watermarks/:dataset/:symbol/eligible", ops.SetEligible)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}
