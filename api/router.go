package api

import (
	"docwebapi/config"
	"docwebapi/task"

	"github.com/gin-gonic/gin"
)

func SetupRouter(tm *task.Manager, cfg *config.Config) *gin.Engine {
	r := gin.Default()
	if cfg.MaxInputSize > 0 {
		r.MaxMultipartMemory = cfg.MaxInputSize
	}
	h := NewHandler(tm, cfg)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		// Single file, answered synchronously
		v1.POST("/convert", h.handleConvert)

		// Async batch endpoints
		v1.POST("/batches", h.handleCreateBatch)
		v1.GET("/tasks", h.handleListTasks)
		v1.GET("/tasks/:taskId", h.handleGetTaskStatus)
		v1.PATCH("/tasks/:taskId/cancel", h.handleCancelTask)

		// Per-job and batch archives
		v1.GET("/files/:taskId/:filename", h.handleGetFile)
	}
	return r
}
