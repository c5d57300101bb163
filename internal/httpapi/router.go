package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/kel/internal/common"
	"github.com/suPer8Hu/kel/internal/httpapi/handlers"
	"github.com/suPer8Hu/kel/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// turns
	r.POST("/chat/start", h.StartChat)
	r.POST("/chat/abort", h.AbortChat)
	r.GET("/chat/status", h.ChatStatus)
	r.GET("/chat/events", h.ChatEvents)

	// history
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:id", h.GetConversation)
	r.PATCH("/conversations/:id", h.RenameConversation)
	r.DELETE("/conversations/:id", h.DeleteConversation)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.POST("/messages", h.CreateMessage)
	r.DELETE("/messages/:id", h.DeleteMessage)

	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)
	r.GET("/models", h.ListModels)

	r.GET("/folders", h.ListFolders)
	r.POST("/folders", h.CreateFolder)
	r.PATCH("/folders/:id", h.UpdateFolder)
	r.DELETE("/folders/:id", h.DeleteFolder)
	r.POST("/folders/:id/touch", h.TouchFolder)
	return r
}
