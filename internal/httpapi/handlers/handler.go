package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/kel/internal/ai"
	"github.com/suPer8Hu/kel/internal/chat"
	"github.com/suPer8Hu/kel/internal/common"
	"github.com/suPer8Hu/kel/internal/folders"
	"github.com/suPer8Hu/kel/internal/httpapi/middleware"
	"github.com/suPer8Hu/kel/internal/settings"
)

type Handler struct {
	Orchestrator *chat.Orchestrator
	ChatSvc      *chat.Service
	Events       *chat.Broadcaster
	Settings     *settings.Store
	Folders      *folders.Repo
}

func NewHandler(orch *chat.Orchestrator, chatSvc *chat.Service, events *chat.Broadcaster, st *settings.Store, fr *folders.Repo) *Handler {
	return &Handler{
		Orchestrator: orch,
		ChatSvc:      chatSvc,
		Events:       events,
		Settings:     st,
		Folders:      fr,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// writeError maps domain errors onto the response envelope.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 10001, err.Error())
	case errors.Is(err, common.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, err.Error())
	case errors.Is(err, chat.ErrBusy):
		common.Fail(c, http.StatusConflict, 40901, err.Error())
	case errors.Is(err, common.ErrConflict):
		common.Fail(c, http.StatusConflict, 40902, err.Error())
	case errors.Is(err, ai.ErrNotConfigured):
		common.Fail(c, http.StatusPreconditionFailed, 41201, "api key is not configured")
	default:
		log.Printf("[%s %s] request_id=%s err=%v", c.Request.Method, c.FullPath(), middleware.RequestIDFrom(c), err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return false
	}
	return true
}
