package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/kel/internal/common"
	"github.com/suPer8Hu/kel/internal/settings"
)

func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.Settings.Get(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, s)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var p settings.Patch
	if !bindJSON(c, &p) {
		return
	}
	s, err := h.Settings.Update(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, s)
}

func (h *Handler) ListModels(c *gin.Context) {
	common.OK(c, gin.H{"models": settings.SupportedModels})
}
