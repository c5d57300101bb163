package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/kel/internal/common"
	"github.com/suPer8Hu/kel/internal/folders"
)

func (h *Handler) ListFolders(c *gin.Context) {
	out, err := h.Folders.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"folders": out})
}

func (h *Handler) CreateFolder(c *gin.Context) {
	var req folders.CreateInput
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.Folders.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, f)
}

func (h *Handler) UpdateFolder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req folders.UpdateInput
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.Folders.Update(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, f)
}

func (h *Handler) DeleteFolder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Folders.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": id})
}

func (h *Handler) TouchFolder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f, err := h.Folders.Touch(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, f)
}
