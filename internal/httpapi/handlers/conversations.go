package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/kel/internal/chat"
	"github.com/suPer8Hu/kel/internal/common"
)

func (h *Handler) ListConversations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	convs, err := h.ChatSvc.ListConversations(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"conversations": convs})
}

func (h *Handler) GetConversation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	conv, err := h.ChatSvc.GetConversation(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, conv)
}

type renameConversationReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) RenameConversation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req renameConversationReq
	if !bindJSON(c, &req) {
		return
	}
	conv, err := h.ChatSvc.RenameConversation(c.Request.Context(), id, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, conv)
}

// DeleteConversation refuses while the conversation has a turn in flight.
func (h *Handler) DeleteConversation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if st := h.Orchestrator.Status(); st.Generating && st.ConversationID == id {
		common.Fail(c, http.StatusConflict, 40901, "conversation is generating, abort it first")
		return
	}
	if err := h.ChatSvc.DeleteConversation(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": id})
}

func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) CreateMessage(c *gin.Context) {
	var req chat.CreateMessageInput
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.ChatSvc.CreateMessage(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, m)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.ChatSvc.DeleteMessage(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": id})
}
