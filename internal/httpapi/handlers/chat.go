package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/kel/internal/chat"
	"github.com/suPer8Hu/kel/internal/common"
	"github.com/suPer8Hu/kel/internal/httpapi/middleware"
)

const (
	heartbeatInterval = 15 * time.Second
	sseBuffer         = 64
)

// eventSink buffers events for one SSE client. A client whose buffer fills
// is marked lagged and disconnected; it never blocks the publishing turn.
type eventSink struct {
	filter  uint64
	events  chan chat.Event
	lagged  chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func newEventSink(filter uint64, size int) *eventSink {
	return &eventSink{
		filter: filter,
		events: make(chan chat.Event, size),
		lagged: make(chan struct{}),
	}
}

func (s *eventSink) handle(e chat.Event) {
	if s.filter != 0 && e.ConversationID != s.filter {
		return
	}
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
		s.once.Do(func() { close(s.lagged) })
	}
}

type startChatReq struct {
	Prompt         string `json:"prompt"`
	ConversationID uint64 `json:"conversation_id"`
	DesktopContext *bool  `json:"desktop_context"`
}

// StartChat persists the prompt and returns at once; output arrives on
// /chat/events.
func (h *Handler) StartChat(c *gin.Context) {
	var req startChatReq
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	desktop := false
	if req.DesktopContext != nil {
		desktop = *req.DesktopContext
	} else {
		var err error
		if desktop, err = h.Settings.DesktopContext(ctx); err != nil {
			writeError(c, err)
			return
		}
	}

	turn, err := h.Orchestrator.StartTurn(ctx, chat.TurnRequest{
		ConversationID: req.ConversationID,
		Prompt:         req.Prompt,
		DesktopContext: desktop,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, turn)
}

func (h *Handler) AbortChat(c *gin.Context) {
	common.OK(c, gin.H{"aborted": h.Orchestrator.AbortCurrent()})
}

func (h *Handler) ChatStatus(c *gin.Context) {
	common.OK(c, h.Orchestrator.Status())
}

// ChatEvents streams turn events as SSE. conversation_id narrows the stream
// to one conversation.
func (h *Handler) ChatEvents(c *gin.Context) {
	var filter uint64
	if v := c.Query("conversation_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10002, "conversation_id must be a positive integer")
			return
		}
		filter = n
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, 50001, "streaming not supported")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	sink := newEventSink(filter, sseBuffer)
	unsubscribe := h.Events.Subscribe(sink.handle)
	defer unsubscribe()

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			// keep SSE framing intact
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\n", event)
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		flusher.Flush()
	}

	// tell the client the subscription is live
	writeJSON("ready", gin.H{"type": "ready", "status": h.Orchestrator.Status()})

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-sink.events:
			writeJSON(string(e.Kind), e)

		case <-sink.lagged:
			log.Printf("sse_client_lagged request_id=%s dropped=%d", middleware.RequestIDFrom(c), sink.dropped.Load())
			return

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case <-ctx.Done():
			return
		}
	}
}
