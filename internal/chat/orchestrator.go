package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/kel/internal/ai"
	"github.com/suPer8Hu/kel/internal/common"
)

// Streamer is the model gateway as seen by the orchestrator.
type Streamer interface {
	Stream(ctx context.Context, messages []ai.Message) (<-chan ai.StreamEvent, <-chan error)
}

// Screenshotter returns the desktop as base64 PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context) (string, error)
}

type TurnRequest struct {
	ConversationID uint64 // zero starts a new conversation
	Prompt         string
	DesktopContext bool
}

type Turn struct {
	ConversationID uint64 `json:"conversation_id"`
	TurnID         string `json:"turn_id"`
}

type Status struct {
	Generating     bool   `json:"generating"`
	ConversationID uint64 `json:"conversation_id,omitempty"`
	TurnID         string `json:"turn_id,omitempty"`
}

// streamSession is the single in-flight generation.
type streamSession struct {
	id     string
	convID uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Orchestrator drives one chat turn at a time from prompt to persisted reply.
type Orchestrator struct {
	repo    *Repo
	gateway Streamer
	events  *Broadcaster
	capture Screenshotter
	titles  TitleQueue

	mu     sync.Mutex
	active *streamSession
	last   *streamSession
	wg     sync.WaitGroup
}

type Option func(*Orchestrator)

// WithCapture enables desktop context for turns that request it.
func WithCapture(s Screenshotter) Option {
	return func(o *Orchestrator) { o.capture = s }
}

// WithTitleQueue refines titles after a conversation's first reply.
func WithTitleQueue(q TitleQueue) Option {
	return func(o *Orchestrator) { o.titles = q }
}

func NewOrchestrator(repo *Repo, gateway Streamer, events *Broadcaster, opts ...Option) *Orchestrator {
	o := &Orchestrator{repo: repo, gateway: gateway, events: events}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartTurn persists the prompt (creating the conversation when needed) and
// schedules generation in the background. It fails with ErrBusy, before
// writing anything, while another turn is generating.
func (o *Orchestrator) StartTurn(ctx context.Context, req TurnRequest) (Turn, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Turn{}, common.Invalid("prompt must not be empty")
	}

	s, err := o.reserve(ctx, context.Background())
	if err != nil {
		return Turn{}, err
	}

	user := &Message{Role: RoleUser, Content: req.Prompt}
	if req.ConversationID == 0 {
		conv, err := o.repo.CreateConversation(ctx, TitleFromPrompt(req.Prompt), user)
		if err != nil {
			o.release(s)
			return Turn{}, err
		}
		o.bind(s, conv.ID)
	} else {
		user.ConversationID = req.ConversationID
		if err := o.repo.InsertMessage(ctx, user); err != nil {
			o.release(s)
			return Turn{}, err
		}
		o.bind(s, req.ConversationID)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_ = o.run(s, req.DesktopContext)
	}()

	return Turn{ConversationID: s.convID, TurnID: s.id}, nil
}

// Generate answers the conversation's current history and blocks until the
// turn ends. Cancellation is not an error; provider and configuration
// failures are returned.
func (o *Orchestrator) Generate(ctx context.Context, conversationID uint64, desktopContext bool) error {
	s, err := o.reserve(ctx, ctx)
	if err != nil {
		return err
	}
	if _, err := o.repo.GetConversation(ctx, conversationID); err != nil {
		o.release(s)
		return err
	}
	o.bind(s, conversationID)

	o.wg.Add(1)
	defer o.wg.Done()
	return o.run(s, desktopContext)
}

// AbortCurrent cancels the in-flight turn and returns at once; the turn saves
// its partial text in the background. It reports whether a turn was active.
func (o *Orchestrator) AbortCurrent() bool {
	o.mu.Lock()
	s := o.active
	o.active = nil
	var convID uint64
	if s != nil {
		convID = s.convID
	}
	o.mu.Unlock()

	if s == nil {
		return false
	}
	s.cancel()
	log.Printf("chat_abort turn=%s conversation=%d", s.id, convID)
	return true
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Status{}
	}
	return Status{Generating: true, ConversationID: o.active.convID, TurnID: o.active.id}
}

// Wait blocks until every background turn has finished persisting.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown aborts the current turn and waits for it to persist, or for ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.AbortCurrent()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reserve claims the single-flight slot. When the previous turn was aborted
// and is still saving, it waits for that turn so history stays in turn order.
func (o *Orchestrator) reserve(ctx, parent context.Context) (*streamSession, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	sctx, cancel := context.WithCancel(parent)
	s := &streamSession{id: id, ctx: sctx, cancel: cancel, done: make(chan struct{})}
	prev := o.last
	o.active = s
	o.last = s
	o.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			o.release(s)
			return nil, ctx.Err()
		}
	}
	return s, nil
}

func (o *Orchestrator) bind(s *streamSession, convID uint64) {
	o.mu.Lock()
	s.convID = convID
	o.mu.Unlock()
}

// release ends s: the slot is freed if s still holds it. Safe to call twice.
func (o *Orchestrator) release(s *streamSession) {
	s.once.Do(func() {
		o.mu.Lock()
		if o.active == s {
			o.active = nil
		}
		o.mu.Unlock()
		s.cancel()
		close(s.done)
	})
}

// run frees the slot before the terminal event goes out, so a subscriber may
// start the next turn from its finish handler.
func (o *Orchestrator) run(s *streamSession, desktopContext bool) error {
	defer o.release(s)

	start := time.Now()
	final, err := o.generate(s, desktopContext)
	if err != nil {
		log.Printf("chat_turn_failed turn=%s conversation=%d cost=%s err=%v", s.id, s.convID, time.Since(start), err)
		final = Event{ConversationID: s.convID, TurnID: s.id, Kind: KindError, Message: err.Error()}
	}
	o.release(s)
	o.events.Publish(final)
	return err
}

func (o *Orchestrator) generate(s *streamSession, desktopContext bool) (Event, error) {
	// rows written after an abort must still land
	store := context.WithoutCancel(s.ctx)

	history, err := o.repo.ListMessages(s.ctx, s.convID)
	if err != nil {
		if s.ctx.Err() != nil {
			return o.finishCancelled(store, s, "")
		}
		return Event{}, fmt.Errorf("load history: %w", err)
	}
	firstReply := !hasAssistant(history)

	msgs := toProviderMessages(history)
	if desktopContext && o.capture != nil {
		img, err := o.capture.Screenshot(s.ctx)
		if err != nil {
			log.Printf("chat_capture_failed turn=%s conversation=%d err=%v", s.id, s.convID, err)
		} else {
			attachToLastUser(msgs, img)
		}
	}

	events, errs := o.gateway.Stream(s.ctx, msgs)

	var buf strings.Builder
	var finish *ai.StreamEvent
	stopped := false
	for ev := range events {
		if s.ctx.Err() != nil {
			stopped = true
			break
		}
		switch ev.Type {
		case ai.EventTextDelta:
			if ev.Text == "" {
				continue
			}
			buf.WriteString(ev.Text)
			o.events.Publish(Event{ConversationID: s.convID, TurnID: s.id, Kind: KindTextDelta, Text: ev.Text})
		case ai.EventFinish:
			f := ev
			finish = &f
		}
	}
	streamErr := <-errs

	// an abort that lands after the provider's last event still counts
	switch {
	case stopped || s.ctx.Err() != nil:
		return o.finishCancelled(store, s, buf.String())
	case streamErr == nil:
		return o.finishCompleted(store, s, buf.String(), finish, firstReply)
	default:
		return Event{}, streamErr
	}
}

func (o *Orchestrator) finishCompleted(ctx context.Context, s *streamSession, text string, finish *ai.StreamEvent, firstReply bool) (Event, error) {
	reply := &Message{ConversationID: s.convID, Role: RoleAssistant, Content: text}
	if err := o.repo.InsertMessage(ctx, reply); err != nil {
		return Event{}, fmt.Errorf("save reply: %w", err)
	}

	ev := Event{ConversationID: s.convID, TurnID: s.id, Kind: KindFinish, FinishReason: ai.FinishStop, Usage: &ai.Usage{}, MessageID: reply.ID}
	if finish != nil {
		if finish.FinishReason != "" {
			ev.FinishReason = finish.FinishReason
		}
		usage := finish.Usage
		ev.Usage = &usage
	}

	if firstReply && o.titles != nil {
		if err := o.titles.EnqueueTitle(ctx, s.convID); err != nil {
			log.Printf("title_enqueue_failed conversation=%d err=%v", s.convID, err)
		}
	}
	return ev, nil
}

// finishCancelled keeps whatever was streamed before the abort and always
// emits a finish so subscribers leave the generating state.
func (o *Orchestrator) finishCancelled(ctx context.Context, s *streamSession, text string) (Event, error) {
	ev := Event{ConversationID: s.convID, TurnID: s.id, Kind: KindFinish, FinishReason: ai.FinishStop, Usage: &ai.Usage{}}
	if text != "" {
		partial := &Message{ConversationID: s.convID, Role: RoleAssistant, Content: text}
		if err := o.repo.InsertMessage(ctx, partial); err != nil {
			return Event{}, fmt.Errorf("save partial reply: %w", err)
		}
		ev.MessageID = partial.ID
	}
	return ev, nil
}

func toProviderMessages(history []Message) []ai.Message {
	out := make([]ai.Message, 0, len(history))
	for _, m := range history {
		pm := ai.Message{Role: m.Role, Content: m.Content}
		if m.Image != nil && *m.Image != "" {
			pm.Images = []string{*m.Image}
		}
		out = append(out, pm)
	}
	return out
}

func attachToLastUser(msgs []ai.Message, img string) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == ai.RoleUser {
			msgs[i].Images = append(msgs[i].Images, img)
			return
		}
	}
}

func hasAssistant(history []Message) bool {
	for _, m := range history {
		if m.Role == RoleAssistant {
			return true
		}
	}
	return false
}
