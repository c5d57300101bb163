package chat

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/kel/internal/ai"
)

const maxTitleRunes = 150

// TitleFromPrompt derives a conversation title: the prompt verbatim, or its
// first 150 characters followed by "..." when longer.
func TitleFromPrompt(prompt string) string {
	if utf8.RuneCountInString(prompt) <= maxTitleRunes {
		return prompt
	}
	r := []rune(prompt)
	return string(r[:maxTitleRunes]) + "..."
}

// TitleQueue receives conversations whose title should be refined after the
// first finished turn.
type TitleQueue interface {
	EnqueueTitle(ctx context.Context, conversationID uint64) error
}

type Completer interface {
	Complete(ctx context.Context, messages []ai.Message) (string, error)
}

const titleInstruction = "Write a short title of at most six words for the conversation below. " +
	"Reply with the title only, without quotes or punctuation at the end."

// TitleRefiner replaces a conversation's prompt-derived title with a model
// summary, once.
type TitleRefiner struct {
	repo  *Repo
	model Completer
}

func NewTitleRefiner(repo *Repo, model Completer) *TitleRefiner {
	return &TitleRefiner{repo: repo, model: model}
}

func (t *TitleRefiner) Refine(ctx context.Context, conversationID uint64) error {
	conv, err := t.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.TitleRefined {
		return nil
	}
	history, err := t.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return err
	}

	var transcript strings.Builder
	for _, m := range history {
		if m.Role == RoleSystem {
			continue
		}
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
		if m.Role == RoleAssistant {
			break
		}
	}

	out, err := t.model.Complete(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: titleInstruction},
		{Role: ai.RoleUser, Content: transcript.String()},
	})
	if err != nil {
		return err
	}
	title := cleanTitle(out)
	if title == "" {
		return nil
	}
	_, err = t.repo.RefineTitle(ctx, conversationID, title)
	return err
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'` ")
	s = strings.TrimRight(s, ".")
	return TitleFromPrompt(strings.TrimSpace(s))
}

// InlineTitleQueue refines titles in-process when no message broker is
// configured.
type InlineTitleQueue struct {
	refiner *TitleRefiner
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewInlineTitleQueue(refiner *TitleRefiner) *InlineTitleQueue {
	return &InlineTitleQueue{refiner: refiner, timeout: 60 * time.Second}
}

func (q *InlineTitleQueue) EnqueueTitle(ctx context.Context, conversationID uint64) error {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
		defer cancel()
		start := time.Now()
		if err := q.refiner.Refine(cctx, conversationID); err != nil {
			log.Printf("title_refine_failed conversation=%d cost=%s err=%v", conversationID, time.Since(start), err)
		}
	}()
	return nil
}

// Wait blocks until queued refinements finish.
func (q *InlineTitleQueue) Wait() {
	q.wg.Wait()
}
