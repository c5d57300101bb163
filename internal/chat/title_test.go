package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/kel/internal/ai"
	"github.com/suPer8Hu/kel/internal/db/dbtest"
)

func TestTitleFromPrompt(t *testing.T) {
	assert.Equal(t, "Hi", TitleFromPrompt("Hi"))

	exact := strings.Repeat("x", 150)
	assert.Equal(t, exact, TitleFromPrompt(exact))

	long := strings.Repeat("y", 200)
	assert.Equal(t, strings.Repeat("y", 150)+"...", TitleFromPrompt(long))

	// counts characters, not bytes
	runes := strings.Repeat("é", 151)
	assert.Equal(t, strings.Repeat("é", 150)+"...", TitleFromPrompt(runes))
}

type fakeCompleter struct {
	out  string
	err  error
	seen []ai.Message
	n    int
}

func (c *fakeCompleter) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	c.n++
	c.seen = messages
	return c.out, c.err
}

func seedConversation(t *testing.T, repo *Repo) *Conversation {
	t.Helper()
	ctx := context.Background()
	conv, err := repo.CreateConversation(ctx, "plan my weekend trip to the coast please", &Message{Role: RoleUser, Content: "plan my weekend trip to the coast please"})
	require.NoError(t, err)
	require.NoError(t, repo.InsertMessage(ctx, &Message{ConversationID: conv.ID, Role: RoleAssistant, Content: "Sure! Day one..."}))
	return conv
}

func TestTitleRefiner_RefinesOnce(t *testing.T) {
	repo := NewRepo(dbtest.Open(t, Models()...))
	conv := seedConversation(t, repo)
	model := &fakeCompleter{out: "  \"Coastal Weekend Plan.\"\nextra line"}
	r := NewTitleRefiner(repo, model)
	ctx := context.Background()

	require.NoError(t, r.Refine(ctx, conv.ID))
	got, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coastal Weekend Plan", got.Title)
	assert.True(t, got.TitleRefined)

	require.Len(t, model.seen, 2)
	assert.Equal(t, ai.RoleSystem, model.seen[0].Role)
	assert.Contains(t, model.seen[1].Content, "user: plan my weekend")
	assert.Contains(t, model.seen[1].Content, "assistant: Sure!")

	model.out = "Something Else"
	require.NoError(t, r.Refine(ctx, conv.ID))
	assert.Equal(t, 1, model.n, "already refined conversations are skipped")
}

func TestTitleRefiner_KeepsTitleOnEmptyOrError(t *testing.T) {
	repo := NewRepo(dbtest.Open(t, Models()...))
	conv := seedConversation(t, repo)
	ctx := context.Background()

	require.NoError(t, NewTitleRefiner(repo, &fakeCompleter{out: "  "}).Refine(ctx, conv.ID))
	boom := errors.New("rate limited")
	assert.ErrorIs(t, NewTitleRefiner(repo, &fakeCompleter{err: boom}).Refine(ctx, conv.ID), boom)

	got, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.Title, got.Title)
	assert.False(t, got.TitleRefined)
}

func TestInlineTitleQueue(t *testing.T) {
	repo := NewRepo(dbtest.Open(t, Models()...))
	conv := seedConversation(t, repo)
	q := NewInlineTitleQueue(NewTitleRefiner(repo, &fakeCompleter{out: "Trip"}))

	require.NoError(t, q.EnqueueTitle(context.Background(), conv.ID))
	q.Wait()

	got, err := repo.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trip", got.Title)
}
