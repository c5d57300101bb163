package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/kel/internal/common"
	"github.com/suPer8Hu/kel/internal/db/dbtest"
)

func newService(t *testing.T) (*Service, *Repo) {
	t.Helper()
	repo := NewRepo(dbtest.Open(t, Models()...))
	return NewService(repo), repo
}

func TestRepo_HistoryIsOldestFirst(t *testing.T) {
	_, repo := newService(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, "t", &Message{Role: RoleUser, Content: "1"})
	require.NoError(t, err)
	for _, c := range []string{"2", "3", "4"} {
		role := RoleAssistant
		if c == "3" {
			role = RoleUser
		}
		require.NoError(t, repo.InsertMessage(ctx, &Message{ConversationID: conv.ID, Role: role, Content: c}))
	}

	msgs, err := repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	var got []string
	for _, m := range msgs {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, got)
}

func TestRepo_InsertMessageUnknownConversation(t *testing.T) {
	_, repo := newService(t)
	err := repo.InsertMessage(context.Background(), &Message{ConversationID: 7, Role: RoleUser, Content: "x"})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRepo_ListConversationsMostRecentFirst(t *testing.T) {
	_, repo := newService(t)
	ctx := context.Background()

	a, err := repo.CreateConversation(ctx, "a", &Message{Role: RoleUser, Content: "a"})
	require.NoError(t, err)
	b, err := repo.CreateConversation(ctx, "b", &Message{Role: RoleUser, Content: "b"})
	require.NoError(t, err)
	require.NoError(t, repo.InsertMessage(ctx, &Message{ConversationID: a.ID, Role: RoleUser, Content: "again"}))

	got, err := repo.ListConversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []uint64{a.ID, b.ID}, []uint64{got[0].ID, got[1].ID})
}

func TestService_DeleteConversationRemovesMessages(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, "t", &Message{Role: RoleUser, Content: "x"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, conv.ID))
	_, err = svc.ListMessages(ctx, conv.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	var n int64
	require.NoError(t, repo.db.Model(&Message{}).Count(&n).Error)
	assert.Zero(t, n)

	assert.ErrorIs(t, svc.DeleteConversation(ctx, conv.ID), common.ErrNotFound)
}

func TestService_RenameConversationPinsTitle(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, "old", nil)
	require.NoError(t, err)

	got, err := svc.RenameConversation(ctx, conv.ID, "  New name ")
	require.NoError(t, err)
	assert.Equal(t, "New name", got.Title)
	assert.True(t, got.TitleRefined)

	_, err = svc.RenameConversation(ctx, conv.ID, " ")
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.RenameConversation(ctx, 404, "x")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestService_CreateAndDeleteMessage(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, "t", nil)
	require.NoError(t, err)

	img := "UE5H"
	m, err := svc.CreateMessage(ctx, CreateMessageInput{ConversationID: conv.ID, Role: RoleUser, Content: "see", Image: &img})
	require.NoError(t, err)
	require.NotNil(t, m.Image)

	_, err = svc.CreateMessage(ctx, CreateMessageInput{ConversationID: conv.ID, Role: "tool", Content: "x"})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.CreateMessage(ctx, CreateMessageInput{ConversationID: conv.ID, Role: RoleAssistant, Content: "x", Image: &img})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.CreateMessage(ctx, CreateMessageInput{ConversationID: conv.ID, Role: RoleUser, Content: " "})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.CreateMessage(ctx, CreateMessageInput{ConversationID: 99, Role: RoleUser, Content: "x"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, svc.DeleteMessage(ctx, m.ID))
	assert.ErrorIs(t, svc.DeleteMessage(ctx, m.ID), common.ErrNotFound)
}
