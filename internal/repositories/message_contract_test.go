package repositories

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupChat/internal/models"
)

func TestGormMessageRepository(t *testing.T) {
	runMessageContract(t, NewMessageRepository(newTestDB(t)))
}

func TestMongoMessageRepository(t *testing.T) {
	runMessageContract(t, NewMongoMessageRepository(newTestMongo(t)))
}

func newMessage(roomID, userID, text string, at time.Time) *models.Message {
	return &models.Message{
		ID:         nextID(),
		ChatroomID: roomID,
		UserID:     userID,
		UserName:   "u" + userID,
		Text:       strPtr(text),
		CreatedAt:  at,
	}
}

func runMessageContract(t *testing.T, repo MessageRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		msg := newMessage(nextID(), "1", "hi", time.Time{})
		msg.Attachments = []models.Attachment{{URL: "/uploads/a.png", Name: "a.png", Mime: "image/png"}}
		require.NoError(t, repo.Create(ctx, msg))

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "hi", *got.Text)
		assert.Equal(t, msg.Attachments, got.Attachments)
		assert.Empty(t, got.Reactions)
		assert.NotNil(t, got.Reactions)
		assert.False(t, got.Deleted)
		assert.Nil(t, got.DeletedBy)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.GetByID(ctx, nextID())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.ToggleReaction(ctx, nextID(), "1", "👍")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.MarkDeleted(ctx, nextID(), "1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list ascending regardless of insertion order", func(t *testing.T) {
		room := nextID()
		base := time.Now().UTC().Truncate(time.Millisecond)
		offsets := rand.Perm(20)
		for _, off := range offsets {
			require.NoError(t, repo.Create(ctx, newMessage(room, "1", "m", base.Add(time.Duration(off)*time.Second))))
		}
		require.NoError(t, repo.Create(ctx, newMessage(nextID(), "1", "other room", base)))

		msgs, err := repo.ListByRoom(ctx, room, 500)
		require.NoError(t, err)
		require.Len(t, msgs, 20)
		for i := 1; i < len(msgs); i++ {
			assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
		}

		capped, err := repo.ListByRoom(ctx, room, 5)
		require.NoError(t, err)
		assert.Len(t, capped, 5)
		assert.True(t, capped[0].CreatedAt.Equal(base))
	})

	t.Run("reaction toggle", func(t *testing.T) {
		msg := newMessage(nextID(), "1", "react", time.Time{})
		require.NoError(t, repo.Create(ctx, msg))

		got, err := repo.ToggleReaction(ctx, msg.ID, "7", "👍")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"7": "👍"}, got.Reactions)

		got, err = repo.ToggleReaction(ctx, msg.ID, "8", "🎉")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"7": "👍", "8": "🎉"}, got.Reactions)

		// 替换
		got, err = repo.ToggleReaction(ctx, msg.ID, "7", "❤️")
		require.NoError(t, err)
		assert.Equal(t, "❤️", got.Reactions["7"])

		// 相同表情移除
		got, err = repo.ToggleReaction(ctx, msg.ID, "7", "❤️")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"8": "🎉"}, got.Reactions)

		// 空表情移除, 没有时也不报错
		got, err = repo.ToggleReaction(ctx, msg.ID, "8", "")
		require.NoError(t, err)
		assert.Empty(t, got.Reactions)
		got, err = repo.ToggleReaction(ctx, msg.ID, "8", "")
		require.NoError(t, err)
		assert.Empty(t, got.Reactions)
	})

	t.Run("mark deleted keeps row and clears content", func(t *testing.T) {
		msg := newMessage(nextID(), "1", "secret", time.Time{})
		msg.Attachments = []models.Attachment{{URL: "/uploads/x"}}
		require.NoError(t, repo.Create(ctx, msg))
		_, err := repo.ToggleReaction(ctx, msg.ID, "2", "👍")
		require.NoError(t, err)

		got, err := repo.MarkDeleted(ctx, msg.ID, "2")
		require.NoError(t, err)
		assert.True(t, got.Deleted)
		require.NotNil(t, got.DeletedBy)
		assert.Equal(t, "2", *got.DeletedBy)
		assert.Nil(t, got.Text)
		assert.NotNil(t, got.Attachments)
		assert.Empty(t, got.Attachments)
		assert.Equal(t, "1", got.UserID)
		assert.Equal(t, map[string]string{"2": "👍"}, got.Reactions)

		again, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, again.Deleted)
	})
}
