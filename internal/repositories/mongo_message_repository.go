package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Gopher0727/GroupChat/internal/models"
	"github.com/Gopher0727/GroupChat/internal/storage"
)

// 表情切换的比较并交换最多尝试次数
const reactionCASAttempts = 3

var errReactionContention = errors.New("reaction changed concurrently")

type MongoMessageRepository struct {
	messages *mongo.Collection
}

func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{messages: db.Collection(storage.MessagesCollection)}
}

func (r *MongoMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Reactions == nil {
		msg.Reactions = map[string]string{}
	}
	_, err := r.messages.InsertOne(ctx, msg)
	return err
}

func (r *MongoMessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := r.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	normalizeMessage(&msg)
	return &msg, nil
}

func (r *MongoMessageRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := r.messages.Find(ctx, bson.M{"chatroom_id": roomID}, opts)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		normalizeMessage(&msgs[i])
	}
	return msgs, nil
}

// ToggleReaction 以读到的旧值为条件更新, 被并发修改时重读再试
func (r *MongoMessageRepository) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*models.Message, error) {
	field := "reactions." + userID
	for range reactionCASAttempts {
		msg, err := r.GetByID(ctx, messageID)
		if err != nil {
			return nil, err
		}
		current, had := msg.Reactions[userID]

		filter := bson.M{"_id": messageID}
		if had {
			filter[field] = current
		} else {
			filter[field] = bson.M{"$exists": false}
		}

		var update bson.M
		if emoji == "" || (had && current == emoji) {
			update = bson.M{"$unset": bson.M{field: ""}}
		} else {
			update = bson.M{"$set": bson.M{field: emoji}}
		}

		var after models.Message
		err = r.messages.FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&after)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, err
		}
		normalizeMessage(&after)
		return &after, nil
	}
	return nil, errReactionContention
}

func (r *MongoMessageRepository) MarkDeleted(ctx context.Context, messageID, deletedBy string) (*models.Message, error) {
	update := bson.M{"$set": bson.M{
		"deleted":     true,
		"deleted_by":  deletedBy,
		"text":        nil,
		"attachments": bson.A{},
	}}
	var after models.Message
	err := r.messages.FindOneAndUpdate(ctx, bson.M{"_id": messageID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&after)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	normalizeMessage(&after)
	return &after, nil
}

func normalizeMessage(msg *models.Message) {
	if msg.Reactions == nil {
		msg.Reactions = map[string]string{}
	}
	if msg.Deleted && msg.Attachments == nil {
		msg.Attachments = []models.Attachment{}
	}
}
