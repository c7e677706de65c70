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

// MongoRoomRepository 文档型实现: 成员集合用 $addToSet/$pull 原子更新,
// 用户文档上的 joined_chatrooms 由随后的单文档更新与定期对账维护
type MongoRoomRepository struct {
	rooms *mongo.Collection
	users *mongo.Collection
}

func NewMongoRoomRepository(db *mongo.Database) *MongoRoomRepository {
	return &MongoRoomRepository{
		rooms: db.Collection(storage.ChatroomsCollection),
		users: db.Collection(storage.UsersCollection),
	}
}

func (r *MongoRoomRepository) Create(ctx context.Context, room *models.Chatroom) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	room.Members = []string{room.OwnerID}
	if _, err := r.rooms.InsertOne(ctx, room); err != nil {
		return err
	}
	_, err := r.users.UpdateOne(ctx, bson.M{"_id": room.OwnerID}, bson.M{"$addToSet": bson.M{"joined_chatrooms": room.ID}})
	return err
}

func (r *MongoRoomRepository) GetByID(ctx context.Context, id string) (*models.Chatroom, error) {
	var room models.Chatroom
	if err := r.rooms.FindOne(ctx, bson.M{"_id": id}).Decode(&room); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	normalizeRoom(&room)
	return &room, nil
}

func (r *MongoRoomRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Chatroom, error) {
	filter := bson.M{"$or": bson.A{bson.M{"members": userID}, bson.M{"owner_id": userID}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).SetLimit(int64(limit))
	cur, err := r.rooms.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var rooms []models.Chatroom
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, err
	}
	for i := range rooms {
		normalizeRoom(&rooms[i])
	}
	return rooms, nil
}

func (r *MongoRoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := r.rooms.CountDocuments(ctx, bson.M{"_id": roomID, "members": userID})
	return n > 0, err
}

func (r *MongoRoomRepository) AddMember(ctx context.Context, roomID, userID string) (bool, error) {
	res, err := r.rooms.UpdateOne(ctx, bson.M{"_id": roomID}, bson.M{"$addToSet": bson.M{"members": userID}})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, ErrNotFound
	}
	if _, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$addToSet": bson.M{"joined_chatrooms": roomID}}); err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *MongoRoomRepository) RemoveMember(ctx context.Context, roomID, userID, requiredOwner string) (*Removal, error) {
	filter := bson.M{"_id": roomID, "members": userID}
	if requiredOwner != "" {
		filter["owner_id"] = requiredOwner
	}

	var before models.Chatroom
	err := r.rooms.FindOneAndUpdate(ctx, filter,
		bson.M{"$pull": bson.M{"members": userID}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)

	if errors.Is(err, mongo.ErrNoDocuments) {
		// 区分房间不存在 / 房主不符 / 本就不是成员
		room, gerr := r.GetByID(ctx, roomID)
		if gerr != nil {
			return nil, gerr
		}
		if requiredOwner != "" && room.OwnerID != requiredOwner {
			return nil, ErrOwnerMismatch
		}
		if _, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"joined_chatrooms": roomID}}); err != nil {
			return nil, err
		}
		return &Removal{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &Removal{Removed: true}
	if _, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"joined_chatrooms": roomID}}); err != nil {
		return nil, err
	}

	// 仅在成员确实为空时删除, 并发加入会让条件失配
	del, err := r.rooms.DeleteOne(ctx, bson.M{"_id": roomID, "members": bson.M{"$size": 0}})
	if err != nil {
		return nil, err
	}
	if del.DeletedCount == 1 {
		out.RoomDeleted = true
		_, err := r.users.UpdateMany(ctx, bson.M{"joined_chatrooms": roomID}, bson.M{"$pull": bson.M{"joined_chatrooms": roomID}})
		return out, err
	}

	if before.OwnerID == userID {
		transfer := mongo.Pipeline{
			{{Key: "$set", Value: bson.D{{Key: "owner_id", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$members", 0}}}}}}},
		}
		var after models.Chatroom
		err := r.rooms.FindOneAndUpdate(ctx,
			bson.M{"_id": roomID, "owner_id": userID, "members.0": bson.M{"$exists": true}},
			transfer,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&after)
		switch {
		case err == nil:
			out.NewOwnerID = after.OwnerID
		case errors.Is(err, mongo.ErrNoDocuments):
			// 其他请求已完成转移或删除
		default:
			return nil, err
		}
	}
	return out, nil
}

func (r *MongoRoomRepository) Delete(ctx context.Context, roomID, requiredOwner string) error {
	filter := bson.M{"_id": roomID}
	if requiredOwner != "" {
		filter["owner_id"] = requiredOwner
	}
	res, err := r.rooms.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		if _, err := r.GetByID(ctx, roomID); err != nil {
			return err
		}
		return ErrOwnerMismatch
	}
	_, err = r.users.UpdateMany(ctx, bson.M{"joined_chatrooms": roomID}, bson.M{"$pull": bson.M{"joined_chatrooms": roomID}})
	return err
}

// ReconcileMemberships 逐个用户按房间成员重写 joined_chatrooms
func (r *MongoRoomRepository) ReconcileMemberships(ctx context.Context) (int64, error) {
	cur, err := r.users.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1, "joined_chatrooms": 1}))
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var fixed int64
	for cur.Next(ctx) {
		var u struct {
			ID     string   `bson:"_id"`
			Joined []string `bson:"joined_chatrooms"`
		}
		if err := cur.Decode(&u); err != nil {
			return fixed, err
		}

		rc, err := r.rooms.Find(ctx, bson.M{"members": u.ID}, options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return fixed, err
		}
		var ids []struct {
			ID string `bson:"_id"`
		}
		if err := rc.All(ctx, &ids); err != nil {
			return fixed, err
		}
		want := make([]string, len(ids))
		for i := range ids {
			want[i] = ids[i].ID
		}
		if sameSet(u.Joined, want) {
			continue
		}
		if _, err := r.users.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{"joined_chatrooms": want}}); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, cur.Err()
}

func normalizeRoom(room *models.Chatroom) {
	if room.Members == nil {
		room.Members = []string{}
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, x := range a {
		seen[x] = struct{}{}
	}
	for _, x := range b {
		if _, ok := seen[x]; !ok {
			return false
		}
	}
	return true
}
