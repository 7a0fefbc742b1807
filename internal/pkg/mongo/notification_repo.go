package mongo

import (
	"Homestead/internal/model"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const notificationCollection = "notifications"

type NotificationRepo interface {
	Create(ctx context.Context, n *model.Notification) error
	List(ctx context.Context) ([]*model.Notification, error)
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	Delete(ctx context.Context, id string) (*model.Notification, error)
	Update(ctx context.Context, id string, patch *model.NotificationPatch) (*model.Notification, error)
	DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type notificationRepoImpl struct {
	col *mongo.Collection
}

func NewNotificationRepo(db *mongo.Database) NotificationRepo {
	return &notificationRepoImpl{
		col: db.Collection(notificationCollection),
	}
}

// Create 插入通知，ID 为空时生成 ObjectID 十六进制串
func (s *notificationRepoImpl) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = primitive.NewObjectID().Hex()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	_, err := s.col.InsertOne(ctx, n)
	return err
}

// List 读取完整快照 (按创建时间倒序)
func (s *notificationRepoImpl) List(ctx context.Context) ([]*model.Notification, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})

	cursor, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	list := make([]*model.Notification, 0)
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetByID 不存在时返回 mongo.ErrNoDocuments
func (s *notificationRepoImpl) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Delete 删除并返回被删除的记录，记录不存在时返回 nil, nil
func (s *notificationRepoImpl) Delete(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := s.col.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

// Update 部分更新，返回更新后的记录
func (s *notificationRepoImpl) Update(ctx context.Context, id string, patch *model.NotificationPatch) (*model.Notification, error) {
	set := bson.M{}
	if patch.Read != nil {
		set["read"] = *patch.Read
	}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Message != nil {
		set["message"] = *patch.Message
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Priority != nil {
		set["priority"] = *patch.Priority
	}
	if len(set) == 0 {
		return s.GetByID(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var n model.Notification
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&n)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteReadBefore 清理早于 before 的已读通知
func (s *notificationRepoImpl) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	filter := bson.M{
		"read":       true,
		"created_at": bson.M{"$lt": before},
	}
	result, err := s.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (s *notificationRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "read", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return err
}
