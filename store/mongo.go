package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"RentChat/tools/errs"
)

// MongoConfig MongoDB 连接配置。
type MongoConfig struct {
	Uri         string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize int
	MaxRetry    int
}

// Mongo 文档库实现。
type Mongo struct {
	db            *mongo.Database
	conversations *mongo.Collection
	messages      *mongo.Collection
	users         *mongo.Collection
	notifications *mongo.Collection
}

// NewMongo 建连（带重试 + ping），并确保索引。
func NewMongo(ctx context.Context, cfg *MongoConfig) (*Mongo, error) {
	if cfg.Uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 20
	}

	opts := options.Client().ApplyURI(cfg.Uri)
	opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < cfg.MaxRetry; i++ {
		cli, err = connectMongo(ctx, opts)
		if err == nil {
			break
		}
		time.Sleep(time.Second / 2)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MongoDB uri=%s", cfg.Uri)
	}

	db := cli.Database(cfg.Database)
	s := &Mongo{
		db:            db,
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
		users:         db.Collection("users"),
		notifications: db.Collection("notifications"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, errors.Wrap(err, "ensure indexes")
	}
	return s, nil
}

func connectMongo(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return cli, nil
}

func (s *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "unread_by", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "read", Value: 1}},
	})
	return err
}

// ===== ConversationStore =====

func (s *Mongo) FindConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WithDetail("conversation " + id)
	}
	if err != nil {
		return nil, errs.ErrStorage.WrapMsg(err, "find conversation")
	}
	return &c, nil
}

func (s *Mongo) TouchConversation(ctx context.Context, id string, at int64, preview string) error {
	_, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": id, "last_message_at": bson.M{"$lt": at}},
		bson.M{"$set": bson.M{"last_message_at": at, "last_preview": preview}},
	)
	if err != nil {
		return errs.ErrStorage.WrapMsg(err, "touch conversation")
	}
	return nil
}

// ===== MessageStore =====

func (s *Mongo) InsertMessage(ctx context.Context, m *Message) error {
	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		return errs.ErrStorage.WrapMsg(err, "insert message")
	}
	return nil
}

func (s *Mongo) ListMessages(ctx context.Context, conversationID string, limit int64, before int64) ([]*Message, error) {
	filter := bson.M{"conversation_id": conversationID, "deleted": false}
	if before > 0 {
		filter["created_at"] = bson.M{"$lt": before}
	}
	// 倒序取最后 limit 条，再翻回升序
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.ErrStorage.WrapMsg(err, "list messages")
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*Message
	for cur.Next(ctx) {
		var m Message
		if err := cur.Decode(&m); err != nil {
			return nil, errs.ErrStorage.WrapMsg(err, "decode message")
		}
		out = append(out, &m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Mongo) MarkRead(ctx context.Context, conversationID, userID string, at int64) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{
			"conversation_id": conversationID,
			"unread_by":       userID,
			"sender_id":       bson.M{"$ne": userID},
			"deleted":         false,
		},
		bson.M{
			"$pull": bson.M{"unread_by": userID},
			"$set":  bson.M{"read_by." + userID: at},
		},
	)
	if err != nil {
		return 0, errs.ErrStorage.WrapMsg(err, "mark read")
	}
	return res.ModifiedCount, nil
}

func (s *Mongo) CountUnreadMessages(ctx context.Context, userID string) (int64, error) {
	n, err := s.messages.CountDocuments(ctx, bson.M{"unread_by": userID, "deleted": false})
	if err != nil {
		return 0, errs.ErrStorage.WrapMsg(err, "count unread messages")
	}
	return n, nil
}

func (s *Mongo) CountUnreadInConversation(ctx context.Context, conversationID, userID string) (int64, error) {
	n, err := s.messages.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"unread_by":       userID,
		"deleted":         false,
	})
	if err != nil {
		return 0, errs.ErrStorage.WrapMsg(err, "count unread in conversation")
	}
	return n, nil
}

func (s *Mongo) SoftDeleteMessage(ctx context.Context, messageID, senderID string) error {
	res, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": messageID, "sender_id": senderID},
		bson.M{"$set": bson.M{"deleted": true}},
	)
	if err != nil {
		return errs.ErrStorage.WrapMsg(err, "soft delete message")
	}
	if res.MatchedCount == 0 {
		return errs.ErrForbidden.WithDetail("message missing or not owned by sender")
	}
	return nil
}

// ===== UserStore =====

func (s *Mongo) FindUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WithDetail("user " + id)
	}
	if err != nil {
		return nil, errs.ErrStorage.WrapMsg(err, "find user")
	}
	return &u, nil
}

func (s *Mongo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.updateUserField(ctx, userID, "password_hash", passwordHash)
}

func (s *Mongo) UpdatePhone(ctx context.Context, userID, phone string) error {
	return s.updateUserField(ctx, userID, "phone", phone)
}

func (s *Mongo) updateUserField(ctx context.Context, userID, field string, value any) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{field: value}})
	if err != nil {
		return errs.ErrStorage.WrapMsg(err, "update user "+field)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WithDetail("user " + userID)
	}
	return nil
}

func (s *Mongo) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return errs.ErrStorage.WrapMsg(err, "delete user")
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound.WithDetail("user " + userID)
	}
	return nil
}

// ===== NotificationStore =====

func (s *Mongo) CreateNotification(ctx context.Context, n *Notification) error {
	if _, err := s.notifications.InsertOne(ctx, n); err != nil {
		return errs.ErrStorage.WrapMsg(err, "create notification")
	}
	return nil
}

func (s *Mongo) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	n, err := s.notifications.CountDocuments(ctx, bson.M{"recipient_id": userID, "read": false})
	if err != nil {
		return 0, errs.ErrStorage.WrapMsg(err, "count unread notifications")
	}
	return n, nil
}
