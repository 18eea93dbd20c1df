package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// =============================================================================
// 🍃 MongoDB 落盘后端
// =============================================================================

const turnCollection = "turn_records"

// MongoStore 基于 MongoDB 的回合落盘
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore 连接 MongoDB 并准备集合索引
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	coll := client.Database(dbName).Collection(turnCollection)

	// 会话查询走 (session_id, created_at) 复合索引
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create turn index: %w", err)
	}

	return &MongoStore{client: client, coll: coll}, nil
}

// SaveTurn 追加一条回合记录
func (s *MongoStore) SaveTurn(ctx context.Context, record *TurnRecord) error {
	_, err := s.coll.InsertOne(ctx, record)
	return err
}

// RecentBySession 按会话取最近 limit 条记录，时间倒序
func (s *MongoStore) RecentBySession(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	cursor, err := s.coll.Find(ctx,
		bson.D{{Key: "session_id", Value: sessionID}},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []TurnRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Ping 检查 MongoDB 连接
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close 断开 MongoDB 连接
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
