package latency

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/BaSui01/agora/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// =============================================================================
// 🗄️ GormSink
// =============================================================================

// GormSink 将记录写入 latency_logs 表
type GormSink struct {
	store *store.Store
}

// NewGormSink 创建 GormSink
func NewGormSink(st *store.Store) *GormSink {
	return &GormSink{store: st}
}

// Write 实现 Sink
func (s *GormSink) Write(ctx context.Context, r Record) error {
	row := &store.LatencyLog{
		Operation:  r.Operation,
		Model:      r.Model,
		Service:    r.Service,
		DurationMs: r.Duration.Milliseconds(),
		Success:    r.Success,
		Error:      r.Error,
		RoomID:     r.RoomID,
		PersonaID:  r.PersonaID,
		CreatedAt:  r.At,
	}
	if len(r.Metadata) > 0 {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return err
		}
		row.Metadata = string(raw)
	}
	return s.store.CreateLatencyLog(ctx, row)
}

// =============================================================================
// 🍃 MongoSink
// =============================================================================

// MongoSink 将记录写入 MongoDB 集合
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSink 连接 MongoDB 并返回 sink，Close 时断开连接。
func NewMongoSink(uri, database, collection string) (*MongoSink, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Write 实现 Sink
func (s *MongoSink) Write(ctx context.Context, r Record) error {
	_, err := s.collection.InsertOne(ctx, mongoDocument(r))
	return err
}

// Close 断开连接
func (s *MongoSink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func mongoDocument(r Record) bson.M {
	doc := bson.M{
		"operation":   r.Operation,
		"model":       r.Model,
		"service":     r.Service,
		"duration_ms": r.Duration.Milliseconds(),
		"success":     r.Success,
		"created_at":  r.At,
	}
	if r.Error != "" {
		doc["error"] = r.Error
	}
	if r.RoomID != 0 {
		doc["room_id"] = int64(r.RoomID)
	}
	if r.PersonaID != 0 {
		doc["persona_id"] = int64(r.PersonaID)
	}
	if len(r.Metadata) > 0 {
		doc["metadata"] = r.Metadata
	}
	return doc
}

// =============================================================================
// 🔀 MultiSink
// =============================================================================

// MultiSink 依次写入多个 sink，汇总所有错误
type MultiSink []Sink

// Write 实现 Sink
func (m MultiSink) Write(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
