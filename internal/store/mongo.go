package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const shapeCollection = "shapes"

type MongoStore struct {
	client    *mongo.Client
	shapes    *mongo.Collection
	opTimeout time.Duration
}

func OpenMongo(ctx context.Context, cfg Config, log *slog.Logger) (*MongoStore, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.DSN).
		SetAppName("whiteboard").
		SetConnectTimeout(10 * time.Second).
		SetMaxPoolSize(64)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client:    client,
		shapes:    client.Database(cfg.Database).Collection(shapeCollection),
		opTimeout: 5 * time.Second,
	}

	_, err = s.shapes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "shape_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create shape indexes: %w", err)
	}

	log.Debug("shape store ready", "driver", DriverMongo, "database", cfg.Database)
	return s, nil
}

// createShapeUpdate fills type and author on an existing shape and writes the
// full record when the shape is new. Data is never overwritten here.
func createShapeUpdate(s Shape, now time.Time) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "shape_type", Value: s.ShapeType},
			{Key: "user_id", Value: s.UserID},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "room_id", Value: s.RoomID},
			{Key: "data", Value: s.Data},
			{Key: "created_at", Value: now},
			{Key: "updated_at", Value: now},
		}},
	}
}

func updateShapeDataUpdate(s Shape, now time.Time) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "data", Value: s.Data},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "room_id", Value: s.RoomID},
			{Key: "user_id", Value: s.UserID},
			{Key: "shape_type", Value: s.ShapeType},
			{Key: "created_at", Value: now},
		}},
	}
}

func (s *MongoStore) upsert(ctx context.Context, shapeID string, update bson.D) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	filter := bson.D{{Key: "shape_id", Value: shapeID}}
	_, err := s.shapes.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) CreateShape(ctx context.Context, shape Shape) error {
	if shape.ShapeID == "" {
		return ErrInvalidShape
	}
	if err := s.upsert(ctx, shape.ShapeID, createShapeUpdate(shape, time.Now().UTC())); err != nil {
		return fmt.Errorf("failed to create shape %s: %w", shape.ShapeID, err)
	}
	return nil
}

func (s *MongoStore) UpdateShapeData(ctx context.Context, shape Shape) error {
	if shape.ShapeID == "" {
		return ErrInvalidShape
	}
	if err := s.upsert(ctx, shape.ShapeID, updateShapeDataUpdate(shape, time.Now().UTC())); err != nil {
		return fmt.Errorf("failed to update shape %s: %w", shape.ShapeID, err)
	}
	return nil
}

func (s *MongoStore) RoomShapes(ctx context.Context, roomID string) ([]Shape, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	cur, err := s.shapes.Find(ctx,
		bson.D{{Key: "room_id", Value: roomID}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shapes for room %s: %w", roomID, err)
	}
	defer cur.Close(ctx)

	shapes := []Shape{}
	if err := cur.All(ctx, &shapes); err != nil {
		return nil, fmt.Errorf("failed to decode shapes for room %s: %w", roomID, err)
	}
	return shapes, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
