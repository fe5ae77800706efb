// Package store persists whiteboard shapes. Every write is an upsert keyed by
// shape ID so that queue redelivery and create/update reordering are harmless.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrInvalidShape  = errors.New("shape has no id")
)

// Shape is one drawn element of a room. Data is the drawing layer's serialized
// shape, stored verbatim.
type Shape struct {
	ID        uint      `gorm:"primaryKey" json:"-" bson:"-"`
	ShapeID   string    `gorm:"uniqueIndex;size:128;not null" json:"shapeId" bson:"shape_id"`
	RoomID    string    `gorm:"index;size:128;not null" json:"roomId" bson:"room_id"`
	UserID    string    `gorm:"size:128" json:"userId" bson:"user_id"`
	ShapeType string    `gorm:"size:64" json:"type" bson:"shape_type"`
	Data      string    `gorm:"type:text" json:"data" bson:"data"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

type ShapeStore interface {
	// CreateShape records a new shape. If the shape already exists (redelivery,
	// or an update overtook the create) only its type and author are filled in.
	CreateShape(ctx context.Context, s Shape) error
	// UpdateShapeData replaces a shape's data, creating the record if the
	// create has not landed yet.
	UpdateShapeData(ctx context.Context, s Shape) error
	// RoomShapes lists a room's shapes, oldest first.
	RoomShapes(ctx context.Context, roomID string) ([]Shape, error)
	Close() error
}

type Config struct {
	// Driver is sqlite, postgres or mongo.
	Driver string
	// DSN is the sqlite path, postgres DSN, or mongodb:// URI.
	DSN string
	// Database names the mongo database.
	Database string
}

func Open(ctx context.Context, cfg Config, log *slog.Logger) (ShapeStore, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres:
		return OpenGorm(cfg, log)
	case DriverMongo:
		return OpenMongo(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
