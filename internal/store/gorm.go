package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type GormStore struct {
	db *gorm.DB
}

func OpenGorm(cfg Config, log *slog.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if err := db.AutoMigrate(&Shape{}); err != nil {
		return nil, fmt.Errorf("migrate shapes: %w", err)
	}

	log.Debug("shape store ready", "driver", cfg.Driver)
	return NewGormStore(db), nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateShape(ctx context.Context, shape Shape) error {
	if shape.ShapeID == "" {
		return ErrInvalidShape
	}
	shape.ID = 0

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shape_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"shape_type", "user_id"}),
	}).Create(&shape)
	if result.Error != nil {
		return fmt.Errorf("failed to create shape %s: %w", shape.ShapeID, result.Error)
	}
	return nil
}

func (s *GormStore) UpdateShapeData(ctx context.Context, shape Shape) error {
	if shape.ShapeID == "" {
		return ErrInvalidShape
	}
	shape.ID = 0

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shape_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&shape)
	if result.Error != nil {
		return fmt.Errorf("failed to update shape %s: %w", shape.ShapeID, result.Error)
	}
	return nil
}

func (s *GormStore) RoomShapes(ctx context.Context, roomID string) ([]Shape, error) {
	var shapes []Shape
	result := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Find(&shapes)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list shapes for room %s: %w", roomID, result.Error)
	}
	return shapes, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
