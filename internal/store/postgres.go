package store

import (
	"context"
	"fmt"

	"github.com/DoyleJ11/duel-backend/internal/match"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Gorm stores results through gorm. OpenPostgres is the production constructor.
type Gorm struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGorm(db)
}

// NewGorm migrates the results table on db and wraps it.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate match_results: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Record(ctx context.Context, res match.Result) error {
	rec := FromResult(res)
	// retries may deliver the same result twice
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("insert result %s: %w", rec.ID, err)
	}
	return nil
}

func (g *Gorm) History(ctx context.Context, identity string, limit int) ([]Record, error) {
	var recs []Record
	err := g.db.WithContext(ctx).
		Where("side_a = ? OR side_b = ?", identity, identity).
		Order("finished_at DESC").
		Order("id").
		Limit(clampLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return recs, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
