package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type preference struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (preference) TableName() string { return "preferences" }

// SQLiteStore keeps preferences in a local SQLite file.
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// OpenSQLite opens or creates <dir>/<name>.db and migrates it.
func OpenSQLite(dir, name string) (*SQLiteStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	path := filepath.Join(dir, name+".db")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open prefs database: %w", err)
	}
	if err := db.AutoMigrate(&preference{}); err != nil {
		return nil, fmt.Errorf("migrate prefs database: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var p preference
	err := s.db.WithContext(ctx).Where(&preference{Key: key}).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotSet
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s: %w", key, err)
	}
	return p.Value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	p := preference{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&preference{Key: key}).Error; err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
