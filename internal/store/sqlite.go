package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// kvEntry is one stored value
type kvEntry struct {
	ID        uint      `gorm:"primaryKey"`
	Namespace string    `gorm:"uniqueIndex:idx_kv_key"`
	Name      string    `gorm:"uniqueIndex:idx_kv_key"`
	Field     string    `gorm:"uniqueIndex:idx_kv_key"`
	Value     string
	UpdatedAt time.Time
}

func (kvEntry) TableName() string {
	return "kv_entries"
}

// SQLiteStore keeps values in a local SQLite database
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Get retrieves the value stored under key
func (s *SQLiteStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	var entry kvEntry
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND name = ? AND field = ?", key.Namespace, key.Name, key.Field).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(entry.Value), true, nil
}

// Put inserts the value, or upserts it when expectAbsent is false
func (s *SQLiteStore) Put(ctx context.Context, key Key, value []byte, expectAbsent bool) error {
	entry := kvEntry{
		Namespace: key.Namespace,
		Name:      key.Name,
		Field:     key.Field,
		Value:     string(value),
		UpdatedAt: time.Now(),
	}

	if !expectAbsent {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "name"}, {Name: "field"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entry).Error
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&kvEntry{}).
			Where("namespace = ? AND name = ? AND field = ?", key.Namespace, key.Name, key.Field).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyExists
		}
		return tx.Create(&entry).Error
	})
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
