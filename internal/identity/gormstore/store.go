// Package gormstore backs the identity.Directory with the shared MySQL
// user table maintained by the CRUD side of the application.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cuppid-coder/connect/internal/identity"
)

type userRecord struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:255"`
	Avatar   string `gorm:"size:512"`
	Status   string `gorm:"size:16;index"`
	LastSeen *time.Time
}

func (userRecord) TableName() string { return "users" }

type Store struct {
	db *gorm.DB
}

var _ identity.Directory = (*Store)(nil)

// Open connects to MySQL and ensures the users table exists.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open mysql: %w", err)
	}
	if err := db.AutoMigrate(&userRecord{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate users table: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing gorm handle. Useful for tests and for processes
// that already own a connection pool.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByID(ctx context.Context, id string) (identity.User, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return identity.User{}, identity.ErrNotFound
		}
		return identity.User{}, fmt.Errorf("gormstore: find user %s: %w", id, err)
	}
	return identity.User{ID: rec.ID, Name: rec.Name, Avatar: rec.Avatar}, nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status identity.Status, lastSeen time.Time) error {
	updates := map[string]any{
		"status":    string(status),
		"last_seen": lastSeen,
	}
	res := s.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("gormstore: update status for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return identity.ErrNotFound
	}
	return nil
}
