// Package lockout persists advisory engineer holds on storage bays in a
// local sqlite database, outside the record store. The store only
// persists; occupancy checks belong to the caller.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"workshop-scan-backend/internal/model"
)

// Store defines the lockout operations. The subsystem is optional: a
// disabled store answers every call with empty results and no error.
type Store interface {
	Create(ctx context.Context, bay int64, engineer string) (*model.Lockout, error)
	ForBay(ctx context.Context, bay int64) (*model.Lockout, error)
	Clear(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Lockout, error)
	Enabled() bool
}

// NewStore creates a sqlite-backed lockout store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// NewDisabled creates the no-op store used when the lockouts subsystem
// is not configured.
func NewDisabled() Store {
	log.Println("Lockouts are not configured; bay holds will be unavailable.")
	return disabledStore{}
}

type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) Enabled() bool { return true }

// Create appends a lockout row. Deliberately no uniqueness check on the
// bay: a duplicate hold surfaces through the clash detector.
func (s *gormStore) Create(ctx context.Context, bay int64, engineer string) (*model.Lockout, error) {
	row := model.Lockout{
		Bay:       bay,
		Engineer:  engineer,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create lockout for bay %d: %w", bay, err)
	}
	log.Printf("Lockout %d created for bay %d by engineer %s", row.ID, bay, engineer)
	return &row, nil
}

// ForBay returns the first lockout on the given bay, or nil when the bay
// is not held.
func (s *gormStore) ForBay(ctx context.Context, bay int64) (*model.Lockout, error) {
	var row model.Lockout
	err := s.db.WithContext(ctx).Where("bay = ?", bay).Order("id").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lockout for bay %d: %w", bay, err)
	}
	return &row, nil
}

// Clear deletes a lockout by id.
func (s *gormStore) Clear(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Delete(&model.Lockout{}, id).Error; err != nil {
		return fmt.Errorf("failed to clear lockout %d: %w", id, err)
	}
	log.Printf("Lockout %d cleared", id)
	return nil
}

// List returns every active lockout.
func (s *gormStore) List(ctx context.Context) ([]model.Lockout, error) {
	var rows []model.Lockout
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list lockouts: %w", err)
	}
	return rows, nil
}

type disabledStore struct{}

func (disabledStore) Enabled() bool { return false }

func (disabledStore) Create(context.Context, int64, string) (*model.Lockout, error) {
	return nil, nil
}

func (disabledStore) ForBay(context.Context, int64) (*model.Lockout, error) { return nil, nil }

func (disabledStore) Clear(context.Context, int64) error { return nil }

func (disabledStore) List(context.Context) ([]model.Lockout, error) { return nil, nil }
