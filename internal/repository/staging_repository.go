package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"traffic-profile-service/internal/domain/traffic"
)

// StagingTTL is how long a staged batch stays retrievable while waiting for
// the overwrite confirmation.
const StagingTTL = 5 * time.Minute

// StagedDataset is one serialized aggregate batch parked between the upload
// request and the confirm-overwrite request. Expiration holds the creation
// time; rows older than StagingTTL are garbage.
type StagedDataset struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null"`
	Expiration time.Time      `gorm:"not null"`
}

func (StagedDataset) TableName() string {
	return "temp_data"
}

// StagingRepository owns the staged-batch lifecycle: a handle is created
// here, retrieved here, and destroyed here (explicitly after a confirm, or
// lazily by the expiry sweep). No other component transitions a handle.
type StagingRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStagingRepository(db *gorm.DB) *StagingRepository {
	return &StagingRepository{db: db, now: time.Now}
}

// Stage sweeps expired entries, then parks the batch under a fresh handle.
// The sweep is deliberately lazy: it runs on the next staging write, not on a
// background timer.
func (r *StagingRepository) Stage(ctx context.Context, rows []traffic.IntervalAggregate) (uuid.UUID, error) {
	cutoff := r.now().Add(-StagingTTL)
	if err := r.db.WithContext(ctx).Where("expiration < ?", cutoff).Delete(&StagedDataset{}).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to sweep expired staged data: %w", err)
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to serialize staged batch: %w", err)
	}

	record := StagedDataset{
		ID:         uuid.New(),
		Payload:    datatypes.JSON(payload),
		Expiration: r.now(),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to stage batch: %w", err)
	}
	return record.ID, nil
}

// Retrieve returns the staged batch for a handle, or nil when the handle is
// unknown or past its TTL. Expired rows are indistinguishable from missing
// ones on purpose.
func (r *StagingRepository) Retrieve(ctx context.Context, handle uuid.UUID) ([]traffic.IntervalAggregate, error) {
	var record StagedDataset
	err := r.db.WithContext(ctx).
		Where("id = ? AND expiration >= ?", handle, r.now().Add(-StagingTTL)).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staged batch: %w", err)
	}

	var rows []traffic.IntervalAggregate
	if err := json.Unmarshal(record.Payload, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode staged batch: %w", err)
	}
	return rows, nil
}

// Delete removes a staged batch after a successful confirmation.
func (r *StagingRepository) Delete(ctx context.Context, handle uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&StagedDataset{}, "id = ?", handle).Error; err != nil {
		return fmt.Errorf("failed to delete staged batch: %w", err)
	}
	return nil
}
