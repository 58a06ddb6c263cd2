package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"traffic-profile-service/internal/domain/traffic"
)

var conflictKey = []clause.Column{{Name: "data_15min"}, {Name: "numer_odcinka"}}

// IntervalRepository persists aggregated interval rows. It is built around a
// request-scoped database handle; construct one per request.
type IntervalRepository struct {
	db *gorm.DB
}

func NewIntervalRepository(db *gorm.DB) *IntervalRepository {
	return &IntervalRepository{db: db}
}

// HasConflict reports whether any row's (bucket, segment) key already exists
// in the persisted table. It stops at the first collision; callers only need
// a yes/no to route the batch through the confirmation workflow.
func (r *IntervalRepository) HasConflict(ctx context.Context, rows []traffic.IntervalAggregate) (bool, error) {
	for _, row := range rows {
		var count int64
		err := r.db.WithContext(ctx).
			Model(&traffic.IntervalAggregate{}).
			Where("data_15min = ? AND numer_odcinka = ?", row.BucketStart, row.SegmentCode).
			Limit(1).
			Count(&count).Error
		if err != nil {
			return false, fmt.Errorf("failed to probe for existing records: %w", err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// CommitBatch writes the batch in one pass. With overwrite the conflicting
// rows are updated in place (all non-key columns); without it the insert is
// idempotent, so a writer racing between a conflict probe and the commit is
// absorbed instead of erroring.
func (r *IntervalRepository) CommitBatch(ctx context.Context, rows []traffic.IntervalAggregate, overwrite bool) error {
	if len(rows) == 0 {
		return nil
	}

	onConflict := clause.OnConflict{Columns: conflictKey, DoNothing: true}
	if overwrite {
		onConflict = clause.OnConflict{Columns: conflictKey, UpdateAll: true}
	}

	if err := r.db.WithContext(ctx).Clauses(onConflict).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to commit interval batch: %w", err)
	}
	return nil
}

// FetchRange returns rows with bucket timestamps inside the inclusive date
// range for one segment, ordered by bucket. The date bound only applies when
// both ends are given; otherwise the segment's full history is returned.
func (r *IntervalRepository) FetchRange(ctx context.Context, startDate, endDate, segmentCode string) ([]traffic.IntervalAggregate, error) {
	query := r.db.WithContext(ctx).Where("numer_odcinka = ?", segmentCode)
	if startDate != "" && endDate != "" {
		query = query.Where("data_15min BETWEEN ? AND ?", startDate+" 00:00:00", endDate+" 23:59:59")
	}

	var rows []traffic.IntervalAggregate
	if err := query.Order("data_15min").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch interval rows: %w", err)
	}
	return rows, nil
}
