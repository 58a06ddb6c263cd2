package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"traffic-profile-service/internal/db"
	"traffic-profile-service/internal/domain/traffic"
	"traffic-profile-service/internal/ingest"
	"traffic-profile-service/internal/metrics"
	"traffic-profile-service/internal/repository"
)

// ErrNoStagedData is returned when a confirmation arrives for a handle that
// never existed or already expired.
var ErrNoStagedData = errors.New("no data to process")

type intervalStore interface {
	HasConflict(ctx context.Context, rows []traffic.IntervalAggregate) (bool, error)
	CommitBatch(ctx context.Context, rows []traffic.IntervalAggregate, overwrite bool) error
}

type stagingStore interface {
	Stage(ctx context.Context, rows []traffic.IntervalAggregate) (uuid.UUID, error)
	Retrieve(ctx context.Context, handle uuid.UUID) ([]traffic.IntervalAggregate, error)
	Delete(ctx context.Context, handle uuid.UUID) error
}

// Store constructors, swappable in tests.
var (
	newIntervalStore = func(database *gorm.DB) intervalStore { return repository.NewIntervalRepository(database) }
	newStagingStore  = func(database *gorm.DB) stagingStore { return repository.NewStagingRepository(database) }
	ensureSchema     = db.EnsureSchema
)

type UploadResult struct {
	Committed            bool
	RequiresConfirmation bool
	Handle               uuid.UUID
	SegmentCode          string
	Rows                 int
}

// UploadService runs the ingestion pipeline: validate, aggregate, then either
// commit directly or park the batch behind a confirmation handle when it
// collides with persisted rows.
type UploadService struct {
	log     zerolog.Logger
	metrics *metrics.Collector
}

func NewUploadService(log zerolog.Logger, collector *metrics.Collector) *UploadService {
	return &UploadService{
		log:     log,
		metrics: collector,
	}
}

// ProcessUpload ingests one export file on the session database. Aggregator
// contract panics are recovered here so a malformed upload reports an error
// instead of taking the request down.
func (s *UploadService) ProcessUpload(ctx context.Context, database *gorm.DB, filename string, file io.Reader) (result *UploadResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordUploadError("processing")
			result = nil
			err = fmt.Errorf("processing error: %v", r)
		}
	}()

	table, err := ingest.ParseUpload(filename, file)
	if err != nil {
		s.metrics.RecordUploadError("parse")
		return nil, err
	}

	vt, err := ingest.Validate(filename, table)
	if err != nil {
		s.metrics.RecordUploadError("validation")
		return nil, err
	}

	rows, err := ingest.Aggregate(vt)
	if err != nil {
		s.metrics.RecordUploadError("processing")
		return nil, fmt.Errorf("processing error: %s", err)
	}

	if err := ensureSchema(database); err != nil {
		return nil, err
	}

	repo := newIntervalStore(database)
	conflict, err := repo.HasConflict(ctx, rows)
	if err != nil {
		s.metrics.RecordUploadError("database")
		return nil, err
	}

	if conflict {
		staging := newStagingStore(database)
		handle, err := staging.Stage(ctx, rows)
		if err != nil {
			s.metrics.RecordUploadError("database")
			return nil, err
		}

		s.metrics.StagedBatchesTotal.Inc()
		s.log.Info().
			Str("segment", vt.SegmentCode).
			Str("handle", handle.String()).
			Int("rows", len(rows)).
			Msg("upload collides with persisted records, staged for confirmation")

		return &UploadResult{
			RequiresConfirmation: true,
			Handle:               handle,
			SegmentCode:          vt.SegmentCode,
			Rows:                 len(rows),
		}, nil
	}

	// DoNothing semantics absorb a writer racing between the probe and this
	// commit.
	if err := repo.CommitBatch(ctx, rows, false); err != nil {
		s.metrics.RecordUploadError("database")
		return nil, err
	}

	s.metrics.UploadsTotal.Inc()
	s.metrics.ProcessingDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	s.log.Info().
		Str("segment", vt.SegmentCode).
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("upload committed")

	return &UploadResult{
		Committed:   true,
		SegmentCode: vt.SegmentCode,
		Rows:        len(rows),
	}, nil
}

// ConfirmOverwrite finishes a staged upload. With overwrite the conflicting
// rows are replaced (last writer wins, even against a writer that slipped in
// after staging); without it only brand-new keys are inserted.
func (s *UploadService) ConfirmOverwrite(ctx context.Context, database *gorm.DB, handle uuid.UUID, overwrite bool) error {
	staging := newStagingStore(database)

	rows, err := staging.Retrieve(ctx, handle)
	if err != nil {
		return err
	}
	if rows == nil {
		return ErrNoStagedData
	}

	repo := newIntervalStore(database)
	if err := repo.CommitBatch(ctx, rows, overwrite); err != nil {
		return err
	}

	if err := staging.Delete(ctx, handle); err != nil {
		// The commit already happened; the sweep will collect the leftover.
		s.log.Warn().Err(err).Str("handle", handle.String()).Msg("failed to delete confirmed staged batch")
	}

	s.metrics.ConfirmationsTotal.WithLabelValues(strconv.FormatBool(overwrite)).Inc()
	s.log.Info().
		Str("handle", handle.String()).
		Bool("overwrite", overwrite).
		Int("rows", len(rows)).
		Msg("staged upload confirmed")

	return nil
}
