package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"traffic-profile-service/internal/domain/traffic"
	"traffic-profile-service/internal/ingest"
	"traffic-profile-service/internal/metrics"
)

// Shared across the package tests; promauto registers collectors globally.
var testCollector = metrics.NewCollector("test")

const exportHeader = "Id,Data,Kategoria,Pas ruchu," +
	"Prędkość,Przestrzeń między poprzedzającym pojazdem w dziesiętnych częściach sekundy," +
	"Długość pojazdu w cm,Kierunek pod prąd"

const validExport = exportHeader + "\n" +
	"1,2026-01-05 10:07:00,H,1,85,800,1200,0\n" +
	"2,2026-01-05 10:09:00,L,2,92,650,450,0\n"

func newTestUploadService() *UploadService {
	return NewUploadService(zerolog.Nop(), testCollector)
}

type fakeIntervalStore struct {
	conflict bool
	commits  []bool
}

func (f *fakeIntervalStore) HasConflict(ctx context.Context, rows []traffic.IntervalAggregate) (bool, error) {
	return f.conflict, nil
}

func (f *fakeIntervalStore) CommitBatch(ctx context.Context, rows []traffic.IntervalAggregate, overwrite bool) error {
	f.commits = append(f.commits, overwrite)
	return nil
}

type fakeStagingStore struct {
	handle     uuid.UUID
	stagedRows []traffic.IntervalAggregate
	staged     bool
	deleted    []uuid.UUID
}

func (f *fakeStagingStore) Stage(ctx context.Context, rows []traffic.IntervalAggregate) (uuid.UUID, error) {
	f.staged = true
	return f.handle, nil
}

func (f *fakeStagingStore) Retrieve(ctx context.Context, handle uuid.UUID) ([]traffic.IntervalAggregate, error) {
	return f.stagedRows, nil
}

func (f *fakeStagingStore) Delete(ctx context.Context, handle uuid.UUID) error {
	f.deleted = append(f.deleted, handle)
	return nil
}

func withFakeStores(t *testing.T, intervals *fakeIntervalStore, staging *fakeStagingStore) {
	t.Helper()
	origIntervals, origStaging, origEnsure := newIntervalStore, newStagingStore, ensureSchema
	newIntervalStore = func(*gorm.DB) intervalStore { return intervals }
	newStagingStore = func(*gorm.DB) stagingStore { return staging }
	ensureSchema = func(*gorm.DB) error { return nil }
	t.Cleanup(func() {
		newIntervalStore, newStagingStore, ensureSchema = origIntervals, origStaging, origEnsure
	})
}

func TestProcessUploadCommitsWithoutConflict(t *testing.T) {
	intervals := &fakeIntervalStore{}
	staging := &fakeStagingStore{}
	withFakeStores(t, intervals, staging)
	s := newTestUploadService()

	result, err := s.ProcessUpload(context.Background(), nil, "MR_A1M_77123_2026-01-05_POJAZDY.csv", strings.NewReader(validExport))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Committed || result.RequiresConfirmation {
		t.Errorf("result = %+v, want a direct commit", result)
	}
	if len(intervals.commits) != 1 || intervals.commits[0] {
		t.Errorf("commits = %v, want one non-overwrite commit", intervals.commits)
	}
	if staging.staged {
		t.Error("batch was staged despite no conflict")
	}
}

func TestProcessUploadStagesOnConflict(t *testing.T) {
	intervals := &fakeIntervalStore{conflict: true}
	staging := &fakeStagingStore{handle: uuid.New()}
	withFakeStores(t, intervals, staging)
	s := newTestUploadService()

	result, err := s.ProcessUpload(context.Background(), nil, "MR_A1M_77123_2026-01-05_POJAZDY.csv", strings.NewReader(validExport))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.RequiresConfirmation || result.Committed {
		t.Errorf("result = %+v, want a staged batch awaiting confirmation", result)
	}
	if result.Handle != staging.handle {
		t.Errorf("handle = %s, want %s", result.Handle, staging.handle)
	}
	if len(intervals.commits) != 0 {
		t.Errorf("commits = %v, want none before confirmation", intervals.commits)
	}
}

func TestConfirmOverwriteCommitsAndDeletes(t *testing.T) {
	handle := uuid.New()
	for _, overwrite := range []bool{true, false} {
		intervals := &fakeIntervalStore{}
		staging := &fakeStagingStore{
			handle:     handle,
			stagedRows: []traffic.IntervalAggregate{{SegmentCode: "MR_A1M_77123"}},
		}
		withFakeStores(t, intervals, staging)
		s := newTestUploadService()

		if err := s.ConfirmOverwrite(context.Background(), nil, handle, overwrite); err != nil {
			t.Fatalf("confirm(overwrite=%v): %v", overwrite, err)
		}
		if len(intervals.commits) != 1 || intervals.commits[0] != overwrite {
			t.Errorf("commits = %v, want one commit with overwrite=%v", intervals.commits, overwrite)
		}
		if len(staging.deleted) != 1 || staging.deleted[0] != handle {
			t.Errorf("deleted = %v, want the confirmed handle", staging.deleted)
		}
	}
}

func TestConfirmOverwriteMissingHandle(t *testing.T) {
	intervals := &fakeIntervalStore{}
	staging := &fakeStagingStore{}
	withFakeStores(t, intervals, staging)
	s := newTestUploadService()

	err := s.ConfirmOverwrite(context.Background(), nil, uuid.New(), true)
	if !errors.Is(err, ErrNoStagedData) {
		t.Fatalf("error = %v, want ErrNoStagedData", err)
	}
	if len(intervals.commits) != 0 {
		t.Errorf("commits = %v, want none for a missing handle", intervals.commits)
	}
}

func TestProcessUploadRejectsUnknownExtension(t *testing.T) {
	s := newTestUploadService()

	_, err := s.ProcessUpload(context.Background(), nil, "MR_A1M_77123_2026-01-05_POJAZDY.txt", strings.NewReader(""))
	if !errors.Is(err, ingest.ErrInvalidFilename) {
		t.Errorf("error = %v, want ErrInvalidFilename", err)
	}
}

func TestProcessUploadRejectsMissingColumns(t *testing.T) {
	s := newTestUploadService()

	_, err := s.ProcessUpload(context.Background(), nil, "MR_A1M_77123_2026-01-05_POJAZDY.csv", strings.NewReader("Id,Data\n"))
	if !errors.Is(err, ingest.ErrMissingColumns) {
		t.Fatalf("error = %v, want ErrMissingColumns", err)
	}
	if !strings.Contains(err.Error(), "Kategoria") {
		t.Errorf("error %q does not name the missing column", err)
	}
}

func TestProcessUploadReportsEmptyTable(t *testing.T) {
	s := newTestUploadService()

	_, err := s.ProcessUpload(context.Background(), nil, "MR_A1M_77123_2026-01-05_POJAZDY.csv", strings.NewReader(exportHeader+"\n"))
	if err == nil || err.Error() != "processing error: table is empty" {
		t.Errorf("error = %v, want the recovered empty-table report", err)
	}
}
