package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"traffic-profile-service/internal/domain/traffic"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	database, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return database, mock
}

func TestStageSweepsExpiredBeforeInsert(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewStagingRepository(database)

	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "temp_data" WHERE expiration < $1`)).
		WithArgs(now.Add(-StagingTTL)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "temp_data" ("id","payload","expiration") VALUES ($1,$2,$3)`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	handle, err := repo.Stage(context.Background(), []traffic.IntervalAggregate{{SegmentCode: "MR_A1M_77123"}})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if handle == uuid.Nil {
		t.Error("stage returned a nil handle")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRetrieveExpiredHandleUnavailable(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewStagingRepository(database)

	// Staged at noon, confirmation arrives after the TTL ran out.
	staged := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	later := staged.Add(StagingTTL + time.Minute)
	repo.now = func() time.Time { return later }

	handle := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "temp_data" WHERE id = $1 AND expiration >= $2 ORDER BY "temp_data"."id" LIMIT $3`)).
		WithArgs(handle, later.Add(-StagingTTL), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload", "expiration"}))

	rows, err := repo.Retrieve(context.Background(), handle)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if rows != nil {
		t.Errorf("rows = %v, want nil for an expired handle", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRetrieveReturnsStagedRows(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewStagingRepository(database)

	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	handle := uuid.New()
	payload := []byte(`[{"numer_odcinka":"MR_A1M_77123","liczba_na_pasie_1":12}]`)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "temp_data" WHERE id = $1 AND expiration >= $2 ORDER BY "temp_data"."id" LIMIT $3`)).
		WithArgs(handle, now.Add(-StagingTTL), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload", "expiration"}).
			AddRow(handle.String(), payload, now))

	rows, err := repo.Retrieve(context.Background(), handle)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(rows) != 1 || rows[0].SegmentCode != "MR_A1M_77123" || rows[0].Lane1Count != 12 {
		t.Errorf("rows = %+v, want the staged batch back", rows)
	}
}

func TestDeleteRemovesHandle(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewStagingRepository(database)

	handle := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "temp_data" WHERE id = $1`)).
		WithArgs(handle).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), handle); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
