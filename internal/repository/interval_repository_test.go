package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"traffic-profile-service/internal/domain/traffic"
)

func TestFetchRangeBounded(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewIntervalRepository(database)

	ts := time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "pojazdy" WHERE numer_odcinka = $1 AND (data_15min BETWEEN $2 AND $3) ORDER BY data_15min`)).
		WithArgs("MR_A1M_77123", "2026-01-05 00:00:00", "2026-01-11 23:59:59").
		WillReturnRows(sqlmock.NewRows([]string{"data_15min", "numer_odcinka", "liczba_na_pasie_1"}).
			AddRow(ts, "MR_A1M_77123", 12))

	rows, err := repo.FetchRange(context.Background(), "2026-01-05", "2026-01-11", "MR_A1M_77123")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 || rows[0].Lane1Count != 12 {
		t.Errorf("rows = %+v, want the one bucket", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFetchRangeWithoutDatesReturnsFullHistory(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewIntervalRepository(database)

	ts := time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "pojazdy" WHERE numer_odcinka = $1 ORDER BY data_15min`)).
		WithArgs("MR_A1M_77123").
		WillReturnRows(sqlmock.NewRows([]string{"data_15min", "numer_odcinka", "liczba_na_pasie_1"}).
			AddRow(ts, "MR_A1M_77123", 7))

	rows, err := repo.FetchRange(context.Background(), "", "", "MR_A1M_77123")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 || rows[0].Lane1Count != 7 {
		t.Errorf("rows = %+v, want the unbounded history", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHasConflictStopsAtFirstCollision(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewIntervalRepository(database)

	// Only one probe is expected; a second query would fail the mock.
	mock.ExpectQuery(`SELECT count\(\*\) FROM "pojazdy"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := []traffic.IntervalAggregate{
		{BucketStart: time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC), SegmentCode: "MR_A1M_77123"},
		{BucketStart: time.Date(2026, 1, 5, 11, 15, 0, 0, time.UTC), SegmentCode: "MR_A1M_77123"},
	}
	conflict, err := repo.HasConflict(context.Background(), rows)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !conflict {
		t.Error("conflict = false, want true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
