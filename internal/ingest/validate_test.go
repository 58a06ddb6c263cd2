package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func exportTable(rows ...[]string) *Table {
	return &Table{
		Columns: append([]string(nil), requiredColumns...),
		Rows:    rows,
	}
}

func detectionRow(ts, category, lane, speed, gap, length, wrongWay string) []string {
	return []string{"1", ts, category, lane, speed, gap, length, wrongWay}
}

func TestSegmentCodeFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		segment  string
		wantErr  bool
	}{
		{
			name:     "xlsx export",
			filename: "MR_A1M_123_2024-03-01_POJAZDY.xlsx",
			segment:  "MR_A1M_123",
		},
		{
			name:     "csv export",
			filename: "S7_002_2024-12-31_POJAZDY.csv",
			segment:  "S7_002",
		},
		{
			name:     "path is stripped",
			filename: "/tmp/uploads/MR_A1M_123_2024-03-01_POJAZDY.xlsx",
			segment:  "MR_A1M_123",
		},
		{
			name:     "missing station number",
			filename: "MR_A1M_2024-03-01_POJAZDY.xlsx",
			wantErr:  true,
		},
		{
			name:     "missing date",
			filename: "MR_A1M_123_POJAZDY.xlsx",
			wantErr:  true,
		},
		{
			name:     "wrong suffix",
			filename: "MR_A1M_123_2024-03-01_VEHICLES.xlsx",
			wantErr:  true,
		},
		{
			name:     "wrong extension",
			filename: "MR_A1M_123_2024-03-01_POJAZDY.xls",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segment, err := SegmentCodeFromFilename(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFilename) {
					t.Fatalf("expected ErrInvalidFilename, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if segment != tt.segment {
				t.Errorf("segment = %q, want %q", segment, tt.segment)
			}
		})
	}
}

func TestValidateColumnSet(t *testing.T) {
	const filename = "MR_A1M_123_2024-03-01_POJAZDY.xlsx"

	t.Run("missing column named in error", func(t *testing.T) {
		table := exportTable()
		table.Columns = table.Columns[:len(table.Columns)-1] // drop wrong-way flag

		_, err := Validate(filename, table)
		if !errors.Is(err, ErrMissingColumns) {
			t.Fatalf("expected ErrMissingColumns, got %v", err)
		}
		if !strings.Contains(err.Error(), colWrongWay) {
			t.Errorf("error %q does not name the missing column", err)
		}
	})

	t.Run("extra column named in error", func(t *testing.T) {
		table := exportTable()
		table.Columns = append(table.Columns, "Uwagi")

		_, err := Validate(filename, table)
		if !errors.Is(err, ErrExtraColumns) {
			t.Fatalf("expected ErrExtraColumns, got %v", err)
		}
		if !strings.Contains(err.Error(), "Uwagi") {
			t.Errorf("error %q does not name the extra column", err)
		}
	})

	t.Run("missing wins over extra", func(t *testing.T) {
		table := exportTable()
		table.Columns[0] = "Identyfikator" // Id replaced by an unknown column

		_, err := Validate(filename, table)
		if !errors.Is(err, ErrMissingColumns) {
			t.Fatalf("expected ErrMissingColumns, got %v", err)
		}
	})
}

func TestValidateTimestamps(t *testing.T) {
	const filename = "MR_A1M_123_2024-03-01_POJAZDY.xlsx"

	t.Run("shifted one hour and floored to bucket", func(t *testing.T) {
		table := exportTable(
			detectionRow("2024-03-01 10:14:59", "H", "1", "80", "12", "750", "0"),
			detectionRow("2024-03-01 10:15:00", "L", "2", "90", "15", "420", "0"),
			detectionRow("2024-03-01 23:59:59", "L", "1", "90", "15", "420", "0"),
		)

		vt, err := Validate(filename, table)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if vt.SegmentCode != "MR_A1M_123" {
			t.Errorf("segment = %q, want MR_A1M_123", vt.SegmentCode)
		}

		want := []time.Time{
			time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 1, 11, 15, 0, 0, time.UTC),
			time.Date(2024, 3, 2, 0, 45, 0, 0, time.UTC),
		}
		for i, b := range vt.Buckets {
			if !b.Equal(want[i]) {
				t.Errorf("bucket[%d] = %v, want %v", i, b, want[i])
			}
		}
	})

	t.Run("styled xlsx datetime read as serial", func(t *testing.T) {
		// A styled datetime cell comes back from a raw read as the Excel
		// serial; 45352.5 is 2024-03-01 12:00:00.
		table := exportTable(
			detectionRow("45352.5", "H", "1", "80", "12", "750", "0"),
		)

		vt, err := Validate(filename, table)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
		if !vt.Buckets[0].Equal(want) {
			t.Errorf("bucket = %v, want %v", vt.Buckets[0], want)
		}
	})

	t.Run("unparseable timestamp rejected", func(t *testing.T) {
		table := exportTable(
			detectionRow("01.03.2024 10:00", "H", "1", "80", "12", "750", "0"),
		)

		_, err := Validate(filename, table)
		if !errors.Is(err, ErrTimestampParse) {
			t.Fatalf("expected ErrTimestampParse, got %v", err)
		}
	})

	t.Run("input table not mutated", func(t *testing.T) {
		row := detectionRow("2024-03-01 10:14:59", "H", "1", "80", "12", "750", "0")
		table := exportTable(row)

		if _, err := Validate(filename, table); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(table.Columns) != len(requiredColumns) || len(table.Rows[0]) != len(requiredColumns) {
			t.Error("validation must not reshape the original table")
		}
	})
}

func TestParseUploadRejectsUnknownExtension(t *testing.T) {
	_, err := ParseUpload("detections.txt", strings.NewReader("Id\n1\n"))
	if !errors.Is(err, ErrInvalidFilename) {
		t.Fatalf("expected ErrInvalidFilename, got %v", err)
	}
}

func TestParseUploadCSV(t *testing.T) {
	csvBody := strings.Join(requiredColumns, ",") + "\n" +
		"1,2024-03-01 10:02:11,H,1,80,12,750,0\n"

	table, err := ParseUpload("MR_A1M_123_2024-03-01_POJAZDY.csv", strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Columns) != len(requiredColumns) {
		t.Fatalf("columns = %d, want %d", len(table.Columns), len(requiredColumns))
	}
	if len(table.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(table.Rows))
	}
	if table.Rows[0][1] != "2024-03-01 10:02:11" {
		t.Errorf("timestamp cell = %q", table.Rows[0][1])
	}
}
