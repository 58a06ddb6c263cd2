package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	ErrInvalidFilename = errors.New("invalid filename schema, expected <segment>_<digits>_<YYYY-MM-DD>_POJAZDY.<xlsx|csv>")
	ErrMissingColumns  = errors.New("missing columns")
	ErrExtraColumns    = errors.New("unexpected columns")
	ErrTimestampParse  = errors.New("error parsing timestamps")
)

// Export files keep the measurement-station column vocabulary.
const (
	colID       = "Id"
	colTime     = "Data"
	colCategory = "Kategoria"
	colLane     = "Pas ruchu"
	colSpeed    = "Prędkość"
	colGap      = "Przestrzeń między poprzedzającym pojazdem w dziesiętnych częściach sekundy"
	colLength   = "Długość pojazdu w cm"
	colWrongWay = "Kierunek pod prąd"
)

var requiredColumns = []string{colID, colTime, colCategory, colLane, colSpeed, colGap, colLength, colWrongWay}

const timestampLayout = "2006-01-02 15:04:05"

// Source data is recorded one hour behind the reporting timezone.
const sourceClockOffset = time.Hour

const bucketWidth = 15 * time.Minute

// Segment code is everything before the trailing _<date>_POJAZDY.<ext> suffix;
// the code itself must end in an _<digits> station number.
var filenamePattern = regexp.MustCompile(`^(.*_\d+)_\d{4}-\d{2}-\d{2}_POJAZDY\.(xlsx|csv)$`)

// ValidatedTable is a Table that passed schema validation, with the bucket
// start derived for every row and the segment code taken from the filename.
// The underlying Table is not mutated.
type ValidatedTable struct {
	*Table
	SegmentCode string
	Buckets     []time.Time

	colIdx map[string]int
}

// SegmentCodeFromFilename extracts the segment code from an export filename,
// or returns ErrInvalidFilename when the name does not follow the convention.
func SegmentCodeFromFilename(filename string) (string, error) {
	base := filepath.Base(filename)
	m := filenamePattern.FindStringSubmatch(base)
	if m == nil {
		return "", ErrInvalidFilename
	}
	return m[1], nil
}

// Validate checks the filename convention and the exact column set, parses and
// buckets every timestamp, and attaches the segment code. Both missing and
// extra columns are rejected, each with a message naming the offenders.
func Validate(filename string, t *Table) (*ValidatedTable, error) {
	segment, err := SegmentCodeFromFilename(filename)
	if err != nil {
		return nil, err
	}

	colIdx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		colIdx[c] = i
	}

	var missing, extra []string
	for _, c := range requiredColumns {
		if _, ok := colIdx[c]; !ok {
			missing = append(missing, c)
		}
	}
	required := make(map[string]struct{}, len(requiredColumns))
	for _, c := range requiredColumns {
		required[c] = struct{}{}
	}
	for _, c := range t.Columns {
		if _, ok := required[c]; !ok {
			extra = append(extra, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, fmt.Errorf("%w: %s", ErrExtraColumns, strings.Join(extra, ", "))
	}

	timeIdx := colIdx[colTime]
	buckets := make([]time.Time, len(t.Rows))
	for i, row := range t.Rows {
		raw := strings.TrimSpace(t.cell(row, timeIdx))
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %q", ErrTimestampParse, i+1, raw)
		}
		shifted := ts.Add(sourceClockOffset)
		buckets[i] = shifted.Truncate(bucketWidth)
	}

	return &ValidatedTable{
		Table:       t,
		SegmentCode: segment,
		Buckets:     buckets,
		colIdx:      colIdx,
	}, nil
}

// parseTimestamp accepts the textual export layout, or an Excel serial date
// from a styled datetime cell read raw. Serial conversion is rounded to the
// second to shed float noise before bucketing.
func parseTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(timestampLayout, raw)
	if err == nil {
		return ts, nil
	}

	serial, ferr := strconv.ParseFloat(raw, 64)
	if ferr != nil {
		return time.Time{}, err
	}
	ts, ferr = excelize.ExcelDateToTime(serial, false)
	if ferr != nil {
		return time.Time{}, err
	}
	return ts.Round(time.Second), nil
}
