package sections

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"traffic-profile-service/internal/utils"
)

var (
	ErrWorkbookMissing  = errors.New("file does not exist")
	ErrIdentifierColumn = errors.New("identifier column not found")
	ErrLabelPattern     = errors.New("does not match expected pattern")
	ErrNoMatch          = errors.New("no matching identifier found")
	ErrLocationNotFound = errors.New("location not found")
)

// Display labels look like "123 (A1, km 401.5, Węzeł Tuszyn)". The reverse
// direction parses exactly this shape.
var labelPattern = regexp.MustCompile(`^(\d+)\s*\(([^,]+),\s*km\s*(\d+(?:[.,]\d+)?),\s*([^)]*)\)`)

// refEntry is one row of the reference workbook. Entries keep workbook order;
// reverse resolution is first-match-wins in that order.
type refEntry struct {
	Code     string
	Road     string
	Milepost string
	Location string
}

// Resolver converts between internal segment codes and display labels using
// the measurement-station reference workbook.
type Resolver struct {
	path string
}

func NewResolver(workbookPath string) *Resolver {
	return &Resolver{path: workbookPath}
}

// loadEntries scans every sheet for an identifier column. Sheets without one
// are skipped; only a workbook where no sheet carries it is an error.
func (r *Resolver) loadEntries() ([]refEntry, error) {
	if _, err := os.Stat(r.path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkbookMissing, r.path)
	}

	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %s", err)
	}
	defer f.Close()

	var entries []refEntry
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("error reading file: %s", err)
		}
		if len(rows) < 1 {
			continue
		}

		cols := headerIndex(rows[0])
		idIdx, ok := cols["id_mr"]
		if !ok {
			continue
		}
		roadIdx := columnOr(cols, "droga")
		milepostIdx := columnOr(cols, "pikietaż", "pikieta")
		locationIdx := columnOr(cols, "lokalizacja")

		for _, row := range rows[1:] {
			code := strings.TrimSpace(cellAt(row, idIdx))
			if code == "" {
				continue
			}
			entries = append(entries, refEntry{
				Code:     code,
				Road:     strings.TrimSpace(cellAt(row, roadIdx)),
				Milepost: strings.TrimSpace(cellAt(row, milepostIdx)),
				Location: strings.TrimSpace(cellAt(row, locationIdx)),
			})
		}
	}

	if len(entries) == 0 {
		return nil, ErrIdentifierColumn
	}
	return entries, nil
}

// ListSections enumerates every segment code present in the persisted table
// and joins each with its workbook description into a display label.
func (r *Resolver) ListSections(ctx context.Context, db *gorm.DB) ([]string, error) {
	entries, err := r.loadEntries()
	if err != nil {
		return nil, err
	}

	var codes []string
	err = db.WithContext(ctx).
		Raw("SELECT DISTINCT numer_odcinka FROM pojazdy ORDER BY numer_odcinka").
		Scan(&codes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list segment codes: %w", err)
	}

	byCode := make(map[string]refEntry, len(entries))
	for _, e := range entries {
		if _, seen := byCode[e.Code]; !seen {
			byCode[e.Code] = e
		}
	}

	labels := make([]string, 0, len(codes))
	for _, code := range codes {
		labels = append(labels, formatLabel(code, byCode[code]))
	}
	return labels, nil
}

// formatLabel builds "<suffix> (<road>, km <milepost>, <location>)". The
// suffix is the code part after the last underscore; the descriptive fields
// disambiguate codes sharing a suffix.
func formatLabel(code string, e refEntry) string {
	suffix := code
	if i := strings.LastIndex(code, "_"); i >= 0 {
		suffix = code[i+1:]
	}
	return fmt.Sprintf("%s (%s, km %s, %s)", suffix, e.Road, e.Milepost, e.Location)
}

// Reverse resolves a display label back to the full segment code. The label
// only carries the numeric suffix of the code, so candidates are narrowed by
// exact road/milepost/location equality and then suffix-matched; the first
// hit in workbook order wins.
func (r *Resolver) Reverse(label string) (string, error) {
	m := labelPattern.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return "", ErrLabelPattern
	}
	suffix := strings.TrimSpace(m[1])
	road := strings.TrimSpace(m[2])
	milepost := strings.TrimSpace(m[3])
	location := strings.TrimSpace(m[4])

	entries, err := r.loadEntries()
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		if e.Road != road || e.Milepost != milepost || e.Location != location {
			continue
		}
		if strings.HasSuffix(e.Code, suffix) {
			return e.Code, nil
		}
	}
	return "", ErrNoMatch
}

// Location reverse-resolves a label and returns the WGS84 coordinates stored
// for that code on any sheet carrying coordinate columns.
func (r *Resolver) Location(label string) (n, e string, err error) {
	code, err := r.Reverse(label)
	if err != nil {
		return "", "", err
	}

	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return "", "", fmt.Errorf("error reading file: %s", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", "", fmt.Errorf("error reading file: %s", err)
		}
		if len(rows) < 1 {
			continue
		}
		cols := headerIndex(rows[0])
		idIdx, hasID := cols["id_mr"]
		nIdx, hasN := cols["n_wgs84"]
		eIdx, hasE := cols["e_wgs84"]
		if !hasID || !hasN || !hasE {
			continue
		}
		for _, row := range rows[1:] {
			if strings.TrimSpace(cellAt(row, idIdx)) == code {
				return strings.TrimSpace(cellAt(row, nIdx)), strings.TrimSpace(cellAt(row, eIdx)), nil
			}
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrLocationNotFound, code)
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := utils.NormalizeHeader(h)
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}
	return cols
}

// columnOr returns the index of the first present alias, or -1.
func columnOr(cols map[string]int, names ...string) int {
	for _, n := range names {
		if idx, ok := cols[n]; ok {
			return idx
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
