package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"traffic-profile-service/internal/domain/traffic"
	"traffic-profile-service/internal/metrics"
	"traffic-profile-service/internal/model"
	"traffic-profile-service/internal/repository"
	"traffic-profile-service/internal/sections"
)

var (
	// ErrNoData is returned when the primary range holds no rows for the segment.
	ErrNoData = errors.New("no data to display")

	// ErrInvalidDate is returned when a submitted date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date format, expected YYYY-MM-DD")
)

const dateLayout = "2006-01-02"

// DateRange is one inclusive report range, both ends formatted YYYY-MM-DD.
type DateRange struct {
	Start string
	End   string
}

// IsZero reports whether the range is incomplete and should be skipped.
func (r DateRange) IsZero() bool {
	return r.Start == "" || r.End == ""
}

// ReportRequest describes one time-of-day profile query. Both ranges are
// optional: an absent primary range means the segment's full history, an
// absent comparison range means no second series. DayOfWeek is an English
// weekday name or empty for all days.
type ReportRequest struct {
	Primary      DateRange
	Comparison   DateRange
	CarType      model.CarType
	DayOfWeek    string
	SectionLabel string
}

// ProfilePoint is one time-of-day slot: the clock label and the mean hourly
// vehicle count across the qualifying days.
type ProfilePoint struct {
	Time  string  `json:"time"`
	Count float64 `json:"count"`
}

// Report is a built profile, ready for the chart payload and the CSV export.
type Report struct {
	SegmentCode string
	Title       string
	Primary     []ProfilePoint
	// Comparison is aligned to Primary's time labels, zero-filled where the
	// second range has no observations. Nil when no second range was given.
	Comparison []ProfilePoint
	CSV        string
}

// ReportService builds time-of-day traffic profiles from the persisted
// interval rows.
type ReportService struct {
	resolver *sections.Resolver
	log      zerolog.Logger
	metrics  *metrics.Collector
}

func NewReportService(resolver *sections.Resolver, log zerolog.Logger, collector *metrics.Collector) *ReportService {
	return &ReportService{
		resolver: resolver,
		log:      log,
		metrics:  collector,
	}
}

// BuildReport resolves the section label, fetches the requested ranges and
// folds them into hourly time-of-day profiles.
func (s *ReportService) BuildReport(ctx context.Context, database *gorm.DB, req ReportRequest) (report *Report, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("processing error: %v", r)
		}
	}()

	if err := validateRange(req.Primary); err != nil {
		return nil, err
	}
	if err := validateRange(req.Comparison); err != nil {
		return nil, err
	}

	code, err := s.resolver.Reverse(req.SectionLabel)
	if err != nil {
		return nil, err
	}

	repo := repository.NewIntervalRepository(database)
	rows, err := repo.FetchRange(ctx, req.Primary.Start, req.Primary.End, code)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	primary := buildProfile(rows, req.CarType, req.DayOfWeek)

	var comparison []ProfilePoint
	if !req.Comparison.IsZero() {
		rows2, err := repo.FetchRange(ctx, req.Comparison.Start, req.Comparison.End, code)
		if err != nil {
			return nil, err
		}
		comparison = alignProfiles(primary, buildProfile(rows2, req.CarType, req.DayOfWeek))
	}

	report = &Report{
		SegmentCode: code,
		Title:       buildTitle(req, code),
		Primary:     primary,
		Comparison:  comparison,
		CSV:         renderCSV(req, code, primary, comparison),
	}

	s.metrics.ReportsTotal.Inc()
	s.metrics.ProcessingDuration.WithLabelValues("report").Observe(time.Since(start).Seconds())
	s.log.Debug().
		Str("segment", code).
		Str("car_type", string(req.CarType)).
		Int("points", len(primary)).
		Msg("report built")

	return report, nil
}

// validateRange checks the format of whichever ends were submitted. An
// incomplete range is not an error; the fetch treats it as unbounded.
func validateRange(r DateRange) error {
	for _, d := range []string{r.Start, r.End} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, d)
		}
	}
	return nil
}

// countFor picks the per-row vehicle count for the requested category. Heavy
// and light sum their two per-lane counters; the combined selection uses the
// per-lane totals.
func countFor(row traffic.IntervalAggregate, carType model.CarType) int {
	switch carType {
	case model.CarTypeHeavy:
		return row.HeavyLane1Count + row.HeavyLane2Count
	case model.CarTypeLight:
		return row.LightLane1Count + row.LightLane2Count
	default:
		return row.Lane1Count + row.Lane2Count
	}
}

// buildProfile folds interval rows into a time-of-day profile: buckets are
// summed per calendar hour, then the hourly totals are averaged across days
// by clock time. The optional weekday filter drops hours on other days before
// averaging.
func buildProfile(rows []traffic.IntervalAggregate, carType model.CarType, dayOfWeek string) []ProfilePoint {
	wantDay, filterDay := model.WeekdayNumber(dayOfWeek)

	hourly := make(map[time.Time]int)
	for _, row := range rows {
		if filterDay && mondayIndex(row.BucketStart) != wantDay {
			continue
		}
		hourly[row.BucketStart.Truncate(time.Hour)] += countFor(row, carType)
	}

	totals := make(map[string]int)
	observations := make(map[string]int)
	for hour, count := range hourly {
		label := hour.Format("15:04:05")
		totals[label] += count
		observations[label]++
	}

	points := make([]ProfilePoint, 0, len(totals))
	for label, total := range totals {
		points = append(points, ProfilePoint{
			Time:  label,
			Count: round1(float64(total) / float64(observations[label])),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time < points[j].Time })
	return points
}

// alignProfiles reshapes the secondary profile onto the primary's time axis,
// filling slots the second range never observed with zero.
func alignProfiles(primary, secondary []ProfilePoint) []ProfilePoint {
	byLabel := make(map[string]float64, len(secondary))
	for _, p := range secondary {
		byLabel[p.Time] = p.Count
	}

	aligned := make([]ProfilePoint, len(primary))
	for i, p := range primary {
		aligned[i] = ProfilePoint{Time: p.Time, Count: byLabel[p.Time]}
	}
	return aligned
}

// mondayIndex maps a timestamp's weekday to the Monday=0 numbering used by
// the report filter.
func mondayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// buildTitle renders the chart title with the <br> line breaks the frontend
// splits on.
func buildTitle(req ReportRequest, code string) string {
	var b strings.Builder
	b.WriteString("Średnia liczba samochodów")
	if req.DayOfWeek != "" {
		b.WriteString("<br>Dzień tygodnia: ")
		b.WriteString(model.TranslateWeekday(req.DayOfWeek))
	}
	b.WriteString("<br>Typ samochodu: ")
	b.WriteString(req.CarType.Label())
	b.WriteString("<br>Numer MR: ")
	b.WriteString(code)
	return b.String()
}

var csvHeader = []string{
	"Okres",
	"Data początkowa",
	"Data końcowa",
	"Czas",
	"Średnia liczba samochodów",
	"Typ samochodu",
	"Numer MR",
}

// renderCSV flattens the profiles into the downloadable report, one row per
// time-of-day slot per range.
func renderCSV(req ReportRequest, code string, primary, comparison []ProfilePoint) string {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	_ = w.Write(csvHeader)
	writeProfileRows(w, "Okres 1", req.Primary, primary, req.CarType, code)
	if comparison != nil {
		writeProfileRows(w, "Okres 2", req.Comparison, comparison, req.CarType, code)
	}
	w.Flush()

	return buf.String()
}

func writeProfileRows(w *csv.Writer, period string, r DateRange, points []ProfilePoint, carType model.CarType, code string) {
	for _, p := range points {
		_ = w.Write([]string{
			period,
			r.Start,
			r.End,
			p.Time,
			strconv.FormatFloat(p.Count, 'f', 1, 64),
			carType.Label(),
			code,
		})
	}
}
