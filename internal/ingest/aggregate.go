package ingest

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"traffic-profile-service/internal/domain/traffic"
)

const (
	categoryHeavy = "H"
	categoryLight = "L"
)

// meanAcc accumulates a mean over contributing rows only. With no
// contributors the mean is undefined (nil), never zero.
type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(v float64) {
	m.sum += v
	m.n++
}

func (m *meanAcc) mean() *float64 {
	if m.n == 0 {
		return nil
	}
	v := round1(m.sum / float64(m.n))
	return &v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type groupAcc struct {
	gap      meanAcc
	wrongWay int

	laneTotal [2]int
	count     [2][2]int // [lane][category]
	speed     [2][2]meanAcc
	length    [2][2]meanAcc
}

// Aggregate groups a validated table by (bucket start, segment code) and
// reduces each group to one IntervalAggregate row. Speed and length means are
// computed over the matching lane x category subset only.
//
// A nil table or an empty table is a caller contract violation and panics
// with a fixed message; cell values that cannot be coerced to numbers are a
// data problem and come back as an error carrying the cause.
func Aggregate(vt *ValidatedTable) ([]traffic.IntervalAggregate, error) {
	if vt == nil || vt.Table == nil {
		panic("expected a table object")
	}
	if len(vt.Rows) == 0 {
		panic("table is empty")
	}

	laneIdx := vt.colIdx[colLane]
	catIdx := vt.colIdx[colCategory]
	speedIdx := vt.colIdx[colSpeed]
	gapIdx := vt.colIdx[colGap]
	lengthIdx := vt.colIdx[colLength]
	wrongWayIdx := vt.colIdx[colWrongWay]

	groups := make(map[time.Time]*groupAcc)
	for i, row := range vt.Rows {
		lane, err := parseIntCell(vt.cell(row, laneIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d: column %q: %s", i+1, colLane, err)
		}
		wrongWay, err := parseIntCell(vt.cell(row, wrongWayIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d: column %q: %s", i+1, colWrongWay, err)
		}
		speed, speedOK, err := parseFloatCell(vt.cell(row, speedIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d: column %q: %s", i+1, colSpeed, err)
		}
		gap, gapOK, err := parseFloatCell(vt.cell(row, gapIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d: column %q: %s", i+1, colGap, err)
		}
		length, lengthOK, err := parseFloatCell(vt.cell(row, lengthIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d: column %q: %s", i+1, colLength, err)
		}

		g := groups[vt.Buckets[i]]
		if g == nil {
			g = &groupAcc{}
			groups[vt.Buckets[i]] = g
		}

		g.wrongWay += wrongWay
		if gapOK {
			g.gap.add(gap)
		}

		if lane != 1 && lane != 2 {
			continue
		}
		li := lane - 1
		g.laneTotal[li]++

		var ci int
		switch strings.TrimSpace(vt.cell(row, catIdx)) {
		case categoryHeavy:
			ci = 0
		case categoryLight:
			ci = 1
		default:
			continue
		}
		g.count[li][ci]++
		if speedOK {
			g.speed[li][ci].add(speed)
		}
		if lengthOK {
			g.length[li][ci].add(length)
		}
	}

	buckets := make([]time.Time, 0, len(groups))
	for b := range groups {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })

	out := make([]traffic.IntervalAggregate, 0, len(buckets))
	for _, b := range buckets {
		g := groups[b]
		out = append(out, traffic.IntervalAggregate{
			BucketStart:   b,
			SegmentCode:   vt.SegmentCode,
			MeanGap:       g.gap.mean(),
			WrongWayCount: g.wrongWay,

			Lane1Count:       g.laneTotal[0],
			HeavyLane1Count:  g.count[0][0],
			HeavyLane1Speed:  g.speed[0][0].mean(),
			HeavyLane1Length: g.length[0][0].mean(),
			LightLane1Count:  g.count[0][1],
			LightLane1Speed:  g.speed[0][1].mean(),
			LightLane1Length: g.length[0][1].mean(),

			Lane2Count:       g.laneTotal[1],
			HeavyLane2Count:  g.count[1][0],
			HeavyLane2Speed:  g.speed[1][0].mean(),
			HeavyLane2Length: g.length[1][0].mean(),
			LightLane2Count:  g.count[1][1],
			LightLane2Speed:  g.speed[1][1].mean(),
			LightLane2Length: g.length[1][1].mean(),
		})
	}

	return out, nil
}

func parseIntCell(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// parseFloatCell returns ok=false for empty cells; those rows simply do not
// contribute to the mean.
func parseFloatCell(raw string) (float64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
