package quality

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"conduit/internal/fsutil"
	"conduit/internal/records"
)

// ValueCount is one entry of ColumnStats.TopValues.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnStats summarizes one column of a batch.
type ColumnStats struct {
	Name           string       `json:"name"`
	NullCount      int          `json:"null_count"`
	NullPercentage float64      `json:"null_percentage"`
	DistinctCount  int          `json:"distinct_count"`
	Min            any          `json:"min_value"`
	Max            any          `json:"max_value"`
	Mean           *float64     `json:"mean_value"`
	Median         *float64     `json:"median_value"`
	StdDev         *float64     `json:"std_dev"`
	TopValues      []ValueCount `json:"top_values"`
}

// Anomaly is a significant deviation of a batch from the baseline.
type Anomaly struct {
	Column   string  `json:"column"`
	Kind     string  `json:"anomaly_type"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
}

// Thresholds tune anomaly detection.
type Thresholds struct {
	// NullSpike is the increase in null percentage points that is reported.
	NullSpike float64
	// ZScore is how many baseline standard deviations the mean may move.
	ZScore float64
}

// DefaultThresholds reports null spikes above 20 points and mean shifts
// above three standard deviations.
var DefaultThresholds = Thresholds{NullSpike: 20, ZScore: 3}

const topN = 5

// Analyze computes per-column statistics for recs.
func Analyze(recs []records.Record) map[string]ColumnStats {
	if len(recs) == 0 {
		return nil
	}
	cols := make(map[string]struct{})
	for _, r := range recs {
		for k := range r {
			cols[k] = struct{}{}
		}
	}
	out := make(map[string]ColumnStats, len(cols))
	for col := range cols {
		values := make([]any, len(recs))
		for i, r := range recs {
			values[i] = r[col]
		}
		out[col] = columnStats(col, values)
	}
	return out
}

func columnStats(name string, values []any) ColumnStats {
	st := ColumnStats{Name: name}
	counts := make(map[string]int)
	var nums []float64
	allNumeric := true
	var minS, maxS string

	for _, v := range values {
		if isNull(v) {
			st.NullCount++
			continue
		}
		s := fmt.Sprint(v)
		if counts[s] == 0 {
			if len(counts) == 0 || s < minS {
				minS = s
			}
			if len(counts) == 0 || s > maxS {
				maxS = s
			}
		}
		counts[s]++
		if f, ok := ToFloat(v); ok && !math.IsNaN(f) {
			nums = append(nums, f)
		} else {
			allNumeric = false
		}
	}

	st.DistinctCount = len(counts)
	if len(values) > 0 {
		st.NullPercentage = float64(st.NullCount) / float64(len(values)) * 100
	}
	if len(counts) > 0 {
		st.Min, st.Max = minS, maxS
	}

	if len(nums) > 0 && allNumeric {
		sorted := append([]float64(nil), nums...)
		sort.Float64s(sorted)
		st.Min, st.Max = sorted[0], sorted[len(sorted)-1]

		mean := 0.0
		for _, f := range sorted {
			mean += f
		}
		mean /= float64(len(sorted))

		var median float64
		if n := len(sorted); n%2 == 1 {
			median = sorted[n/2]
		} else {
			median = (sorted[n/2-1] + sorted[n/2]) / 2
		}

		std := 0.0
		if len(sorted) > 1 {
			for _, f := range sorted {
				std += (f - mean) * (f - mean)
			}
			std = math.Sqrt(std / float64(len(sorted)-1))
		}
		st.Mean, st.Median, st.StdDev = &mean, &median, &std
	}

	st.TopValues = make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		st.TopValues = append(st.TopValues, ValueCount{Value: v, Count: c})
	}
	sort.Slice(st.TopValues, func(i, j int) bool {
		if st.TopValues[i].Count != st.TopValues[j].Count {
			return st.TopValues[i].Count > st.TopValues[j].Count
		}
		return st.TopValues[i].Value < st.TopValues[j].Value
	})
	if len(st.TopValues) > topN {
		st.TopValues = st.TopValues[:topN]
	}
	return st
}

// DetectAnomalies compares current against baseline column by column.
// Columns missing from the baseline are skipped.
func DetectAnomalies(baseline, current map[string]ColumnStats, th Thresholds) []Anomaly {
	var out []Anomaly
	names := make([]string, 0, len(current))
	for k := range current {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, col := range names {
		cur := current[col]
		base, ok := baseline[col]
		if !ok {
			continue
		}
		if diff := cur.NullPercentage - base.NullPercentage; diff > th.NullSpike {
			sev := "warning"
			if diff > 50 {
				sev = "critical"
			}
			out = append(out, Anomaly{
				Column:   col,
				Kind:     "null_spike",
				Severity: sev,
				Message:  fmt.Sprintf("null percentage increased by %.1f points", diff),
				Expected: base.NullPercentage,
				Actual:   cur.NullPercentage,
			})
		}
		if base.Mean != nil && base.StdDev != nil && *base.StdDev > 0 && cur.Mean != nil {
			if z := math.Abs(*cur.Mean-*base.Mean) / *base.StdDev; z > th.ZScore {
				out = append(out, Anomaly{
					Column:   col,
					Kind:     "value_range",
					Severity: "warning",
					Message:  fmt.Sprintf("mean shifted by %.1f standard deviations", z),
					Expected: *base.Mean,
					Actual:   *cur.Mean,
				})
			}
		}
	}
	return out
}

// LoadBaseline reads a baseline written by SaveBaseline. A missing file
// yields nil.
func LoadBaseline(path string) (map[string]ColumnStats, error) {
	var out map[string]ColumnStats
	err := fsutil.ReadJSON(path, &out)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return out, err
}

// SaveBaseline writes stats to path.
func SaveBaseline(path string, stats map[string]ColumnStats) error {
	return fsutil.WriteJSON(path, stats)
}
