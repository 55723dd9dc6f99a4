package incremental

import "conduit/internal/records"

// Watermark accumulates the highest incremental value seen in written
// records. It is a value: Observe returns the updated copy.
type Watermark struct {
	Column string
	Start  any
	Max    any
	// Values holds every observed value when gap tracking is enabled.
	Values []any
	track  bool
}

// NewWatermark starts a watermark at the run's floor. trackValues keeps
// all observed values for gap detection.
func NewWatermark(column string, start any, trackValues bool) Watermark {
	return Watermark{Column: column, Start: start, Max: start, track: trackValues}
}

// Observe folds the column values of recs into w.
func (w Watermark) Observe(recs []records.Record) Watermark {
	if w.Column == "" {
		return w
	}
	for _, r := range recs {
		v, ok := r[w.Column]
		if !ok || v == nil {
			continue
		}
		if w.track {
			w.Values = append(w.Values, v)
		}
		if w.Max == nil {
			w.Max = Normalize(v)
			continue
		}
		if c, ok := Compare(v, w.Max); ok && c > 0 {
			w.Max = Normalize(v)
		}
	}
	return w
}

// Advanced reports whether Max is strictly greater than Start.
func (w Watermark) Advanced() bool {
	if w.Max == nil {
		return false
	}
	if w.Start == nil {
		return true
	}
	c, ok := Compare(w.Max, w.Start)
	return ok && c > 0
}
