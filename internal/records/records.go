// Package records defines the record model shared by connectors and the
// engine, plus the pull-style iterator every source returns.
package records

import (
	"context"
	"io"
)

// Record is a single row keyed by column name. Values are scalars
// (string, int64, float64, bool, json.Number), time.Time, []byte or nil.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Iterator yields records one at a time. Next returns io.EOF when the
// sequence is exhausted; any other error ends the iteration.
type Iterator interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// SliceIterator iterates an in-memory slice.
type SliceIterator struct {
	recs []Record
	pos  int
}

// FromSlice returns an Iterator over recs.
func FromSlice(recs []Record) *SliceIterator { return &SliceIterator{recs: recs} }

func (s *SliceIterator) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.recs) {
		return nil, io.EOF
	}
	r := s.recs[s.pos]
	s.pos++
	return r, nil
}

func (s *SliceIterator) Close() error { return nil }

// Func adapts a next function and an optional close function to Iterator.
type Func struct {
	NextFn  func(ctx context.Context) (Record, error)
	CloseFn func() error
}

func (f Func) Next(ctx context.Context) (Record, error) { return f.NextFn(ctx) }

func (f Func) Close() error {
	if f.CloseFn == nil {
		return nil
	}
	return f.CloseFn()
}

// Prepend returns an Iterator that yields head before continuing with rest.
// The engine uses it to put schema-sampling records back in front of the
// stream they were taken from.
func Prepend(head []Record, rest Iterator) Iterator {
	i := 0
	return Func{
		NextFn: func(ctx context.Context) (Record, error) {
			if i < len(head) {
				r := head[i]
				i++
				return r, nil
			}
			return rest.Next(ctx)
		},
		CloseFn: rest.Close,
	}
}

// Collect drains it into a slice and closes it.
func Collect(ctx context.Context, it Iterator) ([]Record, error) {
	defer it.Close()
	var out []Record
	for {
		r, err := it.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}
