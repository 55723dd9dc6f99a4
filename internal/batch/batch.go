// Package batch groups a record stream into fixed-size batches.
//
// Every batch holds exactly Size records except the last, which holds
// between one and Size. An empty stream yields no batches. Batches are pulled
// lazily from the underlying iterator so the full extraction is never held in
// memory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"conduit/internal/logger"
	"conduit/internal/records"
)

// ErrInvalidSize is returned for a non-positive batch size.
var ErrInvalidSize = errors.New("batch: size must be > 0")

// Batcher pulls records from an iterator and returns them in batches.
type Batcher struct {
	it   records.Iterator
	size int
	done bool
}

// New returns a Batcher over it.
func New(it records.Iterator, size int) (*Batcher, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if it == nil {
		return nil, fmt.Errorf("batch: iterator must not be nil")
	}
	return &Batcher{it: it, size: size}, nil
}

// Next returns the next batch or io.EOF once the stream is drained. A source
// error is returned as-is; records read before it are discarded along with
// the partial batch.
func (b *Batcher) Next(ctx context.Context) ([]records.Record, error) {
	if b.done {
		return nil, io.EOF
	}
	out := make([]records.Record, 0, b.size)
	for len(out) < b.size {
		r, err := b.it.Next(ctx)
		if errors.Is(err, io.EOF) {
			b.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

// Func processes one batch. batchNo is 1-based.
type Func func(ctx context.Context, batchNo int, recs []records.Record) error

// ProgressFunc is called after every successfully processed batch with the
// running record total.
type ProgressFunc func(batchNo int, total int64)

// Process drains it in batches of size, calling fn for each and onBatch
// after each success. It returns the number of records handed to fn.
func Process(ctx context.Context, it records.Iterator, size int, fn Func, onBatch ProgressFunc) (int64, error) {
	if fn == nil {
		return 0, fmt.Errorf("batch: process func must not be nil")
	}
	b, err := New(it, size)
	if err != nil {
		return 0, err
	}

	log := logger.FromContext(ctx).WithName("conduit:batch")
	var (
		total     int64
		batchNo   int
		start     = time.Now()
		lastFlush = start
	)
	for {
		recs, err := b.Next(ctx)
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		batchNo++
		if err := fn(ctx, batchNo, recs); err != nil {
			return total, err
		}
		total += int64(len(recs))

		now := time.Now()
		since := now.Sub(lastFlush)
		rps := float64(0)
		if since > 0 {
			rps = float64(len(recs)) / since.Seconds()
		}
		log.Debug("batch complete",
			"batch", batchNo,
			"records", len(recs),
			"total", total,
			"rps", int64(rps),
			"elapsed", now.Sub(start).Truncate(time.Millisecond).String(),
		)
		lastFlush = now

		if onBatch != nil {
			onBatch(batchNo, total)
		}
	}
}
