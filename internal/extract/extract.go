// Package extract opens the record stream for a resource, fanning the read
// out over a bounded worker pool when the source allows random access.
//
// Parallel mode splits [0, total) into contiguous offset/limit ranges of
// BatchSize rows. Ranges complete in any order, so consumers must not rely
// on record order. A failing range cancels the remaining ones and the
// error is returned by the iterator; records already yielded stay yielded.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"conduit/internal/connector"
	"conduit/internal/logger"
	"conduit/internal/records"
)

// Options configures parallel extraction.
type Options struct {
	Enabled    bool
	MaxWorkers int
	BatchSize  int
}

// Mode reports how the stream is being produced.
type Mode string

const (
	ModeSerial   Mode = "serial"
	ModeParallel Mode = "parallel"
)

// Range is one offset/limit sub-read.
type Range struct {
	Offset int64
	Limit  int64
}

// Partition splits [0, total) into ranges of size rows. The last range
// may be shorter.
func Partition(total, size int64) []Range {
	if total <= 0 || size <= 0 {
		return nil
	}
	out := make([]Range, 0, (total+size-1)/size)
	for off := int64(0); off < total; off += size {
		out = append(out, Range{Offset: off, Limit: min(size, total-off)})
	}
	return out
}

// Open returns the record stream for query. It falls back to a serial
// src.Read when parallel mode is off, the source lacks BatchReader or
// Estimator, or the total is unknown or no larger than one batch.
func Open(ctx context.Context, src connector.Source, query string, opts Options, log logger.Logger) (records.Iterator, Mode, error) {
	if log == nil {
		log = logger.NewNull()
	}
	log = log.WithName("conduit:extract")

	if opts.Enabled && opts.BatchSize > 0 {
		br, okBR := src.(connector.BatchReader)
		est, okEst := src.(connector.Estimator)
		if okBR && okEst {
			total, known, err := est.EstimateTotalRecords(ctx, query)
			switch {
			case err != nil:
				log.Warn("row count estimate failed, reading serially", "error", err)
			case known && total > int64(opts.BatchSize):
				workers := max(opts.MaxWorkers, 1)
				log.Info("parallel extraction", "total", total, "batch_size", opts.BatchSize, "workers", workers)
				return startParallel(ctx, br, query, Partition(total, int64(opts.BatchSize)), workers, log), ModeParallel, nil
			}
		}
	}

	it, err := src.Read(ctx, query)
	if err != nil {
		return nil, ModeSerial, fmt.Errorf("extract: read: %w", err)
	}
	return it, ModeSerial, nil
}

type parallelIterator struct {
	results <-chan []records.Record
	cancel  context.CancelFunc
	errOnce sync.Once
	errc    <-chan error
	err     error

	cur []records.Record
	pos int
}

func startParallel(ctx context.Context, br connector.BatchReader, query string, ranges []Range, workers int, log logger.Logger) *parallelIterator {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make(chan []records.Record, workers)
	errc := make(chan error, 1)

	go func() {
		for _, r := range ranges {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				recs, err := br.ReadBatch(gctx, query, r.Offset, r.Limit)
				if err != nil {
					return fmt.Errorf("extract: range offset=%d limit=%d: %w", r.Offset, r.Limit, err)
				}
				log.Trace("range complete", "offset", r.Offset, "records", len(recs))
				select {
				case results <- recs:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		errc <- g.Wait()
		close(results)
	}()

	return &parallelIterator{results: results, cancel: cancel, errc: errc}
}

func (p *parallelIterator) Next(ctx context.Context) (records.Record, error) {
	for p.pos >= len(p.cur) {
		if p.err != nil {
			return nil, p.err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case recs, ok := <-p.results:
			if !ok {
				p.errOnce.Do(func() { p.err = <-p.errc })
				if p.err != nil {
					return nil, p.err
				}
				p.err = io.EOF
				return nil, io.EOF
			}
			p.cur, p.pos = recs, 0
		}
	}
	r := p.cur[p.pos]
	p.pos++
	return r, nil
}

// Close stops outstanding workers and waits for them to exit. Worker
// errors are reported through Next only.
func (p *parallelIterator) Close() error {
	p.cancel()
	for range p.results {
	}
	p.errOnce.Do(func() {
		if err := <-p.errc; err != nil && !errors.Is(err, context.Canceled) {
			p.err = err
		}
	})
	return nil
}
