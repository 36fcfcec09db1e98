package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/CZERTAINLY/vuln-lens/internal/log"
	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/parallel"
	"github.com/CZERTAINLY/vuln-lens/internal/stats"
)

// ErrTooBig is returned for documents over the batch size limit.
var ErrTooBig = errors.New("document too big")

// DefaultSizeLimit is the largest document a Batch reads.
const DefaultSizeLimit = 64 * 1024 * 1024

// Processor turns the content of one scan document into its encoded result.
// Implementations must be safe for concurrent use and must not modify b.
type Processor interface {
	Process(ctx context.Context, b []byte, path string) ([]byte, error)
}

// Output is the encoded result of one document.
type Output struct {
	Path string
	Raw  []byte
}

// DocumentError ties an error to the document it was returned for.
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Batch processes many documents on a bounded number of workers. Every
// document is independent, a failure of one never stops the others.
type Batch struct {
	limit          int
	skipIfBigger   int64
	processor      Processor
	counter        *stats.Stats
	pool           sync.Pool
	poolNewCounter atomic.Int32
	poolPutCounter atomic.Int32
}

type Stats struct {
	PoolNewCounter int
	PoolPutCounter int
}

func NewBatch(limit int, counter *stats.Stats, processor Processor) *Batch {
	b := &Batch{
		limit:        limit,
		skipIfBigger: DefaultSizeLimit,
		processor:    processor,
		counter:      counter,
	}
	b.pool = sync.Pool{
		New: func() any {
			b.poolNewCounter.Add(1)
			return new(bytes.Buffer)
		},
	}
	return b
}

// WithSizeLimit changes the largest document size in bytes.
func (b *Batch) WithSizeLimit(n int64) *Batch {
	b.skipIfBigger = n
	return b
}

// Do reads the entries of seq and processes them in parallel
//  1. an entry with a stat error is returned as a DocumentError
//  2. an entry bigger than the size limit is skipped with ErrTooBig
//  3. otherwise the content is passed to the Processor
//
// Results come in completion order.
func (b *Batch) Do(ctx context.Context, seq iter.Seq2[model.Entry, error]) iter.Seq2[Output, error] {
	return parallel.NewMap(ctx, b.limit, b.process).Iter(seq)
}

// Run processes seq and writes every result to all sinks under the document
// path. It returns the number of written documents and all errors joined.
func (b *Batch) Run(ctx context.Context, seq iter.Seq2[model.Entry, error], sinks ...model.Sink) (int, error) {
	var n int
	var errs []error
	for out, err := range b.Do(ctx, seq) {
		if err != nil {
			slog.ErrorContext(ctx, "document failed", "error", err)
			errs = append(errs, err)
			continue
		}
		if err := write(ctx, sinks, out.Path, out.Raw); err != nil {
			errs = append(errs, &DocumentError{Path: out.Path, Err: err})
			continue
		}
		n++
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return n, errors.Join(errs...)
}

func (b *Batch) process(ctx context.Context, entry model.Entry) (Output, error) {
	path := entry.Path()
	ctx = log.ContextAttrs(ctx, slog.String("path", path))
	slog.DebugContext(ctx, "processing")
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}
	fail := func(err error) (Output, error) {
		b.counter.IncErrFiles()
		return Output{}, &DocumentError{Path: path, Err: err}
	}

	info, err := entry.Stat()
	if err != nil {
		return fail(fmt.Errorf("stat: %w", err))
	}
	if info.Size() > b.skipIfBigger {
		slog.DebugContext(ctx, "excluded too big", "size", info.Size())
		b.counter.IncExcludedFiles()
		return Output{}, &DocumentError{
			Path: path,
			Err:  fmt.Errorf("%d bytes: %w", info.Size(), ErrTooBig),
		}
	}

	f, err := entry.Open()
	if err != nil {
		return fail(fmt.Errorf("open: %w", err))
	}
	defer func() {
		_ = f.Close() // read only
	}()

	buf := b.pool.Get().(*bytes.Buffer)
	defer func() {
		b.poolPutCounter.Add(1)
		b.pool.Put(buf)
	}()
	buf.Reset()
	if _, err := io.Copy(buf, io.LimitReader(f, b.skipIfBigger+1)); err != nil {
		return fail(fmt.Errorf("read: %w", err))
	}
	if int64(buf.Len()) > b.skipIfBigger {
		b.counter.IncExcludedFiles()
		return Output{}, &DocumentError{Path: path, Err: ErrTooBig}
	}

	raw, err := b.processor.Process(ctx, buf.Bytes(), path)
	if err != nil {
		return fail(err)
	}
	return Output{Path: path, Raw: raw}, nil
}

func (b *Batch) Stats() Stats {
	return Stats{
		PoolNewCounter: int(b.poolNewCounter.Load()),
		PoolPutCounter: int(b.poolPutCounter.Load()),
	}
}
