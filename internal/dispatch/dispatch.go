// Package dispatch fans a target list out to one goroutine per target,
// a chunk at a time. Each chunk runs to completion and its results are
// drained before the next chunk starts, so a single hanging probe can only
// hold up its own chunk.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
)

// fdReserve is kept free for the store, logs and the terminal.
const fdReserve = 16

// ChunkProgress describes one chunk as it is launched or completed.
type ChunkProgress struct {
	Index     int // zero-based
	Chunks    int // total number of chunks
	Size      int
	First     string
	Last      string
	Remaining int // targets not yet launched after this chunk
}

// Options configures a dispatch run.
type Options[T any, R any] struct {
	ChunkSize int

	// Label renders a target for progress output. Defaults to fmt's %v.
	Label func(T) string

	// OnChunk is called before a chunk's workers are started.
	OnChunk func(ChunkProgress)

	// OnChunkDone is called with the drained results of a chunk.
	OnChunkDone func(ChunkProgress, []R)

	// Recover turns a worker panic into a result. Without it the panic is
	// logged and the zero R is collected.
	Recover func(target T, panicValue interface{}) R

	Logger logger.Logger
}

// Result is the outcome of a dispatch run.
type Result[R any] struct {
	// Items holds results in drain order: chunk by chunk, completion order within a chunk.
	Items      []R
	Processed  int
	Chunks     int
	ChunkSize  int // effective size after clamping
	Duration   time.Duration
	Throughput float64 // targets per second
	Cancelled  bool
}

// Run dispatches worker over targets.
//
// A non-positive chunk size is rejected before any worker starts. When ctx
// is cancelled no further chunks are launched, but a chunk that already
// started is awaited; its workers run on a context detached from ctx's
// cancellation so they finish on their own per-call timeouts.
func Run[T any, R any](ctx context.Context, targets []T, opts Options[T, R], worker func(context.Context, T) R) (*Result[R], error) {
	if opts.ChunkSize <= 0 {
		return nil, errors.Invalid(errors.ErrDispatch, "chunk size must be positive, got %d", opts.ChunkSize)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Noop()
	}
	label := opts.Label
	if label == nil {
		label = func(t T) string { return fmt.Sprintf("%v", t) }
	}

	size := clampChunkSize(opts.ChunkSize, log)
	chunks := Chunks(targets, size)

	res := &Result[R]{
		Items:     make([]R, 0, len(targets)),
		Chunks:    len(chunks),
		ChunkSize: size,
	}

	start := time.Now()
	remaining := len(targets)
	workerCtx := context.WithoutCancel(ctx)

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			log.Warn("dispatch cancelled, %d targets not launched", remaining)
			res.Cancelled = true
			break
		}

		remaining -= len(chunk)
		progress := ChunkProgress{
			Index:     i,
			Chunks:    len(chunks),
			Size:      len(chunk),
			First:     label(chunk[0]),
			Last:      label(chunk[len(chunk)-1]),
			Remaining: remaining,
		}
		log.Debug("chunk %d/%d: %d targets %s -> %s (remaining %d)",
			i+1, len(chunks), progress.Size, progress.First, progress.Last, remaining)
		if opts.OnChunk != nil {
			opts.OnChunk(progress)
		}

		drained := runChunk(workerCtx, chunk, opts.Recover, log, label, worker)
		res.Items = append(res.Items, drained...)
		res.Processed += len(drained)

		if opts.OnChunkDone != nil {
			opts.OnChunkDone(progress, drained)
		}
	}

	res.Duration = time.Since(start)
	if secs := res.Duration.Seconds(); secs > 0 {
		res.Throughput = float64(res.Processed) / secs
	}
	log.Info("processed %d targets in %s (%.1f/s)", res.Processed, res.Duration.Round(time.Millisecond), res.Throughput)

	return res, nil
}

// runChunk starts one goroutine per target, waits for all of them, then
// drains exactly len(chunk) results from the shared completion channel.
func runChunk[T any, R any](
	ctx context.Context,
	chunk []T,
	recoverFn func(T, interface{}) R,
	log logger.Logger,
	label func(T) string,
	worker func(context.Context, T) R,
) []R {
	done := make(chan R, len(chunk))

	var wg sync.WaitGroup
	for _, target := range chunk {
		wg.Add(1)
		go func(target T) {
			defer wg.Done()
			done <- safeCall(ctx, target, recoverFn, log, label, worker)
		}(target)
	}
	wg.Wait()

	out := make([]R, 0, len(chunk))
	for range chunk {
		out = append(out, <-done)
	}
	return out
}

func safeCall[T any, R any](
	ctx context.Context,
	target T,
	recoverFn func(T, interface{}) R,
	log logger.Logger,
	label func(T) string,
	worker func(context.Context, T) R,
) (result R) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("worker for %s panicked: %v", label(target), p)
			if recoverFn != nil {
				result = recoverFn(target, p)
				return
			}
			var zero R
			result = zero
		}
	}()
	return worker(ctx, target)
}

// Chunks partitions targets into consecutive slices of at most size
// elements. The last chunk may be shorter.
func Chunks[T any](targets []T, size int) [][]T {
	if size <= 0 {
		return nil
	}
	out := make([][]T, 0, (len(targets)+size-1)/size)
	for i := 0; i < len(targets); i += size {
		end := i + size
		if end > len(targets) {
			end = len(targets)
		}
		out = append(out, targets[i:end])
	}
	return out
}

func clampChunkSize(size int, log logger.Logger) int {
	limit, ok := openFileLimit()
	if !ok {
		return size
	}
	return clampTo(size, limit, log)
}

func clampTo(size int, limit uint64, log logger.Logger) int {
	max := 1
	if limit > fdReserve+1 {
		max = int(limit - fdReserve)
	}
	if size > max {
		log.Debug("chunk size %d exceeds open file limit %d, using %d", size, limit, max)
		return max
	}
	return size
}
