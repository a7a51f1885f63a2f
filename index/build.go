package index

import (
	"context"
	"fmt"
	"image"
	"iter"
	"runtime"
	"runtime/debug"
	"sync"

	"dhashfinder/fingerprint"
	"dhashfinder/types"
)

// Item is one image offered to Build. Open decodes it; it is called at most
// once, from a worker goroutine.
type Item struct {
	ID   types.ImageID
	Open func() (image.Image, error)
}

// Event describes one processed item. Events are delivered in input order
// from a single goroutine.
type Event struct {
	Seq         int
	ID          types.ImageID
	Fingerprint fingerprint.Fingerprint
	Err         error
	Processed   int
	Skipped     int
	Total       int
}

// Observer receives build events
type Observer func(Event)

// BuildOptions configures Build
type BuildOptions struct {
	HashSize  int
	Resampler fingerprint.Resampler
	// Workers bounds concurrent decode+fingerprint calls. Defaults to GOMAXPROCS.
	Workers int
	// Total is the expected number of items, passed through to events. Optional.
	Total    int
	Observer Observer
}

// Failure records an item that was skipped
type Failure struct {
	ID  types.ImageID
	Err error
}

// BuildStats summarises a build
type BuildStats struct {
	Processed int
	Skipped   int
	Failures  []Failure
}

type buildJob struct {
	seq  int
	item Item
}

type buildResult struct {
	seq int
	id  types.ImageID
	fp  fingerprint.Fingerprint
	err error
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.HashSize == 0 {
		o.HashSize = fingerprint.DefaultHashSize
	}
	if o.Resampler == nil {
		o.Resampler = fingerprint.Default()
	}
	if o.Workers < 1 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Build consumes items once and returns the populated index. Images are
// decoded and fingerprinted on a worker pool; a single collector owns the
// index and commits results in input order. Items that fail to decode or
// hash are skipped and reported in the stats. Only context cancellation
// aborts the build.
func Build(ctx context.Context, items iter.Seq[Item], opts BuildOptions) (*Index, BuildStats, error) {
	opts = opts.withDefaults()

	var stats BuildStats
	idx, err := New(opts.HashSize, opts.Resampler.Name())
	if err != nil {
		return nil, stats, err
	}

	jobs := make(chan buildJob)
	results := make(chan buildResult, opts.Workers)
	// window bounds how far workers may run ahead of the collector
	window := make(chan struct{}, opts.Workers*4)

	go func() {
		defer close(jobs)
		seq := 0
		for item := range items {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- buildJob{seq: seq, item: item}:
			case <-ctx.Done():
				return
			}
			seq++
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- processItem(ctx, job, opts)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]buildResult)
	next := 0
	for res := range results {
		pending[res.seq] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			<-window

			commit(idx, &stats, r, opts)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	return idx, stats, nil
}

func commit(idx *Index, stats *BuildStats, r buildResult, opts BuildOptions) {
	stats.Processed++
	if r.err == nil {
		r.err = idx.Add(r.fp, r.id)
	}
	if r.err != nil {
		stats.Skipped++
		stats.Failures = append(stats.Failures, Failure{ID: r.id, Err: r.err})
	}

	if opts.Observer != nil {
		opts.Observer(Event{
			Seq:         r.seq,
			ID:          r.id,
			Fingerprint: r.fp,
			Err:         r.err,
			Processed:   stats.Processed,
			Skipped:     stats.Skipped,
			Total:       opts.Total,
		})
	}
}

// processItem decodes and fingerprints one item. Panics raised by decoders
// are turned into decode errors.
func processItem(ctx context.Context, job buildJob, opts BuildOptions) (res buildResult) {
	res = buildResult{seq: job.seq, id: job.item.ID}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res.fp = fingerprint.Fingerprint{}
			res.err = types.NewDecodeError(string(job.item.ID),
				fmt.Errorf("panic during image loading: %v\n%s", r, debug.Stack()))
		}
	}()

	if job.item.Open == nil {
		res.err = types.NewDecodeError(string(job.item.ID), fmt.Errorf("no decoder"))
		return res
	}

	img, err := job.item.Open()
	if err != nil {
		if !types.IsDecodeError(err) {
			err = types.NewDecodeError(string(job.item.ID), err)
		}
		res.err = err
		return res
	}

	fp, err := fingerprint.Compute(img, opts.HashSize, opts.Resampler)
	if err != nil {
		res.err = types.NewDecodeError(string(job.item.ID), err)
		return res
	}
	res.fp = fp
	return res
}
