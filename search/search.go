// Package search ranks stored fingerprints against a query fingerprint.
//
// The scan is brute force: every key of the index is compared with the
// query. Keys at distance >= MaxDistance are dropped, the rest are grouped
// into one bucket per distance, and buckets are drained in ascending order
// with identifiers sorted inside each bucket until MaxResults matches have
// been taken.
package search

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sort"

	"dhashfinder/fingerprint"
	"dhashfinder/index"
	"dhashfinder/types"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxResults caps the ranked list
	DefaultMaxResults = 10

	// DefaultMaxDistance is exclusive: only distances 0..9 are kept
	DefaultMaxDistance = 10

	// minKeysPerShard keeps tiny indexes on a single goroutine
	minKeysPerShard = 1024
)

// Options configures a query
type Options struct {
	MaxResults  int
	MaxDistance int
	// Workers bounds the goroutines scanning key shards. Defaults to GOMAXPROCS.
	Workers int
}

// DefaultOptions returns the limits used by the command line tool
func DefaultOptions() Options {
	return Options{MaxResults: DefaultMaxResults, MaxDistance: DefaultMaxDistance}
}

// Validate rejects negative limits. Zero limits are legal.
func (o Options) Validate() error {
	if o.MaxResults < 0 {
		return fmt.Errorf("max results must not be negative, got %d", o.MaxResults)
	}
	if o.MaxDistance < 0 {
		return fmt.Errorf("max distance must not be negative, got %d", o.MaxDistance)
	}
	return nil
}

// Result is the outcome of a query
type Result struct {
	Query fingerprint.Fingerprint `json:"query"`
	// Matches is ordered by distance, then identifier
	Matches []types.MatchResult `json:"matches"`
	// Total counts every candidate within range, before truncation
	Total int `json:"total"`
}

// keyHit is a stored key within range of the query
type keyHit struct {
	fp       fingerprint.Fingerprint
	distance int
}

// QueryFingerprint ranks the identifiers of idx against qfp
func QueryFingerprint(ctx context.Context, qfp fingerprint.Fingerprint, idx *index.Index, opts Options) (Result, error) {
	result := Result{Query: qfp, Matches: []types.MatchResult{}}

	if err := opts.Validate(); err != nil {
		return result, err
	}
	if qfp.IsZero() {
		return result, fmt.Errorf("query fingerprint is empty")
	}
	if qfp.HashSize() != idx.HashSize() {
		return result, fmt.Errorf("query hash size %d does not match index hash size %d", qfp.HashSize(), idx.HashSize())
	}

	// Distances never exceed the key width, so no more buckets are needed
	bucketCount := opts.MaxDistance
	if width := fingerprint.Digits(idx.HashSize()) + 1; bucketCount > width {
		bucketCount = width
	}
	if bucketCount == 0 || idx.Count() == 0 {
		return result, ctx.Err()
	}

	hits, err := scan(ctx, qfp, idx.Keys(), bucketCount, opts.Workers)
	if err != nil {
		return result, err
	}

	// Group identifiers by distance
	buckets := make([][]types.ImageID, bucketCount)
	for _, hit := range hits {
		ids := idx.Lookup(hit.fp)
		buckets[hit.distance] = append(buckets[hit.distance], ids...)
		result.Total += len(ids)
	}

	for distance, ids := range buckets {
		if len(result.Matches) >= opts.MaxResults {
			break
		}
		if len(ids) == 0 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if len(result.Matches) >= opts.MaxResults {
				break
			}
			result.Matches = append(result.Matches, types.MatchResult{Distance: distance, ID: id})
		}
	}

	return result, nil
}

// QueryImage fingerprints img with the hash size and resampler of idx and
// ranks the index against it
func QueryImage(ctx context.Context, img image.Image, idx *index.Index, opts Options) (Result, error) {
	r, err := fingerprint.Lookup(idx.Resampler())
	if err != nil {
		return Result{}, fmt.Errorf("index was built with %w", err)
	}
	qfp, err := fingerprint.Compute(img, idx.HashSize(), r)
	if err != nil {
		return Result{}, err
	}
	return QueryFingerprint(ctx, qfp, idx, opts)
}

// scan computes distances over keys in parallel shards and returns the keys
// with a distance below limit
func scan(ctx context.Context, qfp fingerprint.Fingerprint, keys []fingerprint.Fingerprint, limit, workers int) ([]keyHit, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	shards := (len(keys) + minKeysPerShard - 1) / minKeysPerShard
	if shards > workers {
		shards = workers
	}
	if shards < 1 {
		shards = 1
	}
	size := (len(keys) + shards - 1) / shards

	partial := make([][]keyHit, shards)
	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		lo := s * size
		hi := lo + size
		if hi > len(keys) {
			hi = len(keys)
		}
		if lo >= hi {
			continue
		}

		g.Go(func() error {
			var hits []keyHit
			for i, fp := range keys[lo:hi] {
				if i%minKeysPerShard == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				if d := fingerprint.Distance(qfp, fp); d < limit {
					hits = append(hits, keyHit{fp: fp, distance: d})
				}
			}
			partial[s] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var hits []keyHit
	for _, p := range partial {
		hits = append(hits, p...)
	}
	return hits, nil
}
