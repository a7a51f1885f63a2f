// Package scanner enumerates a dataset and drives the index build and
// persist steps for it.
package scanner

import (
	"context"
	"fmt"
	"image"
	"io"
	"iter"
	"time"

	"dhashfinder/database"
	"dhashfinder/fingerprint"
	"dhashfinder/index"
	"dhashfinder/logging"
	"dhashfinder/types"
)

// progressInterval is how often the progress line is redrawn
const progressInterval = 500 * time.Millisecond

// Items yields one index item per path. Nothing is read until the build
// calls an item's Open.
func Items(paths []string, loader Loader) iter.Seq[index.Item] {
	return func(yield func(index.Item) bool) {
		for _, path := range paths {
			item := index.Item{
				ID:   types.ImageID(path),
				Open: opener(loader, path),
			}
			if !yield(item) {
				return
			}
		}
	}
}

// opener defers decoding path until the build asks for it. A failed load
// returns a nil interface rather than a typed nil *image.Gray.
func opener(loader Loader, path string) func() (image.Image, error) {
	return func() (image.Image, error) {
		img, err := loader.LoadImage(path)
		if err != nil {
			return nil, err
		}
		return img, nil
	}
}

// BuildIndex fingerprints every path and writes the resulting index to
// options.DbPath, replacing any store already there. Images that cannot be
// decoded are skipped. When the build fails or is cancelled the existing
// store is left untouched.
func BuildIndex(ctx context.Context, paths []string, loader Loader, options ScanOptions) (Summary, error) {
	var summary Summary

	out := options.Output
	if out == nil {
		out = io.Discard
	}

	if options.Resampler == "" {
		options.Resampler = fingerprint.DefaultResampler
	}
	resampler, err := fingerprint.Lookup(options.Resampler)
	if err != nil {
		return summary, err
	}
	if options.HashSize == 0 {
		options.HashSize = fingerprint.DefaultHashSize
	}

	stats := countFiles(paths)
	PrintStartupInfo(out, stats, options)

	startTime := time.Now()
	tracker := NewProgressTracker(out, stats, progressInterval)

	idx, buildStats, err := index.Build(ctx, Items(paths, loader), index.BuildOptions{
		HashSize:  options.HashSize,
		Resampler: resampler,
		Workers:   options.MaxWorkers,
		Total:     len(paths),
		Observer:  tracker.Observe,
	})
	tracker.Stop()

	summary.Processed = buildStats.Processed
	summary.Skipped = buildStats.Skipped
	if err != nil {
		return summary, fmt.Errorf("build interrupted after %d images: %w", buildStats.Processed, err)
	}

	if err := database.Persist(ctx, idx, options.DbPath); err != nil {
		return summary, err
	}

	summary.Stored = idx.ImageCount()
	summary.Fingerprints = idx.Count()
	summary.Elapsed = time.Since(startTime)

	logging.LogInfo("Stored %d images under %d fingerprints in %s (%d skipped)",
		summary.Stored, summary.Fingerprints, options.DbPath, summary.Skipped)
	PrintCompletionStats(out, tracker, summary)
	return summary, nil
}
