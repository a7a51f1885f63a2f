package scanner

import (
	"fmt"
	"io"
	"time"

	"dhashfinder/imageprocessor"
	"dhashfinder/index"
	"dhashfinder/logging"
)

// NewProgressTracker initializes the progress tracker. Progress lines are
// written to out every interval until Stop is called.
func NewProgressTracker(out io.Writer, stats FileStats, interval time.Duration) *ProgressTracker {
	if out == nil {
		out = io.Discard
	}
	tracker := &ProgressTracker{
		ticker:     time.NewTicker(interval),
		done:       make(chan struct{}),
		out:        out,
		totalFiles: stats.totalFiles,
		rawFiles:   stats.rawFiles,
		tifFiles:   stats.tifFiles,
	}

	// Start progress display goroutine
	tracker.stopped.Add(1)
	go tracker.displayProgress()

	return tracker
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress() {
	defer p.stopped.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.printLine()
		}
	}
}

func (p *ProgressTracker) printLine() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.totalFiles > 0 {
		fmt.Fprintf(p.out, "\rExtracted hashes for %d/%d images", p.processed, p.totalFiles)
	} else {
		fmt.Fprintf(p.out, "\rExtracted hashes for %d images", p.processed)
	}
	if p.errors > 0 {
		fmt.Fprintf(p.out, " (errors: %d)", p.errors)
	}
}

// Observe updates the tracker with one build event. It is an index.Observer.
func (p *ProgressTracker) Observe(ev index.Event) {
	path := string(ev.ID)
	isRaw := imageprocessor.IsRawFormat(path)
	isTif := imageprocessor.IsTiffFormat(path)

	p.mu.Lock()
	p.processed++
	if isRaw {
		p.rawProcessed++
	}
	if isTif {
		p.tifProcessed++
	}
	if ev.Err != nil {
		p.errors++
		if isRaw {
			p.rawErrors++
		}
		if isTif {
			p.tifErrors++
		}
	}
	p.mu.Unlock()

	logging.LogImageProcessed(path, ev.Err == nil, ev.Err)
}

// Stop ends the progress tracking and prints the final count
func (p *ProgressTracker) Stop() {
	p.ticker.Stop()
	close(p.done)
	p.stopped.Wait()
	p.printLine()
	fmt.Fprintln(p.out)
}

// PrintStartupInfo displays information about the scan before starting
func PrintStartupInfo(out io.Writer, stats FileStats, options ScanOptions) {
	fmt.Fprintf(out, "Starting image indexing...\nTotal image files to process: %d (including %d RAW files and %d TIF files)\n",
		stats.totalFiles, stats.rawFiles, stats.tifFiles)
	fmt.Fprintf(out, "Hash size: %d, resampler: %s\n", options.HashSize, options.Resampler)

	if options.DebugMode {
		fmt.Fprintf(out, "Debug mode: enabled\n")
	}
	logging.DebugLog("Found %d image files to process (%d RAW files, %d TIF files)",
		stats.totalFiles, stats.rawFiles, stats.tifFiles)
}

// PrintCompletionStats displays statistics after scan completion
func PrintCompletionStats(out io.Writer, tracker *ProgressTracker, summary Summary) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	logging.DebugLog("Scan completed in %v. Processed: %d, Errors: %d, RAW files: %d, RAW errors: %d, TIF files: %d, TIF errors: %d",
		summary.Elapsed, tracker.processed, tracker.errors, tracker.rawProcessed, tracker.rawErrors,
		tracker.tifProcessed, tracker.tifErrors)

	fmt.Fprintf(out, "Total hashes stored : %d\n", summary.Fingerprints)
	fmt.Fprintf(out, "Total images stored : %d\n", summary.Stored)

	if tracker.rawProcessed > 0 {
		fmt.Fprintf(out, "Successfully processed %d/%d RAW image files.\n",
			tracker.rawProcessed-tracker.rawErrors, tracker.rawFiles)
	}
	if tracker.tifProcessed > 0 {
		fmt.Fprintf(out, "Successfully processed %d/%d TIF image files.\n",
			tracker.tifProcessed-tracker.tifErrors, tracker.tifFiles)
	}
	if summary.Skipped > 0 {
		fmt.Fprintf(out, "Skipped %d images that could not be decoded.\n", summary.Skipped)
		fmt.Fprintln(out, "Check the log file for details.")
	}
	fmt.Fprintf(out, "Processed %d images in %v.\n", summary.Processed, summary.Elapsed.Round(time.Millisecond))
}
