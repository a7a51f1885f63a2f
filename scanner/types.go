package scanner

import (
	"image"
	"io"
	"sync"
	"time"
)

// Loader decodes one image file to grayscale
type Loader interface {
	LoadImage(path string) (*image.Gray, error)
}

// ScanOptions defines the options for scanning
type ScanOptions struct {
	DbPath    string
	HashSize  int
	Resampler string
	// MaxWorkers bounds concurrent decodes. Zero selects GOMAXPROCS.
	MaxWorkers int
	DebugMode  bool
	// Output receives progress and summary lines. Nil silences them.
	Output io.Writer
}

// Summary reports the outcome of a build
type Summary struct {
	Processed    int
	Stored       int
	Skipped      int
	Fingerprints int
	Elapsed      time.Duration
}

// FileStats tracks information about files to be processed
type FileStats struct {
	totalFiles int
	rawFiles   int
	tifFiles   int
}

// ProgressTracker tracks progress of the scan operation
type ProgressTracker struct {
	processed    int
	errors       int
	rawProcessed int
	rawErrors    int
	tifProcessed int
	tifErrors    int
	ticker       *time.Ticker
	done         chan struct{}
	stopped      sync.WaitGroup
	mu           sync.Mutex
	out          io.Writer
	totalFiles   int
	rawFiles     int
	tifFiles     int
}
