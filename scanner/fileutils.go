package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"dhashfinder/imageprocessor"
	"dhashfinder/logging"
	"dhashfinder/utils"
)

// DirectorySource lists the images below root. With an empty pattern every
// supported image file is taken, recursively. Otherwise pattern is a glob
// relative to root, such as "*/*.jpg", and every regular file it matches is
// taken. Paths are returned in lexical order.
func DirectorySource(root, pattern string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot access dataset folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root)
	}

	if pattern != "" {
		return globSource(root, pattern)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Skip entries that can't be accessed
			logging.LogWarning("Cannot access %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && imageprocessor.IsImageFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func globSource(root, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	paths := matches[:0]
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// FileListSource reads image paths from a list file, one per line. Blank
// lines are ignored and the order of the file is kept.
func FileListSource(path string) ([]string, error) {
	paths, err := utils.ReadLines(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read image list: %w", err)
	}
	return paths, nil
}

// countFiles classifies paths for the startup summary
func countFiles(paths []string) FileStats {
	stats := FileStats{totalFiles: len(paths)}
	for _, path := range paths {
		if imageprocessor.IsRawFormat(path) {
			stats.rawFiles++
		} else if imageprocessor.IsTiffFormat(path) {
			stats.tifFiles++
		}
	}
	return stats
}
