package utils

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSplitRatio is the share of images assigned to the training list
const DefaultSplitRatio = 0.95

// GetDefaultDatabasePath returns the default path for the database file
func GetDefaultDatabasePath() string {
	// Get the executable path
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "hashes.db"
	}

	// Return the default database path next to the executable
	return filepath.Join(filepath.Dir(exePath), "hashes.db")
}

// ReadLines returns the non-blank lines of a list file. Only line endings
// are stripped; other whitespace is part of the entry.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// WriteLines writes one entry per line to path, replacing the file
func WriteLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// GenerateSplit shuffles images and cuts them into a training and a test
// list. The training list receives floor(len*ratio) entries. The input
// slice is not modified.
func GenerateSplit(images []string, ratio float64, rng *rand.Rand) (train, test []string, err error) {
	if ratio < 0 || ratio > 1 {
		return nil, nil, fmt.Errorf("split ratio must be within [0, 1], got %v", ratio)
	}

	shuffled := append([]string(nil), images...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := int(float64(len(shuffled)) * ratio)
	return shuffled[:cut], shuffled[cut:], nil
}
