// Package index holds the fingerprint to image-identifier multi-map and the
// build pipeline that fills it.
package index

import (
	"fmt"
	"sort"

	"dhashfinder/fingerprint"
	"dhashfinder/types"
)

// Index maps each fingerprint to the images that produced it. Every entry
// holds at least one identifier, in insertion order. An Index is mutated
// only while it is being built; once handed to a query it is read-only and
// safe for concurrent readers.
type Index struct {
	hashSize  int
	resampler string
	entries   map[fingerprint.Fingerprint][]types.ImageID
	images    int
}

// New returns an empty index for fingerprints of the given hash size
func New(hashSize int, resampler string) (*Index, error) {
	if hashSize < 1 {
		return nil, fmt.Errorf("invalid hash size %d", hashSize)
	}
	if resampler == "" {
		resampler = fingerprint.DefaultResampler
	}
	return &Index{
		hashSize:  hashSize,
		resampler: resampler,
		entries:   make(map[fingerprint.Fingerprint][]types.ImageID),
	}, nil
}

// HashSize returns the hash size shared by every key
func (i *Index) HashSize() int { return i.hashSize }

// Resampler returns the name of the resampler the keys were computed with
func (i *Index) Resampler() string { return i.resampler }

// Add appends id to the entry for fp, creating the entry if absent
func (i *Index) Add(fp fingerprint.Fingerprint, id types.ImageID) error {
	if fp.IsZero() {
		return fmt.Errorf("cannot add zero fingerprint for %s", id)
	}
	if fp.HashSize() != i.hashSize {
		return fmt.Errorf("fingerprint %s has hash size %d, index uses %d", fp, fp.HashSize(), i.hashSize)
	}
	i.entries[fp] = append(i.entries[fp], id)
	i.images++
	return nil
}

// Keys returns every stored fingerprint in ascending hex order
func (i *Index) Keys() []fingerprint.Fingerprint {
	keys := make([]fingerprint.Fingerprint, 0, len(i.entries))
	for fp := range i.entries {
		keys = append(keys, fp)
	}
	sort.Slice(keys, func(a, b int) bool {
		return keys[a].String() < keys[b].String()
	})
	return keys
}

// Lookup returns a copy of the identifiers stored under fp
func (i *Index) Lookup(fp fingerprint.Fingerprint) []types.ImageID {
	ids := i.entries[fp]
	if len(ids) == 0 {
		return nil
	}
	return append([]types.ImageID(nil), ids...)
}

// Count returns the number of distinct fingerprints
func (i *Index) Count() int { return len(i.entries) }

// ImageCount returns the number of identifiers across all entries
func (i *Index) ImageCount() int { return i.images }
