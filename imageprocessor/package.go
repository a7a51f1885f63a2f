// Package imageprocessor provides tools for loading and processing various image formats.
//
// Loaders return 8-bit grayscale images ready for fingerprinting. A failed
// load is always reported as a *types.DecodeError so the index build can
// skip the file and carry on.
package imageprocessor

import "image"

// ImageLoader is the interface that all image loaders must implement
type ImageLoader interface {
	// CanLoad checks if the loader can handle the given file
	CanLoad(path string) bool

	// LoadImage loads and returns the image in grayscale
	LoadImage(path string) (*image.Gray, error)
}
