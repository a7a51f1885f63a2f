package imageprocessor

import (
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

// Decoder backends for the standard formats
const (
	DecoderOpenCV = "opencv"
	DecoderGo     = "go"
)

// ImageLoaderRegistry maintains a registry of image loaders
type ImageLoaderRegistry struct {
	loaders map[string]ImageLoader
	mutex   sync.RWMutex
}

// NewImageLoaderRegistry creates a registry whose standard formats are read
// with the given decoder backend
func NewImageLoaderRegistry(decoder string) (*ImageLoaderRegistry, error) {
	registry := &ImageLoaderRegistry{
		loaders: make(map[string]ImageLoader),
	}

	switch decoder {
	case "", DecoderOpenCV:
		registry.registerAll(NewStandardImageLoader(), extensionsOf(FormatJPEG, FormatPNG, FormatBMP, FormatWEBP, FormatTIFF))
		// OpenCV has no GIF decoder
		registry.registerAll(NewGoImageLoader(), extensionsOf(FormatGIF))
	case DecoderGo:
		registry.registerAll(NewGoImageLoader(), extensionsOf(FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatWEBP, FormatTIFF))
	default:
		return nil, fmt.Errorf("unknown decoder %q (available: %s, %s)", decoder, DecoderOpenCV, DecoderGo)
	}

	registry.registerAll(NewRawPreviewLoader(), extensionsOf(FormatRAW, FormatCR2, FormatCR3, FormatNEF, FormatARW, FormatDNG))
	return registry, nil
}

func (r *ImageLoaderRegistry) registerAll(loader ImageLoader, exts []string) {
	for _, ext := range exts {
		r.RegisterLoader(ext, loader)
	}
}

// RegisterLoader registers a new loader for a specific file extension
func (r *ImageLoaderRegistry) RegisterLoader(ext string, loader ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.loaders[strings.ToLower(ext)] = loader
}

// GetLoader returns the loader registered for the extension of path, or nil
func (r *ImageLoaderRegistry) GetLoader(path string) ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.loaders[strings.ToLower(filepath.Ext(path))]
}

// CanLoadFile checks if any registered loader can handle the given file
func (r *ImageLoaderRegistry) CanLoadFile(path string) bool {
	return r.GetLoader(path) != nil
}

// LoadImage loads an image using the appropriate registered loader
func (r *ImageLoaderRegistry) LoadImage(path string) (*image.Gray, error) {
	loader := r.GetLoader(path)
	if loader == nil {
		return nil, newImageLoadError(path, "no suitable loader found")
	}
	return loader.LoadImage(path)
}

// Close releases loaders holding external resources
func (r *ImageLoaderRegistry) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	seen := make(map[ImageLoader]bool)
	var errs []error
	for _, loader := range r.loaders {
		if seen[loader] {
			continue
		}
		seen[loader] = true
		if c, ok := loader.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
