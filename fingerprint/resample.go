package fingerprint

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"golang.org/x/image/draw"
)

// DefaultResampler is the resampler used when none is configured
const DefaultResampler = "bilinear"

// Resampler shrinks an image to a small grayscale grid. Implementations
// must be deterministic: the same input always yields the same pixels.
type Resampler interface {
	Name() string
	Resample(src image.Image, width, height int) *image.Gray
}

// drawResampler adapts an x/image/draw interpolator
type drawResampler struct {
	name   string
	interp draw.Interpolator
}

func (r drawResampler) Name() string { return r.name }

func (r drawResampler) Resample(src image.Image, width, height int) *image.Gray {
	gray := ToGray(src)
	dst := image.NewGray(image.Rect(0, 0, width, height))
	r.interp.Scale(dst, dst.Bounds(), gray, gray.Bounds(), draw.Src, nil)
	return dst
}

// ToGray returns img as an 8-bit grayscale image, converting it if needed
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

var (
	resamplersMu sync.RWMutex
	resamplers   = map[string]Resampler{}
)

func init() {
	Register(drawResampler{name: "bilinear", interp: draw.BiLinear})
	Register(drawResampler{name: "approx-bilinear", interp: draw.ApproxBiLinear})
	Register(drawResampler{name: "catmull-rom", interp: draw.CatmullRom})
	Register(drawResampler{name: "nearest", interp: draw.NearestNeighbor})
}

// Register makes a resampler available by name, replacing any previous one
func Register(r Resampler) {
	resamplersMu.Lock()
	defer resamplersMu.Unlock()
	resamplers[r.Name()] = r
}

// Lookup returns the resampler registered under name
func Lookup(name string) (Resampler, error) {
	resamplersMu.RLock()
	defer resamplersMu.RUnlock()

	r, ok := resamplers[name]
	if !ok {
		return nil, fmt.Errorf("unknown resampler %q (available: %v)", name, namesLocked())
	}
	return r, nil
}

// Default returns the default resampler
func Default() Resampler {
	r, err := Lookup(DefaultResampler)
	if err != nil {
		panic(err)
	}
	return r
}

// Names lists the registered resamplers in sorted order
func Names() []string {
	resamplersMu.RLock()
	defer resamplersMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(resamplers))
	for name := range resamplers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
