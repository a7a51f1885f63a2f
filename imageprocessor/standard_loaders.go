package imageprocessor

import (
	"bufio"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"dhashfinder/fingerprint"
	"dhashfinder/logging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gocv.io/x/gocv"
)

// StandardImageLoader handles common image formats through OpenCV. Files
// OpenCV cannot read are handed to Fallback when one is set.
type StandardImageLoader struct {
	BaseImageLoader
	Fallback ImageLoader
}

// NewStandardImageLoader creates a new loader for standard image formats
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
				FormatBMP,
				FormatWEBP,
				FormatTIFF,
			},
		},
		Fallback: NewGoImageLoader(),
	}
}

// LoadImage loads a standard image format
func (l *StandardImageLoader) LoadImage(path string) (*image.Gray, error) {
	if !fileExists(path) {
		return nil, newImageLoadError(path, "file does not exist")
	}

	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer mat.Close()

	if mat.Empty() {
		if l.Fallback != nil {
			logging.DebugLog("OpenCV could not read %s, trying Go decoders", path)
			return l.Fallback.LoadImage(path)
		}
		return nil, newImageLoadError(path, "failed to load image")
	}

	return matToGray(path, mat)
}

// GoImageLoader decodes images with the Go image packages. It needs no
// native libraries.
type GoImageLoader struct {
	BaseImageLoader
}

// NewGoImageLoader creates a loader backed by the registered Go decoders
func NewGoImageLoader() *GoImageLoader {
	return &GoImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
				FormatGIF,
				FormatBMP,
				FormatWEBP,
				FormatTIFF,
			},
		},
	}
}

// LoadImage decodes the file and converts it to grayscale
func (l *GoImageLoader) LoadImage(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newImageLoadError(path, "%v", err)
	}
	defer f.Close()

	return decodeGray(path, bufio.NewReader(f))
}

// decodeGray decodes r with whichever registered format matches its header
func decodeGray(path string, r io.Reader) (*image.Gray, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, newImageLoadError(path, "%v", err)
	}
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, newImageLoadError(path, "%s image has no pixels", format)
	}
	return fingerprint.ToGray(img), nil
}
