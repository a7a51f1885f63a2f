package imageprocessor

import (
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"dhashfinder/fingerprint"
	"dhashfinder/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePNG writes a horizontal colour gradient and returns its path
func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(255 - x*255/w), G: uint8(y * 255 / h), B: 40, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestFormats(t *testing.T) {
	tests := []struct {
		path  string
		image bool
		raw   bool
		tiff  bool
	}{
		{path: "a/b/photo.JPG", image: true},
		{path: "scan.tiff", image: true, tiff: true},
		{path: "IMG_0001.CR3", image: true, raw: true},
		{path: "shot.nef", image: true, raw: true},
		{path: "notes.txt"},
		{path: "noext"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.image, IsImageFile(tt.path))
			assert.Equal(t, tt.raw, IsRawFormat(tt.path))
			assert.Equal(t, tt.tiff, IsTiffFormat(tt.path))
		})
	}

	exts := GetSupportedExtensions()
	assert.Contains(t, exts, ".webp")
	assert.IsNonDecreasing(t, exts)
}

func TestGoImageLoader(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "gradient.png", 40, 30)

	loader := NewGoImageLoader()
	assert.True(t, loader.CanLoad(path))
	assert.False(t, loader.CanLoad(filepath.Join(dir, "missing.png")))

	gray, err := loader.LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), gray.Bounds())
	// brightness falls from left to right
	assert.Greater(t, gray.GrayAt(0, 0).Y, gray.GrayAt(39, 0).Y)
}

func TestGoImageLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte("definitely not a jpeg"), 0o644))

	loader := NewGoImageLoader()
	for _, path := range []string{broken, filepath.Join(dir, "missing.jpg")} {
		_, err := loader.LoadImage(path)
		require.Error(t, err)
		var de *types.DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, path, de.Path)
	}
}

func TestRegistry(t *testing.T) {
	registry, err := NewImageLoaderRegistry(DecoderGo)
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	assert.IsType(t, &GoImageLoader{}, registry.GetLoader("x.JPEG"))
	assert.IsType(t, &RawPreviewLoader{}, registry.GetLoader("x.dng"))
	assert.Nil(t, registry.GetLoader("x.txt"))
	assert.False(t, registry.CanLoadFile("readme.md"))

	_, err = registry.LoadImage("readme.md")
	assert.True(t, types.IsDecodeError(err))

	path := writePNG(t, t.TempDir(), "a.png", 16, 16)
	img, err := registry.LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())

	_, err = NewImageLoaderRegistry("imagemagick")
	assert.Error(t, err)
}

func TestRegistry_OpenCVDecoders(t *testing.T) {
	registry, err := NewImageLoaderRegistry(DecoderOpenCV)
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	assert.IsType(t, &StandardImageLoader{}, registry.GetLoader("x.png"))
	assert.IsType(t, &GoImageLoader{}, registry.GetLoader("x.gif"))
}

func TestDecodeBinaryTag(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xe0}
	data, err := decodeBinaryTag("base64:" + base64.StdEncoding.EncodeToString(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = decodeBinaryTag("(Binary data 1234 bytes, use -b option to extract)")
	assert.Error(t, err)
}

func TestOpenCVResamplers(t *testing.T) {
	src := image.NewGray(image.Rect(5, 5, 105, 85))
	for y := 5; y < 85; y++ {
		for x := 5; x < 105; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8(255 - 2*(x-5))})
		}
	}

	for _, name := range []string{"opencv-linear", "opencv-area"} {
		t.Run(name, func(t *testing.T) {
			r, err := fingerprint.Lookup(name)
			require.NoError(t, err)

			small := r.Resample(src, 9, 8)
			require.NotNil(t, small)
			assert.Equal(t, image.Rect(0, 0, 9, 8), small.Bounds())

			fp, err := fingerprint.Compute(src, 8, r)
			require.NoError(t, err)
			assert.Equal(t, "ffffffffffffffff", fp.String())
		})
	}
}
