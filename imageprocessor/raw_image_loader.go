package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"sync"

	"dhashfinder/logging"

	"github.com/barasher/go-exiftool"
)

// Preview tags in order of preference
var previewTags = []string{
	"JpgFromRaw",
	"LargestImagePreview",
	"PreviewImage",
	"OtherImage",
	"ThumbnailImage",
}

// maxPreviewSize bounds one line of exiftool output; previews are embedded
// base64 in the JSON response
const maxPreviewSize = 64 * 1024 * 1024

// RawPreviewLoader reads the JPEG preview embedded in camera RAW files.
// It keeps one exiftool process and serialises requests to it.
type RawPreviewLoader struct {
	BaseImageLoader

	mu      sync.Mutex
	et      *exiftool.Exiftool
	initErr error
}

// NewRawPreviewLoader creates a new loader for RAW files. The exiftool
// process is started on first use.
func NewRawPreviewLoader() *RawPreviewLoader {
	return &RawPreviewLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatRAW,
				FormatCR2,
				FormatCR3,
				FormatNEF,
				FormatARW,
				FormatDNG,
			},
		},
	}
}

func (l *RawPreviewLoader) process() (*exiftool.Exiftool, error) {
	if l.et == nil && l.initErr == nil {
		buf := make([]byte, 128*1024)
		l.et, l.initErr = exiftool.NewExiftool(
			exiftool.ExtractAllBinaryMetadata(),
			exiftool.Buffer(buf, maxPreviewSize),
		)
		if l.initErr != nil {
			logging.LogError("Failed to initialize exiftool: %v", l.initErr)
		}
	}
	return l.et, l.initErr
}

// ExtractPreview returns the bytes of the largest embedded preview of path
func (l *RawPreviewLoader) ExtractPreview(path string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	et, err := l.process()
	if err != nil {
		return nil, newImageLoadError(path, "exiftool unavailable: %v", err)
	}

	fileInfos := et.ExtractMetadata(path)
	if len(fileInfos) == 0 {
		return nil, newImageLoadError(path, "no metadata extracted")
	}
	fileInfo := fileInfos[0]
	if fileInfo.Err != nil {
		return nil, newImageLoadError(path, "error extracting metadata: %v", fileInfo.Err)
	}

	for _, tag := range previewTags {
		value, err := fileInfo.GetString(tag)
		if err != nil {
			continue
		}
		data, err := decodeBinaryTag(value)
		if err != nil {
			logging.DebugLog("Cannot decode %s of %s: %v", tag, path, err)
			continue
		}
		if len(data) > 0 {
			logging.DebugLog("Using %s preview of %s (%d bytes)", tag, path, len(data))
			return data, nil
		}
	}

	return nil, newImageLoadError(path, "no embedded preview found")
}

// LoadImage decodes the embedded preview of a RAW file in grayscale
func (l *RawPreviewLoader) LoadImage(path string) (*image.Gray, error) {
	data, err := l.ExtractPreview(path)
	if err != nil {
		return nil, err
	}
	return decodeGray(path, bytes.NewReader(data))
}

// Close stops the exiftool process, if it was started
func (l *RawPreviewLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.et == nil {
		return nil
	}
	err := l.et.Close()
	l.et = nil
	return err
}

// decodeBinaryTag decodes a binary value as exiftool reports it in JSON
func decodeBinaryTag(value string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(value, "base64:")
	if !ok {
		return nil, fmt.Errorf("not a binary value")
	}
	return base64.StdEncoding.DecodeString(encoded)
}
