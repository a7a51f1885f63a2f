package imageprocessor

import (
	"fmt"
	"image"
	"os"

	"dhashfinder/fingerprint"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// cvResampler shrinks images with OpenCV's Resize
type cvResampler struct {
	name   string
	interp gocv.InterpolationFlags
}

func (r cvResampler) Name() string { return r.name }

// Resample returns nil when OpenCV rejects the input
func (r cvResampler) Resample(src image.Image, width, height int) *image.Gray {
	gray := fingerprint.ToGray(src)
	if b := gray.Bounds(); b.Min != (image.Point{}) || gray.Stride != b.Dx() {
		// ImageGrayToMatGray expects a zero origin and packed rows
		shifted := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(shifted, shifted.Bounds(), gray, b.Min, draw.Src)
		gray = shifted
	}

	srcMat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil
	}
	defer srcMat.Close()

	dstMat := gocv.NewMat()
	defer dstMat.Close()
	gocv.Resize(srcMat, &dstMat, image.Point{X: width, Y: height}, 0, 0, r.interp)

	out, err := dstMat.ToImage()
	if err != nil {
		return nil
	}
	g, ok := out.(*image.Gray)
	if !ok {
		return nil
	}
	return g
}

func init() {
	fingerprint.Register(cvResampler{name: "opencv-linear", interp: gocv.InterpolationLinear})
	fingerprint.Register(cvResampler{name: "opencv-area", interp: gocv.InterpolationArea})
}

// matToGray converts a single channel 8-bit Mat into an image.Gray
func matToGray(path string, mat gocv.Mat) (*image.Gray, error) {
	if mat.Channels() != 1 {
		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
		return matToGray(path, gray)
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, newImageLoadError(path, "cannot convert image: %v", err)
	}
	return fingerprint.ToGray(img), nil
}

// WriteImageCopy writes the image at src to dst in colour. The output format
// follows the extension of dst.
func WriteImageCopy(src, dst string) error {
	mat := gocv.IMRead(src, gocv.IMReadColor)
	defer mat.Close()

	if mat.Empty() {
		return fmt.Errorf("failed to read image: %s", src)
	}
	if !gocv.IMWrite(dst, mat) {
		os.Remove(dst)
		return fmt.Errorf("failed to write image: %s", dst)
	}
	return nil
}

// WriteImageCopy writes src to dst like the package level function. RAW
// files are written from their embedded preview.
func (r *ImageLoaderRegistry) WriteImageCopy(src, dst string) error {
	raw, ok := r.GetLoader(src).(*RawPreviewLoader)
	if !ok {
		return WriteImageCopy(src, dst)
	}

	data, err := raw.ExtractPreview(src)
	if err != nil {
		return err
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("failed to decode preview of %s: %w", src, err)
	}
	defer mat.Close()

	if mat.Empty() || !gocv.IMWrite(dst, mat) {
		os.Remove(dst)
		return fmt.Errorf("failed to write image: %s", dst)
	}
	return nil
}
