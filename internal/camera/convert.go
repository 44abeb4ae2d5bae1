package camera

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// LoadImage decodes an image file into an upright Go image
func LoadImage(path string) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return nil, fmt.Errorf("failed to load image: %s", path)
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", path, err)
	}
	return img, nil
}

// LoadI420 decodes an image file into a packed I420 buffer
func LoadI420(path string) ([]byte, int, int, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return nil, 0, 0, fmt.Errorf("failed to load image: %s", path)
	}
	defer mat.Close()
	return MatToI420(mat)
}

// MatToI420 converts a BGR Mat to I420. Odd dimensions are trimmed by one
// pixel since the conversion needs even sizes.
func MatToI420(bgr gocv.Mat) ([]byte, int, int, error) {
	width := bgr.Cols() &^ 1
	height := bgr.Rows() &^ 1
	if width == 0 || height == 0 {
		return nil, 0, 0, fmt.Errorf("frame too small: %dx%d", bgr.Cols(), bgr.Rows())
	}

	src := bgr
	if width != bgr.Cols() || height != bgr.Rows() {
		src = bgr.Region(image.Rect(0, 0, width, height))
		defer src.Close()
	}

	yuv := gocv.NewMat()
	defer yuv.Close()
	gocv.CvtColor(src, &yuv, gocv.ColorBGRToYUVI420)

	buf := yuv.ToBytes()
	if len(buf) < width*height*3/2 {
		return nil, 0, 0, fmt.Errorf("short I420 conversion: %d bytes for %dx%d", len(buf), width, height)
	}
	return buf, width, height, nil
}
