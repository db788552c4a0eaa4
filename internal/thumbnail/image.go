package thumbnail

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"clipvault/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	// maxImageDimension is the maximum width or height of the image that
	// loadImageConstrained returns. Larger sources are resized down to it.
	maxImageDimension = 1600

	// maxImagePixels bounds total decode memory. 1600x1600 is ~2.6MP and
	// uses roughly 10MB in RGBA.
	maxImagePixels = 2_560_000
)

// loadJPEGDownsampled decodes a JPEG and resizes it in one pass, using a
// two-stage box-then-Lanczos resize for source images much larger than the
// target to keep peak memory down.
func loadJPEGDownsampled(path string, targetWidth, targetHeight int) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JPEG: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close JPEG file %s: %v", path, err)
		}
	}()

	config, err := jpeg.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JPEG config: %w", err)
	}

	if _, err := file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to seek: %w", err)
	}

	if config.Width > targetWidth*4 || config.Height > targetHeight*4 {
		logging.Debug("JPEG two-stage resize %s: %dx%d -> intermediate -> %dx%d",
			filepath.Base(path), config.Width, config.Height, targetWidth, targetHeight)

		img, err := jpeg.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("failed to decode JPEG: %w", err)
		}

		intermediate := imaging.Resize(img, targetWidth*2, targetHeight*2, imaging.Box)
		runtime.GC()

		return imaging.Resize(intermediate, targetWidth, targetHeight, imaging.Lanczos), nil
	}

	img, err := jpeg.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JPEG: %w", err)
	}

	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}

// loadImageConstrained loads an image and, when it exceeds maxDimension or
// maxPixels, resizes it to fit both limits. The source is decoded at full
// size before the resize.
func loadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, error) {
	dimensions, err := getImageDimensions(path)
	if err != nil {
		logging.Debug("Could not get image dimensions for %s: %v, loading with constraints", path, err)
		return imaging.Open(path, imaging.AutoOrientation(true))
	}

	width, height := dimensions.Width, dimensions.Height
	pixels := width * height

	needsConstraint := width > maxDimension || height > maxDimension || pixels > maxPixels
	if !needsConstraint {
		return imaging.Open(path, imaging.AutoOrientation(true))
	}

	targetWidth, targetHeight := width, height
	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}

	targetPixels := targetWidth * targetHeight
	if targetPixels > maxPixels {
		scale := float64(maxPixels) / float64(targetPixels)
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".jpg" || ext == ".jpeg" {
		img, err := loadJPEGDownsampled(path, targetWidth, targetHeight)
		if err == nil {
			return img, nil
		}
		logging.Debug("JPEG optimized loading failed for %s: %v, falling back to standard method", path, err)
	}

	logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, width, height, targetWidth, targetHeight)

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}

// imageDimensions holds image width and height.
type imageDimensions struct {
	Width  int
	Height int
}

// getImageDimensions returns image dimensions without fully decoding the image.
func getImageDimensions(path string) (*imageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &imageDimensions{Width: config.Width, Height: config.Height}, nil
}
