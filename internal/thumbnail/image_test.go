package thumbnail

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func createTestImage(t *testing.T, path string, width, height int, format string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: 128,
				A: 255,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test image file: %v", err)
	}
	defer f.Close()

	switch format {
	case "jpeg", "jpg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(f, img)
	default:
		t.Fatalf("unsupported test image format: %s", format)
	}
	if err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
}

func TestGetImageDimensions(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name   string
		width  int
		height int
		format string
	}{
		{"small jpeg", 100, 100, "jpeg"},
		{"large jpeg", 4000, 3000, "jpeg"},
		{"small png", 200, 150, "png"},
		{"wide", 1920, 1080, "jpeg"},
		{"tall", 1080, 1920, "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := filepath.Join(tmpDir, tt.name+"."+tt.format)
			createTestImage(t, filename, tt.width, tt.height, tt.format)

			dims, err := getImageDimensions(filename)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dims.Width != tt.width || dims.Height != tt.height {
				t.Errorf("dims = %dx%d, want %dx%d", dims.Width, dims.Height, tt.width, tt.height)
			}
		})
	}
}

func TestGetImageDimensionsErrors(t *testing.T) {
	if _, err := getImageDimensions("/nonexistent/path/to/image.jpg"); err == nil {
		t.Error("expected error for nonexistent file")
	}

	tmpFile, err := os.CreateTemp("", "not-image-*.txt")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.WriteString("this is not an image")
	tmpFile.Close()

	if _, err := getImageDimensions(tmpFile.Name()); err == nil {
		t.Error("expected error for non-image file")
	}
}

func TestLoadImageConstrained(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name            string
		width, height   int
		maxDimension    int
		maxPixels       int
		expectConstrain bool
		format          string
	}{
		{"no constraint", 800, 600, 1600, 2560000, false, "jpeg"},
		{"constrain by width", 3200, 1600, 1600, 10000000, true, "jpeg"},
		{"constrain by height", 1600, 3200, 1600, 10000000, true, "jpeg"},
		{"constrain by pixels", 2000, 2000, 5000, 1000000, true, "jpeg"},
		{"png constrain", 2400, 1800, 1600, 2560000, true, "png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := filepath.Join(tmpDir, tt.name+"."+tt.format)
			createTestImage(t, filename, tt.width, tt.height, tt.format)

			img, err := loadImageConstrained(filename, tt.maxDimension, tt.maxPixels)
			if err != nil {
				t.Fatalf("loadImageConstrained failed: %v", err)
			}

			bounds := img.Bounds()
			w, h := bounds.Dx(), bounds.Dy()

			if w > tt.maxDimension || h > tt.maxDimension {
				t.Errorf("result %dx%d exceeds maxDimension %d", w, h, tt.maxDimension)
			}
			if w*h > tt.maxPixels {
				t.Errorf("result pixels %d exceeds maxPixels %d", w*h, tt.maxPixels)
			}
			if tt.expectConstrain && (w >= tt.width || h >= tt.height) {
				t.Errorf("expected constraining, got %dx%d from %dx%d", w, h, tt.width, tt.height)
			}
		})
	}
}

func TestLoadJPEGDownsampled(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name                       string
		width, height              int
		targetWidth, targetHeight  int
	}{
		{"single stage", 800, 600, 200, 150},
		{"two stage", 6400, 4800, 400, 300},
		{"4x boundary", 1600, 1200, 400, 300},
		{"just over 4x", 1700, 1300, 400, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := filepath.Join(tmpDir, tt.name+".jpg")
			createTestImage(t, filename, tt.width, tt.height, "jpeg")

			img, err := loadJPEGDownsampled(filename, tt.targetWidth, tt.targetHeight)
			if err != nil {
				t.Fatalf("loadJPEGDownsampled failed: %v", err)
			}

			bounds := img.Bounds()
			if bounds.Dx() != tt.targetWidth || bounds.Dy() != tt.targetHeight {
				t.Errorf("dims = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), tt.targetWidth, tt.targetHeight)
			}
		})
	}
}

func TestLoadJPEGDownsampledErrors(t *testing.T) {
	if _, err := loadJPEGDownsampled("/nonexistent/image.jpg", 100, 100); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestImageConstants(t *testing.T) {
	if maxImageDimension <= 0 {
		t.Errorf("maxImageDimension should be positive, got %d", maxImageDimension)
	}
	if maxImagePixels <= 0 {
		t.Errorf("maxImagePixels should be positive, got %d", maxImagePixels)
	}
	if maxImagePixels > maxImageDimension*maxImageDimension*2 {
		t.Errorf("maxImagePixels (%d) seems too large for maxImageDimension (%d)", maxImagePixels, maxImageDimension)
	}
}

func TestLoadImageConstrainedRealScenarios(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name          string
		width, height int
		format        string
	}{
		{"camera photo", 4032, 3024, "jpeg"},
		{"high-res screenshot", 2560, 1440, "png"},
		{"ultra-wide", 3440, 1440, "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := filepath.Join(tmpDir, tt.name+"."+tt.format)
			createTestImage(t, filename, tt.width, tt.height, tt.format)

			img, err := loadImageConstrained(filename, maxImageDimension, maxImagePixels)
			if err != nil {
				t.Fatalf("loadImageConstrained failed: %v", err)
			}

			bounds := img.Bounds()
			w, h := bounds.Dx(), bounds.Dy()
			if w > maxImageDimension || h > maxImageDimension {
				t.Errorf("%dx%d exceeds maxImageDimension %d", w, h, maxImageDimension)
			}
			if w*h > maxImagePixels {
				t.Errorf("pixels %d exceeds maxImagePixels %d", w*h, maxImagePixels)
			}
		})
	}
}
