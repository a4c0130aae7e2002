package exifmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"testing"

	"github.com/antolu/haochen.lu-sub001/internal/apperr"
)

func TestExtractDimensionsFromMetadataFreeImage(t *testing.T) {
	data := encodeTestPNG(t, 640, 480)

	meta, err := Extract(data, "image/png", slog.Default())
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if meta.Width != 640 || meta.Height != 480 {
		t.Fatalf("unexpected dimensions: got %dx%d, want 640x480", meta.Width, meta.Height)
	}
	if meta.CameraMake != nil || meta.CameraModel != nil || meta.LensModel != nil {
		t.Fatal("expected no camera metadata in a bare PNG")
	}
	if meta.HasGPS() {
		t.Fatal("expected no GPS metadata in a bare PNG")
	}
}

func TestExtractRejectsUndecodableInput(t *testing.T) {
	_, err := Extract([]byte("definitely not an image"), "text/plain", slog.Default())
	if err == nil {
		t.Fatal("expected error for undecodable input")
	}

	var unsupported *apperr.UnsupportedFileTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFileTypeError, got %T: %v", err, err)
	}
	if unsupported.ContentType != "text/plain" {
		t.Fatalf("unexpected content type on error: %s", unsupported.ContentType)
	}
}

func TestDMSToDecimal(t *testing.T) {
	tests := []struct {
		name          string
		deg, min, sec float64
		ref           string
		want          float64
	}{
		{"san francisco latitude", 37, 46, 29.9988, "N", 37.7749997},
		{"san francisco longitude", 122, 25, 9.9984, "W", -122.4194440},
		{"southern hemisphere", 33, 52, 4.0, "S", -33.8677778},
		{"eastern hemisphere", 151, 12, 26.0, "E", 151.2072222},
		{"equator", 0, 0, 0, "N", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DMSToDecimal(tt.deg, tt.min, tt.sec, tt.ref)
			if math.Abs(got-tt.want) > 1e-5 {
				t.Fatalf("got %.7f, want %.7f", got, tt.want)
			}
		})
	}
}

func TestParseExifGPSAndOffsetTime(t *testing.T) {
	meta := &Metadata{}
	if err := parseExif(buildExifTIFF(t), meta); err != nil {
		t.Fatalf("parseExif returned error: %v", err)
	}

	if !meta.HasGPS() {
		t.Fatal("expected GPS coordinates from the EXIF block")
	}
	if math.Abs(*meta.Latitude-37.7749997) > 1e-5 {
		t.Fatalf("latitude %.7f, want 37.7749997", *meta.Latitude)
	}
	if math.Abs(*meta.Longitude+122.4194440) > 1e-5 {
		t.Fatalf("longitude %.7f, want -122.4194440", *meta.Longitude)
	}

	if meta.Timezone == nil {
		t.Fatal("expected timezone from OffsetTimeOriginal")
	}
	if *meta.Timezone != "+02:00" {
		t.Fatalf("timezone %q, want +02:00", *meta.Timezone)
	}
}

// buildExifTIFF assembles a minimal little-endian TIFF whose IFD0
// points at an Exif sub-IFD carrying OffsetTimeOriginal (0x9011,
// "+02:00") and a GPS sub-IFD carrying 37°46'29.9988"N,
// 122°25'9.9984"W as degree/minute/second rationals.
func buildExifTIFF(t *testing.T) []byte {
	t.Helper()

	putEntry := func(buf *bytes.Buffer, tag, typ uint16, count, value uint32) {
		binary.Write(buf, binary.LittleEndian, tag)
		binary.Write(buf, binary.LittleEndian, typ)
		binary.Write(buf, binary.LittleEndian, count)
		binary.Write(buf, binary.LittleEndian, value)
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(0x2A))
	binary.Write(&buf, binary.LittleEndian, uint32(8)) // IFD0 offset

	// IFD0 at 8: pointers to the Exif (0x8769) and GPS (0x8825) sub-IFDs.
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	putEntry(&buf, 0x8769, 4, 1, 38)
	putEntry(&buf, 0x8825, 4, 1, 64)
	binary.Write(&buf, binary.LittleEndian, uint32(0))

	// Exif sub-IFD at 38: OffsetTimeOriginal, ASCII value at 56.
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	putEntry(&buf, 0x9011, 2, 7, 56)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("+02:00\x00")
	buf.WriteByte(0) // pad to the GPS IFD offset

	// GPS sub-IFD at 64: refs inline, DMS rationals at 118 and 142.
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	putEntry(&buf, 0x0001, 2, 2, uint32('N'))
	putEntry(&buf, 0x0002, 5, 3, 118)
	putEntry(&buf, 0x0003, 2, 2, uint32('W'))
	putEntry(&buf, 0x0004, 5, 3, 142)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	for _, v := range []uint32{
		37, 1, 46, 1, 299988, 10000, // latitude 37°46'29.9988"
		122, 1, 25, 1, 99984, 10000, // longitude 122°25'9.9984"
	} {
		binary.Write(&buf, binary.LittleEndian, v)
	}

	return buf.Bytes()
}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
