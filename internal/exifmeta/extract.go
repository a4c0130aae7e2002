// internal/exifmeta/extract.go
package exifmeta

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/antolu/haochen.lu-sub001/internal/apperr"
)

// The EXIF 2.31 offset time tags postdate goexif's built-in field map,
// so Decode silently drops them; loadOffsetTimeTags re-reads the Exif
// sub-IFD with a supplemental map to make them addressable.
const (
	offsetTime          exif.FieldName = "OffsetTime"
	offsetTimeOriginal  exif.FieldName = "OffsetTimeOriginal"
	offsetTimeDigitized exif.FieldName = "OffsetTimeDigitized"
)

var offsetTimeFields = map[uint16]exif.FieldName{
	0x9010: offsetTime,
	0x9011: offsetTimeOriginal,
	0x9012: offsetTimeDigitized,
}

// Metadata holds the fields extracted from an image's EXIF block. Every
// field is optional; a structurally valid image with no metadata yields
// an empty Metadata and no error.
type Metadata struct {
	CameraMake   *string    `json:"camera_make,omitempty"`
	CameraModel  *string    `json:"camera_model,omitempty"`
	LensModel    *string    `json:"lens_model,omitempty"`
	ISO          *int       `json:"iso,omitempty"`
	FNumber      *float64   `json:"f_number,omitempty"`
	ShutterSpeed *string    `json:"shutter_speed,omitempty"`
	FocalLength  *float64   `json:"focal_length,omitempty"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Altitude     *float64   `json:"altitude,omitempty"`
	Timezone     *string    `json:"timezone,omitempty"`

	Width  int `json:"width"`
	Height int `json:"height"`
}

// HasGPS reports whether both coordinates were present.
func (m *Metadata) HasGPS() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// Extract decodes the image header for dimensions and parses the EXIF
// block when one is present. Undecodable input fails with
// *apperr.UnsupportedFileTypeError; malformed EXIF degrades to absent
// fields and is only logged.
func Extract(data []byte, contentType string, logger *slog.Logger) (*Metadata, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &apperr.UnsupportedFileTypeError{ContentType: contentType, Err: err}
	}

	meta := &Metadata{Width: cfg.Width, Height: cfg.Height}
	if err := parseExif(data, meta); err != nil {
		// Metadata is best-effort: a corrupt EXIF block must not
		// abort ingestion.
		logger.Warn("exif parse failed, continuing without metadata", "err", err)
	}
	return meta, nil
}

// parseExif fills meta from the EXIF block. goexif is known to panic on
// some malformed inputs, so the whole parse runs behind a recover.
func parseExif(data []byte, meta *Metadata) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &apperr.ImageProcessingError{Op: "exif", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		if exif.IsCriticalError(err) {
			return &apperr.ImageProcessingError{Op: "exif", Err: err}
		}
		// Non-critical: goexif still exposes whatever it parsed.
	}
	if x == nil {
		return nil
	}

	meta.CameraMake = stringTag(x, exif.Make)
	meta.CameraModel = stringTag(x, exif.Model)
	meta.LensModel = stringTag(x, exif.LensModel)
	meta.ISO = intTag(x, exif.ISOSpeedRatings)
	meta.FNumber = ratioTag(x, exif.FNumber)
	meta.FocalLength = ratioTag(x, exif.FocalLength)
	meta.ShutterSpeed = rationalString(x, exif.ExposureTime)

	loadOffsetTimeTags(x)
	meta.Timezone = stringTag(x, offsetTimeOriginal)
	if meta.Timezone == nil {
		meta.Timezone = stringTag(x, offsetTime)
	}

	if t, err := x.DateTime(); err == nil {
		meta.TakenAt = &t
	}

	fillGPS(x, meta)
	return nil
}

// loadOffsetTimeTags walks back to the Exif sub-IFD in the raw TIFF
// block and loads the offset time tags, mirroring how goexif loads its
// own sub-IFDs. Absence of the pointer or a short block is not an
// error; the tags simply stay unavailable.
func loadOffsetTimeTags(x *exif.Exif) {
	ptr, err := x.Get(exif.ExifIFDPointer)
	if err != nil {
		return
	}
	offset, err := ptr.Int64(0)
	if err != nil {
		return
	}

	r := bytes.NewReader(x.Raw)
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return
	}
	subDir, _, err := tiff.DecodeDir(r, x.Tiff.Order)
	if err != nil {
		return
	}
	x.LoadTags(subDir, offsetTimeFields, false)
}

func fillGPS(x *exif.Exif, meta *Metadata) {
	lat, latErr := coordinate(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	lng, lngErr := coordinate(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if latErr == nil && lngErr == nil {
		meta.Latitude = &lat
		meta.Longitude = &lng
	}

	altTag, err := x.Get(exif.GPSAltitude)
	if err != nil {
		return
	}
	num, den, err := altTag.Rat2(0)
	if err != nil || den == 0 {
		return
	}
	alt := float64(num) / float64(den)
	if refTag, err := x.Get(exif.GPSAltitudeRef); err == nil {
		if ref, err := refTag.Int(0); err == nil && ref == 1 {
			alt = -alt
		}
	}
	meta.Altitude = &alt
}

// coordinate converts a degree/minute/second rational triple plus its
// hemisphere reference into signed decimal degrees.
func coordinate(x *exif.Exif, field, refField exif.FieldName) (float64, error) {
	tag, err := x.Get(field)
	if err != nil {
		return 0, err
	}
	refTag, err := x.Get(refField)
	if err != nil {
		return 0, err
	}
	ref, err := refTag.StringVal()
	if err != nil {
		return 0, err
	}

	var parts [3]float64
	for i := 0; i < 3; i++ {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return 0, err
		}
		if den == 0 {
			return 0, fmt.Errorf("zero denominator in GPS rational %d", i)
		}
		parts[i] = float64(num) / float64(den)
	}
	return DMSToDecimal(parts[0], parts[1], parts[2], ref), nil
}

// DMSToDecimal converts degrees/minutes/seconds and a hemisphere
// reference (N/S/E/W) to signed decimal degrees.
func DMSToDecimal(deg, min, sec float64, ref string) float64 {
	dec := deg + min/60 + sec/3600
	if ref == "S" || ref == "W" {
		return -dec
	}
	return dec
}

func stringTag(x *exif.Exif, field exif.FieldName) *string {
	tag, err := x.Get(field)
	if err != nil {
		return nil
	}
	s, err := tag.StringVal()
	if err != nil || s == "" {
		return nil
	}
	return &s
}

func intTag(x *exif.Exif, field exif.FieldName) *int {
	tag, err := x.Get(field)
	if err != nil {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &v
}

func ratioTag(x *exif.Exif, field exif.FieldName) *float64 {
	tag, err := x.Get(field)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}

// rationalString keeps shutter speeds in their familiar fractional form,
// e.g. "1/250".
func rationalString(x *exif.Exif, field exif.FieldName) *string {
	tag, err := x.Get(field)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	var s string
	if den == 1 {
		s = fmt.Sprintf("%d", num)
	} else {
		s = fmt.Sprintf("%d/%d", num, den)
	}
	return &s
}
