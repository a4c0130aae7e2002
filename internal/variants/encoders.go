// internal/variants/encoders.go
package variants

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

// EncodeFunc writes img to w at the given quality. The effort parameter
// is only meaningful for AVIF (encoder speed); other codecs ignore it.
type EncodeFunc func(w io.Writer, img image.Image, quality, effort int) error

// DefaultEncoders returns the production codec registry.
func DefaultEncoders() map[schema.VariantFormat]EncodeFunc {
	return map[schema.VariantFormat]EncodeFunc{
		schema.FormatWebP: encodeWebP,
		schema.FormatAVIF: encodeAVIF,
		schema.FormatJPEG: encodeJPEG,
	}
}

func encodeWebP(w io.Writer, img image.Image, quality, _ int) error {
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return err
	}
	return webp.Encode(w, img, opts)
}

func encodeAVIF(w io.Writer, img image.Image, quality, effort int) error {
	return avif.Encode(w, img, avif.Options{Quality: quality, Speed: effort})
}

func encodeJPEG(w io.Writer, img image.Image, quality, _ int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func contentTypeFor(format schema.VariantFormat) string {
	switch format {
	case schema.FormatWebP:
		return "image/webp"
	case schema.FormatAVIF:
		return "image/avif"
	default:
		return "image/jpeg"
	}
}

func extensionFor(format schema.VariantFormat) string {
	if format == schema.FormatJPEG {
		return "jpg"
	}
	return string(format)
}
