// internal/variants/generator.go
package variants

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/antolu/haochen.lu-sub001/internal/apperr"
	"github.com/antolu/haochen.lu-sub001/internal/imagecfg"
	"github.com/antolu/haochen.lu-sub001/internal/storage"
	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

// Publisher delivers progress events while the matrix is encoded.
type Publisher interface {
	Publish(uploadID, stage string, pct int)
}

// Generator produces the size×format variant matrix for one decoded
// image using a frozen settings snapshot.
type Generator struct {
	blobs    storage.BlobStore
	encoders map[schema.VariantFormat]EncodeFunc
	formats  []schema.VariantFormat
	progress Publisher
	logger   *slog.Logger
}

// NewGenerator builds a generator over the given blob store and format
// set. A nil encoder registry selects the production codecs.
func NewGenerator(blobs storage.BlobStore, formats []schema.VariantFormat, encoders map[schema.VariantFormat]EncodeFunc, progress Publisher, logger *slog.Logger) *Generator {
	if encoders == nil {
		encoders = DefaultEncoders()
	}
	return &Generator{
		blobs:    blobs,
		encoders: encoders,
		formats:  formats,
		progress: progress,
		logger:   logger,
	}
}

// Generate encodes every configured tier in every enabled format. A
// single failed encode is logged and omitted from the manifest; the
// call fails only when no variant could be produced at all.
//
// The settings snapshot is used as-is for the whole matrix: a
// concurrent administrative update never affects an in-flight upload.
func (g *Generator) Generate(ctx context.Context, uploadID, assetID string, src image.Image, cfg *imagecfg.Settings) (schema.VariantManifest, error) {
	tiers := make([]string, 0, len(cfg.ResponsiveSizes))
	for tier := range cfg.ResponsiveSizes {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)

	total := len(tiers) * len(g.formats)
	if total == 0 {
		return nil, &apperr.ImageProcessingError{Op: "generate", Err: fmt.Errorf("no tiers or formats configured")}
	}

	manifest := make(schema.VariantManifest, len(tiers))
	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)

	for _, tier := range tiers {
		wg.Add(1)
		go func(tier string) {
			defer wg.Done()

			resized := fitToTier(src, cfg.ResponsiveSizes[tier])

			for _, format := range g.formats {
				info, err := g.encodeOne(ctx, assetID, tier, format, resized, cfg)

				mu.Lock()
				if err != nil {
					g.logger.Warn("variant encode failed, omitting from manifest",
						"upload_id", uploadID, "tier", tier, "format", format, "err", err)
				} else {
					if manifest[tier] == nil {
						manifest[tier] = make(map[schema.VariantFormat]schema.VariantInfo, len(g.formats))
					}
					manifest[tier][format] = *info
					done++
					pct := int(math.Round(100 * float64(done) / float64(total)))
					g.progress.Publish(uploadID, schema.StageEncoding, pct)
				}
				mu.Unlock()
			}
		}(tier)
	}
	wg.Wait()

	if manifest.Count() == 0 {
		return nil, &apperr.ImageProcessingError{Op: "generate", Err: fmt.Errorf("all %d variant encodes failed", total)}
	}
	return manifest, nil
}

func (g *Generator) encodeOne(ctx context.Context, assetID, tier string, format schema.VariantFormat, resized image.Image, cfg *imagecfg.Settings) (*schema.VariantInfo, error) {
	encode, ok := g.encoders[format]
	if !ok {
		return nil, fmt.Errorf("no encoder registered for %s", format)
	}

	quality := qualityFor(format, tier, cfg)

	var buf bytes.Buffer
	if err := encode(&buf, resized, quality, cfg.AVIFEffortDefault); err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", tier, format, err)
	}

	filename := fmt.Sprintf("%s_%s.%s", tier, format, extensionFor(format))
	relPath := fmt.Sprintf("variants/%s/%s", assetID, filename)
	if err := g.blobs.Write(ctx, relPath, buf.Bytes(), contentTypeFor(format)); err != nil {
		return nil, fmt.Errorf("store %s: %w", relPath, err)
	}

	bounds := resized.Bounds()
	return &schema.VariantInfo{
		Path:      relPath,
		Filename:  filename,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		SizeBytes: int64(buf.Len()),
		Format:    format,
	}, nil
}

// fitToTier bounds the longer edge at maxEdge, preserving aspect ratio
// and never upscaling.
func fitToTier(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	longer := b.Dx()
	if b.Dy() > longer {
		longer = b.Dy()
	}
	if longer <= maxEdge {
		return src
	}
	return imaging.Fit(src, maxEdge, maxEdge, imaging.Lanczos)
}

func qualityFor(format schema.VariantFormat, tier string, cfg *imagecfg.Settings) int {
	switch format {
	case schema.FormatWebP:
		return cfg.WebPQuality
	case schema.FormatAVIF:
		return cfg.AVIFQuality(tier)
	default:
		return cfg.QualitySettings[tier]
	}
}
