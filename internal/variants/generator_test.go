package variants

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/antolu/haochen.lu-sub001/internal/apperr"
	"github.com/antolu/haochen.lu-sub001/internal/imagecfg"
	"github.com/antolu/haochen.lu-sub001/internal/storage"
	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

// stubEncode stands in for the real codecs so tests stay fast and free
// of codec runtime dependencies.
func stubEncode(w io.Writer, img image.Image, quality, _ int) error {
	b := img.Bounds()
	_, err := fmt.Fprintf(w, "%dx%d@q%d", b.Dx(), b.Dy(), quality)
	return err
}

type recordedEvent struct {
	stage string
	pct   int
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_, stage string, pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{stage: stage, pct: pct})
}

func (p *recordingPublisher) snapshot() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent(nil), p.events...)
}

func testSettings() *imagecfg.Settings {
	return &imagecfg.Settings{
		ResponsiveSizes:       map[string]int{"thumbnail": 400, "large": 1600},
		QualitySettings:       map[string]int{"thumbnail": 80, "large": 85},
		AVIFQualityBaseOffset: 5,
		AVIFQualityFloor:      50,
		AVIFEffortDefault:     6,
		WebPQuality:           82,
	}
}

func newTestGenerator(t *testing.T, formats []schema.VariantFormat, pub Publisher) *Generator {
	t.Helper()
	blobs, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("create disk store: %v", err)
	}
	encoders := make(map[schema.VariantFormat]EncodeFunc)
	for format := range DefaultEncoders() {
		encoders[format] = stubEncode
	}
	return NewGenerator(blobs, formats, encoders, pub, slog.Default())
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 16 {
		for y := 0; y < h; y += 16 {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	return img
}

func TestGenerateFullMatrix(t *testing.T) {
	pub := &recordingPublisher{}
	g := newTestGenerator(t, []schema.VariantFormat{schema.FormatWebP, schema.FormatAVIF}, pub)

	manifest, err := g.Generate(context.Background(), "up-1", "asset-1", testImage(1920, 1080), testSettings())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if manifest.Count() != 4 {
		t.Fatalf("expected 4 variants, got %d", manifest.Count())
	}

	wantDims := map[string][2]int{"thumbnail": {400, 225}, "large": {1600, 900}}
	for tier, want := range wantDims {
		for _, format := range []schema.VariantFormat{schema.FormatWebP, schema.FormatAVIF} {
			info, ok := manifest[tier][format]
			if !ok {
				t.Fatalf("missing variant %s/%s", tier, format)
			}
			if info.Width != want[0] || info.Height != want[1] {
				t.Fatalf("%s/%s: got %dx%d, want %dx%d", tier, format, info.Width, info.Height, want[0], want[1])
			}
			if info.SizeBytes <= 0 {
				t.Fatalf("%s/%s: size not recorded", tier, format)
			}
			wantPath := fmt.Sprintf("variants/asset-1/%s_%s.%s", tier, format, extensionFor(format))
			if info.Path != wantPath {
				t.Fatalf("%s/%s: path %s, want %s", tier, format, info.Path, wantPath)
			}
		}
	}

	events := pub.snapshot()
	if len(events) != 4 {
		t.Fatalf("expected 4 progress events, got %d", len(events))
	}
	last := -1
	for _, evt := range events {
		if evt.stage != schema.StageEncoding {
			t.Fatalf("unexpected stage %q", evt.stage)
		}
		if evt.pct < last {
			t.Fatalf("progress decreased: %d after %d", evt.pct, last)
		}
		last = evt.pct
	}
	if last != 100 {
		t.Fatalf("final progress %d, want 100", last)
	}
}

func TestGenerateNeverUpscales(t *testing.T) {
	g := newTestGenerator(t, []schema.VariantFormat{schema.FormatJPEG}, &recordingPublisher{})

	manifest, err := g.Generate(context.Background(), "up-1", "asset-1", testImage(300, 200), testSettings())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	for tier, formats := range manifest {
		for _, info := range formats {
			if info.Width != 300 || info.Height != 200 {
				t.Fatalf("tier %s upscaled to %dx%d", tier, info.Width, info.Height)
			}
		}
	}
}

func TestGenerateOmitsFailedPairAndSucceeds(t *testing.T) {
	pub := &recordingPublisher{}
	g := newTestGenerator(t, []schema.VariantFormat{schema.FormatWebP, schema.FormatAVIF}, pub)
	g.encoders[schema.FormatAVIF] = func(w io.Writer, img image.Image, quality, effort int) error {
		if img.Bounds().Dx() == 400 {
			return errors.New("codec exploded")
		}
		return stubEncode(w, img, quality, effort)
	}

	manifest, err := g.Generate(context.Background(), "up-1", "asset-1", testImage(1920, 1080), testSettings())
	if err != nil {
		t.Fatalf("Generate returned error despite partial success: %v", err)
	}

	if manifest.Count() != 3 {
		t.Fatalf("expected 3 variants, got %d", manifest.Count())
	}
	if _, ok := manifest["thumbnail"][schema.FormatAVIF]; ok {
		t.Fatal("failed pair present in manifest")
	}
	if _, ok := manifest["thumbnail"][schema.FormatWebP]; !ok {
		t.Fatal("sibling format missing from manifest")
	}
	if _, ok := manifest["large"][schema.FormatAVIF]; !ok {
		t.Fatal("unrelated tier missing from manifest")
	}
}

func TestGenerateFailsWhenEveryEncodeFails(t *testing.T) {
	g := newTestGenerator(t, []schema.VariantFormat{schema.FormatWebP}, &recordingPublisher{})
	g.encoders[schema.FormatWebP] = func(io.Writer, image.Image, int, int) error {
		return errors.New("codec exploded")
	}

	_, err := g.Generate(context.Background(), "up-1", "asset-1", testImage(800, 600), testSettings())
	if err == nil {
		t.Fatal("expected error when all encodes fail")
	}
	var procErr *apperr.ImageProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ImageProcessingError, got %T: %v", err, err)
	}
}

func TestStoredVariantQualityPolicy(t *testing.T) {
	var captured sync.Map
	g := newTestGenerator(t, []schema.VariantFormat{schema.FormatWebP, schema.FormatAVIF, schema.FormatJPEG}, &recordingPublisher{})
	for _, format := range []schema.VariantFormat{schema.FormatWebP, schema.FormatAVIF, schema.FormatJPEG} {
		format := format
		g.encoders[format] = func(w io.Writer, img image.Image, quality, effort int) error {
			captured.Store(fmt.Sprintf("%d_%s", img.Bounds().Dx(), format), [2]int{quality, effort})
			return stubEncode(w, img, quality, effort)
		}
	}

	cfg := testSettings()
	if _, err := g.Generate(context.Background(), "up-1", "asset-1", testImage(1920, 1080), cfg); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	checks := map[string][2]int{
		"1600_webp": {82, 6}, // webp_quality
		"1600_avif": {80, 6}, // 85 - 5 offset
		"400_avif":  {75, 6}, // 80 - 5 offset
		"1600_jpeg": {85, 6}, // quality_settings[large]
		"400_jpeg":  {80, 6}, // quality_settings[thumbnail]
	}
	for key, want := range checks {
		v, ok := captured.Load(key)
		if !ok {
			t.Fatalf("no encode captured for %s", key)
		}
		if v.([2]int) != want {
			t.Fatalf("%s: got quality/effort %v, want %v", key, v, want)
		}
	}
}

func TestAVIFQualityFloorApplied(t *testing.T) {
	var got int
	g := newTestGenerator(t, []schema.VariantFormat{schema.FormatAVIF}, &recordingPublisher{})
	g.encoders[schema.FormatAVIF] = func(w io.Writer, img image.Image, quality, effort int) error {
		got = quality
		return stubEncode(w, img, quality, effort)
	}

	cfg := testSettings()
	cfg.ResponsiveSizes = map[string]int{"thumbnail": 400}
	cfg.QualitySettings = map[string]int{"thumbnail": 52}

	if _, err := g.Generate(context.Background(), "up-1", "asset-1", testImage(800, 600), cfg); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got != 50 {
		t.Fatalf("avif quality %d, want floor 50", got)
	}
}
