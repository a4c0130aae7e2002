// internal/ingest/service.go
package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/disintegration/imaging"

	"github.com/antolu/haochen.lu-sub001/internal/access"
	"github.com/antolu/haochen.lu-sub001/internal/apperr"
	"github.com/antolu/haochen.lu-sub001/internal/exifmeta"
	"github.com/antolu/haochen.lu-sub001/internal/geo"
	"github.com/antolu/haochen.lu-sub001/internal/imagecfg"
	"github.com/antolu/haochen.lu-sub001/internal/storage"
	"github.com/antolu/haochen.lu-sub001/internal/variants"
	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

// EventPublisher mirrors lifecycle events to an external bus.
type EventPublisher interface {
	PublishJSON(subject string, v any) error
}

// Service runs the ingestion pipeline: metadata extraction, optional
// place-name enrichment, variant generation, persistence, and progress
// plus lifecycle event reporting.
type Service struct {
	photos    *storage.PhotoRepo
	blobs     storage.BlobStore
	settings  *imagecfg.Store
	generator *variants.Generator
	formats   []schema.VariantFormat
	hub       variants.Publisher
	geocoder  geo.Geocoder   // optional
	events    EventPublisher // optional
	subject   string
	logger    *slog.Logger
}

func NewService(
	photos *storage.PhotoRepo,
	blobs storage.BlobStore,
	settings *imagecfg.Store,
	generator *variants.Generator,
	formats []schema.VariantFormat,
	hub variants.Publisher,
	geocoder geo.Geocoder,
	events EventPublisher,
	subject string,
	logger *slog.Logger,
) *Service {
	return &Service{
		photos:    photos,
		blobs:     blobs,
		settings:  settings,
		generator: generator,
		formats:   formats,
		hub:       hub,
		geocoder:  geocoder,
		events:    events,
		subject:   subject,
		logger:    logger,
	}
}

// Input is one accepted upload. UploadID and PhotoID are minted when
// the upload is accepted so the caller can subscribe to progress before
// processing starts.
type Input struct {
	UploadID    string
	PhotoID     string
	Data        []byte
	Filename    string
	ContentType string
	AccessLevel access.Level
}

// Result is handed back after the persistence collaborator owns the
// photo row and its manifest.
type Result struct {
	Photo    *storage.Photo
	Manifest schema.VariantManifest
}

// Ingest runs the pipeline to completion. Once an upload is accepted it
// is not cancellable; ctx applies to storage and collaborator calls.
func (s *Service) Ingest(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	logger := s.logger.With("upload_id", in.UploadID, "photo_id", in.PhotoID)
	logger.Info("ingest started", "filename", in.Filename, "bytes", len(in.Data))

	s.hub.Publish(in.UploadID, schema.StageExtracting, 0)

	meta, err := exifmeta.Extract(in.Data, in.ContentType, logger)
	if err != nil {
		logger.Warn("upload rejected", "err", err)
		s.hub.Publish(in.UploadID, schema.StageFailed, 0)
		s.publishCompleted(in, nil, nil, start, err)
		return nil, err
	}

	src, err := imaging.Decode(bytes.NewReader(in.Data), imaging.AutoOrientation(true))
	if err != nil {
		err = &apperr.UnsupportedFileTypeError{ContentType: in.ContentType, Err: err}
		logger.Warn("upload rejected", "err", err)
		s.hub.Publish(in.UploadID, schema.StageFailed, 0)
		s.publishCompleted(in, nil, nil, start, err)
		return nil, err
	}

	// Orientation is normalized during decode, so the stored dimensions
	// come from the decoded bounds rather than the raw header.
	bounds := src.Bounds()
	meta.Width = bounds.Dx()
	meta.Height = bounds.Dy()

	place := s.enrichPlace(ctx, meta, logger)

	originalPath := "originals/" + in.PhotoID + "/" + in.Filename
	if err := s.blobs.Write(ctx, originalPath, in.Data, in.ContentType); err != nil {
		logger.Error("store original failed", "err", err)
		s.hub.Publish(in.UploadID, schema.StageFailed, 0)
		s.publishCompleted(in, nil, nil, start, err)
		return nil, err
	}

	// One settings snapshot for the whole matrix; an administrative
	// update mid-encode affects only subsequent uploads.
	cfg := s.settings.Current()

	manifest, err := s.generator.Generate(ctx, in.UploadID, in.PhotoID, src, cfg)
	if err != nil {
		logger.Error("variant generation failed", "err", err)
		s.hub.Publish(in.UploadID, schema.StageFailed, 0)
		s.publishCompleted(in, cfg, manifest, start, err)
		return nil, err
	}

	lastPct := s.encodePct(cfg, manifest)
	s.hub.Publish(in.UploadID, schema.StagePersisting, lastPct)

	photo := s.buildPhoto(in, meta, place)
	if err := photo.SetManifest(manifest); err != nil {
		logger.Error("serialize manifest failed", "err", err)
		s.hub.Publish(in.UploadID, schema.StageFailed, lastPct)
		s.publishCompleted(in, cfg, manifest, start, err)
		return nil, err
	}
	photo.OriginalPath = originalPath
	if err := s.photos.Create(ctx, photo); err != nil {
		logger.Error("persist photo failed", "err", err)
		s.hub.Publish(in.UploadID, schema.StageFailed, lastPct)
		s.publishCompleted(in, cfg, manifest, start, err)
		return nil, err
	}

	s.hub.Publish(in.UploadID, schema.StageCompleted, 100)
	s.publishCompleted(in, cfg, manifest, start, nil)

	logger.Info("ingest completed",
		"variants", manifest.Count(),
		"failed", s.totalUnits(cfg)-manifest.Count(),
		"processing_time_ms", time.Since(start).Milliseconds())
	return &Result{Photo: photo, Manifest: manifest}, nil
}

func (s *Service) buildPhoto(in Input, meta *exifmeta.Metadata, place *string) *storage.Photo {
	return &storage.Photo{
		ID:           in.PhotoID,
		Filename:     in.Filename,
		ContentType:  in.ContentType,
		AccessLevel:  string(in.AccessLevel),
		Width:        meta.Width,
		Height:       meta.Height,
		SizeBytes:    int64(len(in.Data)),
		UploadedAt:   time.Now(),
		CameraMake:   meta.CameraMake,
		CameraModel:  meta.CameraModel,
		LensModel:    meta.LensModel,
		ISO:          meta.ISO,
		FNumber:      meta.FNumber,
		ShutterSpeed: meta.ShutterSpeed,
		FocalLength:  meta.FocalLength,
		TakenAt:      meta.TakenAt,
		Latitude:     meta.Latitude,
		Longitude:    meta.Longitude,
		Altitude:     meta.Altitude,
		Timezone:     meta.Timezone,
		PlaceName:    place,
	}
}

// enrichPlace consults the external geocoder when coordinates were
// extracted. Failures are logged, never fatal.
func (s *Service) enrichPlace(ctx context.Context, meta *exifmeta.Metadata, logger *slog.Logger) *string {
	if s.geocoder == nil || !meta.HasGPS() {
		return nil
	}
	place, err := s.geocoder.ReverseGeocode(ctx, *meta.Latitude, *meta.Longitude)
	if err != nil {
		logger.Warn("reverse geocode failed", "err", err)
		return nil
	}
	if place == "" {
		return nil
	}
	return &place
}

func (s *Service) totalUnits(cfg *imagecfg.Settings) int {
	return len(cfg.ResponsiveSizes) * len(s.formats)
}

func (s *Service) encodePct(cfg *imagecfg.Settings, manifest schema.VariantManifest) int {
	total := s.totalUnits(cfg)
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(manifest.Count()) / float64(total)))
}

// publishCompleted mirrors the outcome to the event bus. cfg is the
// snapshot the upload encoded with; it is nil when the upload failed
// before the snapshot was taken.
func (s *Service) publishCompleted(in Input, cfg *imagecfg.Settings, manifest schema.VariantManifest, start time.Time, cause error) {
	if s.events == nil {
		return
	}

	evt := schema.IngestCompleted{
		UploadID:         in.UploadID,
		Filename:         in.Filename,
		VariantCount:     manifest.Count(),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		HappenedAt:       time.Now().Unix(),
	}
	if cause != nil {
		evt.Error = cause.Error()
	} else {
		evt.PhotoID = in.PhotoID
		evt.FailedCount = s.totalUnits(cfg) - manifest.Count()
	}

	if err := s.events.PublishJSON(s.subject, evt); err != nil {
		s.logger.Error("publish ingest event failed", "subject", s.subject, "upload_id", in.UploadID, "err", err)
	}
}
