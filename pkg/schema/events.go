// pkg/schema/events.go
package schema

// VariantFormat identifies the codec of one encoded variant.
type VariantFormat string

const (
	FormatWebP VariantFormat = "webp"
	FormatAVIF VariantFormat = "avif"
	FormatJPEG VariantFormat = "jpeg"
)

// VariantInfo describes one encoded output of the variant matrix.
type VariantInfo struct {
	Path      string        `json:"path"`
	Filename  string        `json:"filename"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	SizeBytes int64         `json:"size_bytes"`
	Format    VariantFormat `json:"format"`
}

// VariantManifest maps a size tier to its per-format outputs. A tier is
// absent when every encode for it failed.
type VariantManifest map[string]map[VariantFormat]VariantInfo

// Count returns the number of variants recorded across all tiers.
func (m VariantManifest) Count() int {
	n := 0
	for _, formats := range m {
		n += len(formats)
	}
	return n
}

// ProgressEvent is delivered to progress subscribers while an upload is
// being processed. Progress is non-decreasing per upload and reaches 100
// only when every attempted stage completed.
type ProgressEvent struct {
	Type     string `json:"type"`
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
}

// Ingestion stages surfaced through progress events.
const (
	StageExtracting = "extracting_metadata"
	StageEncoding   = "generating_variants"
	StagePersisting = "saving"
	StageCompleted  = "completed"
	StageFailed     = "failed"
)

// IngestCompleted mirrors the outcome of one ingestion to the event bus
// when a NATS URL is configured.
type IngestCompleted struct {
	UploadID         string `json:"upload_id"`
	PhotoID          string `json:"photo_id,omitempty"`
	Filename         string `json:"filename,omitempty"`
	VariantCount     int    `json:"variant_count"`
	FailedCount      int    `json:"failed_count"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Error            string `json:"error,omitempty"`
	HappenedAt       int64  `json:"happened_at"`
}
