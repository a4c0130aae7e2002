// internal/imagecfg/settings.go
package imagecfg

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Settings is one immutable snapshot of the runtime image configuration.
// Callers must never mutate a snapshot returned by Store.Current; Apply
// always publishes a fresh copy.
type Settings struct {
	ResponsiveSizes       map[string]int `json:"responsive_sizes"`
	QualitySettings       map[string]int `json:"quality_settings"`
	AVIFQualityBaseOffset int            `json:"avif_quality_base_offset"`
	AVIFQualityFloor      int            `json:"avif_quality_floor"`
	AVIFEffortDefault     int            `json:"avif_effort_default"`
	WebPQuality           int            `json:"webp_quality"`
}

// Update is a partial settings change. Nil fields keep the current value.
type Update struct {
	ResponsiveSizes       map[string]int `json:"responsive_sizes"`
	QualitySettings       map[string]int `json:"quality_settings"`
	AVIFQualityBaseOffset *int           `json:"avif_quality_base_offset"`
	AVIFQualityFloor      *int           `json:"avif_quality_floor"`
	AVIFEffortDefault     *int           `json:"avif_effort_default"`
	WebPQuality           *int           `json:"webp_quality"`
}

// Defaults returns the settings used before any administrative change.
func Defaults() *Settings {
	return &Settings{
		ResponsiveSizes: map[string]int{
			"thumbnail": 400,
			"small":     800,
			"medium":    1200,
			"large":     1600,
			"xlarge":    2400,
		},
		QualitySettings: map[string]int{
			"thumbnail": 80,
			"small":     82,
			"medium":    82,
			"large":     85,
			"xlarge":    85,
		},
		AVIFQualityBaseOffset: 5,
		AVIFQualityFloor:      50,
		AVIFEffortDefault:     6,
		WebPQuality:           82,
	}
}

// AVIFQuality resolves the effective AVIF quality for a tier.
func (s *Settings) AVIFQuality(tier string) int {
	q := s.QualitySettings[tier] - s.AVIFQualityBaseOffset
	if q < s.AVIFQualityFloor {
		q = s.AVIFQualityFloor
	}
	if q > 100 {
		q = 100
	}
	return q
}

func (s *Settings) clone() *Settings {
	next := *s
	next.ResponsiveSizes = make(map[string]int, len(s.ResponsiveSizes))
	for k, v := range s.ResponsiveSizes {
		next.ResponsiveSizes[k] = v
	}
	next.QualitySettings = make(map[string]int, len(s.QualitySettings))
	for k, v := range s.QualitySettings {
		next.QualitySettings[k] = v
	}
	return &next
}

// Store publishes settings snapshots atomically. Readers observe either
// the old or the new snapshot, never a partially-applied mix; an upload
// takes one snapshot at its start and keeps it across the whole matrix.
type Store struct {
	mu      sync.Mutex // serializes Apply; reads stay lock-free
	current atomic.Pointer[Settings]
}

// NewStore returns a store seeded with the given snapshot, or Defaults
// when nil.
func NewStore(initial *Settings) *Store {
	if initial == nil {
		initial = Defaults()
	}
	s := &Store{}
	s.current.Store(initial)
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() *Settings {
	return s.current.Load()
}

// Apply validates the partial update, merges it into a copy of the active
// snapshot, and atomically publishes the result. Concurrent applies are
// serialized so no update is lost. On validation failure the prior
// snapshot stays active.
func (s *Store) Apply(u Update) (*Settings, error) {
	if err := validate(u); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	for tier, edge := range u.ResponsiveSizes {
		next.ResponsiveSizes[tier] = edge
	}
	for tier, q := range u.QualitySettings {
		next.QualitySettings[tier] = q
	}
	if u.AVIFQualityBaseOffset != nil {
		next.AVIFQualityBaseOffset = *u.AVIFQualityBaseOffset
	}
	if u.AVIFQualityFloor != nil {
		next.AVIFQualityFloor = *u.AVIFQualityFloor
	}
	if u.AVIFEffortDefault != nil {
		next.AVIFEffortDefault = *u.AVIFEffortDefault
	}
	if u.WebPQuality != nil {
		next.WebPQuality = *u.WebPQuality
	}

	s.current.Store(next)
	return next, nil
}

func validate(u Update) error {
	for tier, edge := range u.ResponsiveSizes {
		if edge <= 0 {
			return fmt.Errorf("responsive size for %q must be greater than zero (got %d)", tier, edge)
		}
	}
	for tier, q := range u.QualitySettings {
		if q < 0 || q > 100 {
			return fmt.Errorf("quality for %q must be between 0 and 100 (got %d)", tier, q)
		}
	}
	if u.WebPQuality != nil && (*u.WebPQuality < 0 || *u.WebPQuality > 100) {
		return fmt.Errorf("webp quality must be between 0 and 100 (got %d)", *u.WebPQuality)
	}
	if u.AVIFQualityFloor != nil && (*u.AVIFQualityFloor < 0 || *u.AVIFQualityFloor > 100) {
		return fmt.Errorf("avif quality floor must be between 0 and 100 (got %d)", *u.AVIFQualityFloor)
	}
	if u.AVIFQualityBaseOffset != nil && *u.AVIFQualityBaseOffset < 0 {
		return fmt.Errorf("avif quality offset must not be negative (got %d)", *u.AVIFQualityBaseOffset)
	}
	if u.AVIFEffortDefault != nil && (*u.AVIFEffortDefault < 0 || *u.AVIFEffortDefault > 10) {
		return fmt.Errorf("avif effort must be between 0 and 10 (got %d)", *u.AVIFEffortDefault)
	}
	return nil
}
