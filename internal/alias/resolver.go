// internal/alias/resolver.go
package alias

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/antolu/haochen.lu-sub001/internal/storage"
)

// Kind selects which alias table a lookup consults.
type Kind string

const (
	KindCamera Kind = "camera"
	KindLens   Kind = "lens"
)

// Resolver maps raw camera/lens strings to curated display names. The
// maps are loaded wholesale and stay frozen until an explicit Load;
// admin edits do not invalidate them mid-session.
type Resolver struct {
	db     *gorm.DB
	logger *slog.Logger

	mu      sync.RWMutex
	cameras map[string]string
	lenses  map[string]string
}

func NewResolver(db *gorm.DB, logger *slog.Logger) *Resolver {
	return &Resolver{
		db:      db,
		logger:  logger,
		cameras: map[string]string{},
		lenses:  map[string]string{},
	}
}

// Load replaces both maps from the currently-active alias rows.
func (r *Resolver) Load(ctx context.Context) error {
	var rows []storage.Alias
	if err := r.db.WithContext(ctx).Where("active = ?", true).Find(&rows).Error; err != nil {
		return err
	}

	cameras := make(map[string]string)
	lenses := make(map[string]string)
	for _, row := range rows {
		switch Kind(row.Kind) {
		case KindCamera:
			cameras[row.Original] = row.Display
		case KindLens:
			lenses[row.Original] = row.Display
		}
	}

	r.mu.Lock()
	r.cameras = cameras
	r.lenses = lenses
	r.mu.Unlock()

	r.logger.Info("alias cache reloaded", "cameras", len(cameras), "lenses", len(lenses))
	return nil
}

// Resolve returns the curated display name for the trimmed raw value,
// or the raw value itself when no active alias matches. Matching is
// exact apart from the trim.
func (r *Resolver) Resolve(kind Kind, raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return raw
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var m map[string]string
	switch kind {
	case KindCamera:
		m = r.cameras
	case KindLens:
		m = r.lenses
	default:
		return raw
	}

	if display, ok := m[key]; ok {
		return display
	}
	return raw
}
