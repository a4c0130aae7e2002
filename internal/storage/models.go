// internal/storage/models.go
package storage

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

// Photo is one ingested source image plus its variant manifest.
type Photo struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"` // SQLite stores UUIDs as text
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	AccessLevel string    `gorm:"index;default:public" json:"access_level"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	SizeBytes   int64     `json:"size_bytes"`
	OriginalPath string   `json:"-"`
	UploadedAt  time.Time `json:"uploaded_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Extracted capture metadata; all nullable.
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
	PlaceName    *string    `json:"place_name,omitempty"`

	// Variant manifest serialized as JSON.
	VariantsJSON string `gorm:"type:text" json:"-"`
}

// Manifest deserializes the stored variant manifest.
func (p *Photo) Manifest() (schema.VariantManifest, error) {
	if p.VariantsJSON == "" {
		return schema.VariantManifest{}, nil
	}
	var m schema.VariantManifest
	if err := json.Unmarshal([]byte(p.VariantsJSON), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetManifest serializes the manifest into the row.
func (p *Photo) SetManifest(m schema.VariantManifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.VariantsJSON = string(b)
	return nil
}

// Alias maps a raw camera or lens string to a curated display name.
type Alias struct {
	gorm.Model
	Kind     string `gorm:"index:idx_alias_kind_original,unique" json:"kind"`
	Original string `gorm:"index:idx_alias_kind_original,unique" json:"original"`
	Display  string `json:"display"`
	Active   bool   `gorm:"default:true" json:"active"`
}

// User authenticates against the admin and upload endpoints.
type User struct {
	gorm.Model
	Username string `gorm:"unique" json:"username"`
	Password string `json:"-"` // bcrypt hash
	Admin    bool   `json:"admin"`
}

// ImageSetting persists the runtime image configuration snapshot so a
// restart keeps administrative changes. A single row (ID 1) is used.
type ImageSetting struct {
	ID           uint   `gorm:"primaryKey"`
	SettingsJSON string `gorm:"type:text"`
	UpdatedAt    time.Time
}
