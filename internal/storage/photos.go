// internal/storage/photos.go
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/antolu/haochen.lu-sub001/internal/imagecfg"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// PhotoRepo provides the persistence operations the pipeline needs.
type PhotoRepo struct {
	db *gorm.DB
}

func NewPhotoRepo(db *gorm.DB) *PhotoRepo {
	return &PhotoRepo{db: db}
}

func (r *PhotoRepo) Create(ctx context.Context, p *Photo) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PhotoRepo) GetByID(ctx context.Context, id string) (*Photo, error) {
	var p Photo
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PhotoRepo) List(ctx context.Context, limit, offset int) ([]Photo, error) {
	var photos []Photo
	err := r.db.WithContext(ctx).
		Order("uploaded_at DESC").
		Limit(limit).Offset(offset).
		Find(&photos).Error
	return photos, err
}

func (r *PhotoRepo) UpdateAccessLevel(ctx context.Context, id, level string) error {
	res := r.db.WithContext(ctx).Model(&Photo{}).Where("id = ?", id).Update("access_level", level)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PhotoRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Photo{}, "id = ?", id).Error
}

// SettingsRepo persists the runtime image configuration snapshot.
type SettingsRepo struct {
	db *gorm.DB
}

func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// Load returns the persisted snapshot, or nil when none has been saved.
func (r *SettingsRepo) Load(ctx context.Context) (*imagecfg.Settings, error) {
	var row ImageSetting
	err := r.db.WithContext(ctx).First(&row, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s imagecfg.Settings
	if err := json.Unmarshal([]byte(row.SettingsJSON), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save upserts the snapshot into the singleton row.
func (r *SettingsRepo) Save(ctx context.Context, s *imagecfg.Settings) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	row := ImageSetting{ID: 1, SettingsJSON: string(b)}
	return r.db.WithContext(ctx).Save(&row).Error
}

// UserRepo looks up accounts for login.
type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).First(&u, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
