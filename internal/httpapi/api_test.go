package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/antolu/haochen.lu-sub001/internal/alias"
	"github.com/antolu/haochen.lu-sub001/internal/imagecfg"
	"github.com/antolu/haochen.lu-sub001/internal/ingest"
	"github.com/antolu/haochen.lu-sub001/internal/progress"
	"github.com/antolu/haochen.lu-sub001/internal/storage"
	"github.com/antolu/haochen.lu-sub001/internal/variants"
	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

type testEnv struct {
	engine *gin.Engine
	api    *API
	db     *gorm.DB
	blobs  storage.BlobStore
	hub    *progress.Hub
	tokens *TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	blobs, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("create disk store: %v", err)
	}

	logger := slog.Default()
	hub := progress.NewHub(logger)
	settings := imagecfg.NewStore(nil)
	formats := []schema.VariantFormat{schema.FormatJPEG}
	gen := variants.NewGenerator(blobs, formats, nil, hub, logger)
	svc := ingest.NewService(storage.NewPhotoRepo(db), blobs, settings, gen, formats, hub, nil, nil, "", logger)

	tokens := NewTokenIssuer("test-secret", time.Hour)
	resolver := alias.NewResolver(db, logger)
	api := NewAPI(svc, db, blobs, hub, settings, resolver, tokens, logger)

	engine := gin.New()
	api.Register(engine)

	seedUser(t, db, "viewer", "viewer-pass", false)
	seedUser(t, db, "root", "root-pass", true)

	return &testEnv{engine: engine, api: api, db: db, blobs: blobs, hub: hub, tokens: tokens}
}

func seedUser(t *testing.T, db *gorm.DB, username, password string, admin bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := db.Create(&storage.User{Username: username, Password: string(hash), Admin: admin}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func (e *testEnv) seedPhoto(t *testing.T, level string) *storage.Photo {
	t.Helper()

	id := uuid.NewString()
	originalPath := "originals/" + id + "/photo.jpg"
	if err := e.blobs.Write(context.Background(), originalPath, []byte("jpeg-bytes"), "image/jpeg"); err != nil {
		t.Fatalf("write original: %v", err)
	}

	variantPath := "variants/" + id + "/thumbnail_jpeg.jpg"
	if err := e.blobs.Write(context.Background(), variantPath, []byte("thumb-bytes"), "image/jpeg"); err != nil {
		t.Fatalf("write variant: %v", err)
	}

	photo := &storage.Photo{
		ID:           id,
		Filename:     "photo.jpg",
		ContentType:  "image/jpeg",
		AccessLevel:  level,
		Width:        1920,
		Height:       1080,
		OriginalPath: originalPath,
		UploadedAt:   time.Now(),
	}
	manifest := schema.VariantManifest{
		"thumbnail": {
			schema.FormatJPEG: schema.VariantInfo{
				Path:      variantPath,
				Filename:  "thumbnail_jpeg.jpg",
				Width:     400,
				Height:    225,
				SizeBytes: 11,
				Format:    schema.FormatJPEG,
			},
		},
	}
	if err := photo.SetManifest(manifest); err != nil {
		t.Fatalf("set manifest: %v", err)
	}
	if err := e.db.Create(photo).Error; err != nil {
		t.Fatalf("seed photo: %v", err)
	}
	return photo
}

func (e *testEnv) token(t *testing.T, username string, admin bool) string {
	t.Helper()
	tok, err := e.tokens.Issue(username, admin)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *testEnv) request(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, path, body)
	} else {
		req, err = http.NewRequest(method, path, nil)
	}
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func TestFileServingEnforcesAccessLevels(t *testing.T) {
	env := newTestEnv(t)
	public := env.seedPhoto(t, "public")
	authed := env.seedPhoto(t, "authenticated")
	private := env.seedPhoto(t, "private")

	viewer := env.token(t, "viewer", false)
	admin := env.token(t, "root", true)

	tests := []struct {
		name   string
		photo  *storage.Photo
		token  string
		status int
	}{
		{"anonymous public", public, "", http.StatusOK},
		{"anonymous authenticated", authed, "", http.StatusUnauthorized},
		{"anonymous private", private, "", http.StatusUnauthorized},
		{"viewer authenticated", authed, viewer, http.StatusOK},
		{"viewer private", private, viewer, http.StatusForbidden},
		{"admin private", private, admin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The gate must hold for the original and every variant alike.
			for _, path := range []string{
				"/api/photos/" + tt.photo.ID + "/original",
				"/api/photos/" + tt.photo.ID + "/variants/thumbnail/jpeg",
				"/api/photos/" + tt.photo.ID,
			} {
				rec := env.request(t, http.MethodGet, path, tt.token, nil, "")
				if rec.Code != tt.status {
					t.Fatalf("%s: status %d, want %d", path, rec.Code, tt.status)
				}
			}
		})
	}
}

func TestServeUnknownVariantReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)
	photo := env.seedPhoto(t, "public")

	rec := env.request(t, http.MethodGet, "/api/photos/"+photo.ID+"/variants/xlarge/avif", "", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	body := bytes.NewBufferString(`{"username":"root","password":"root-pass"}`)
	rec := env.request(t, http.MethodPost, "/api/auth/login", "", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	id, err := env.tokens.Parse(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if id.Subject != "root" || !id.Admin {
		t.Fatalf("unexpected identity %+v", id)
	}

	bad := bytes.NewBufferString(`{"username":"root","password":"wrong"}`)
	rec = env.request(t, http.MethodPost, "/api/auth/login", "", bad, "application/json")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d, want 401", rec.Code)
	}
}

func TestImageSettingsAdminEndpoint(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.token(t, "viewer", false)
	admin := env.token(t, "root", true)

	update := bytes.NewBufferString(`{"responsive_sizes":{"large":2000},"webp_quality":75}`)
	if rec := env.request(t, http.MethodPut, "/api/admin/settings/images", viewer, update, "application/json"); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin update: status %d, want 403", rec.Code)
	}
	if rec := env.request(t, http.MethodPut, "/api/admin/settings/images", "", bytes.NewBufferString(`{}`), "application/json"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous update: status %d, want 401", rec.Code)
	}

	update = bytes.NewBufferString(`{"responsive_sizes":{"large":2000},"webp_quality":75}`)
	rec := env.request(t, http.MethodPut, "/api/admin/settings/images", admin, update, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin update: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, "/api/admin/settings/images", admin, nil, "")
	var snap imagecfg.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if snap.ResponsiveSizes["large"] != 2000 || snap.WebPQuality != 75 {
		t.Fatalf("settings not applied: %+v", snap)
	}
	if snap.ResponsiveSizes["thumbnail"] != 400 {
		t.Fatalf("partial update touched unrelated tier: %d", snap.ResponsiveSizes["thumbnail"])
	}

	invalid := bytes.NewBufferString(`{"webp_quality":150}`)
	if rec := env.request(t, http.MethodPut, "/api/admin/settings/images", admin, invalid, "application/json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid update: status %d, want 400", rec.Code)
	}
}

func TestUploadAcceptsAndProcessesAsynchronously(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.token(t, "viewer", false)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "upload.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 800, 600))
	for x := 0; x < 800; x += 8 {
		for y := 0; y < 600; y += 8 {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 40, A: 255})
		}
	}
	if err := imaging.Encode(part, img, imaging.JPEG); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if err := writer.WriteField("access_level", "authenticated"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	writer.Close()

	rec := env.request(t, http.MethodPost, "/api/photos", viewer, &body, writer.FormDataContentType())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		UploadID string `json:"upload_id"`
		PhotoID  string `json:"photo_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UploadID == "" || resp.PhotoID == "" {
		t.Fatalf("missing ids in response: %s", rec.Body.String())
	}

	repo := storage.NewPhotoRepo(env.db)
	deadline := time.Now().Add(10 * time.Second)
	for {
		photo, err := repo.GetByID(context.Background(), resp.PhotoID)
		if err == nil {
			if photo.AccessLevel != "authenticated" {
				t.Fatalf("access level %q, want authenticated", photo.AccessLevel)
			}
			if photo.Width != 800 || photo.Height != 600 {
				t.Fatalf("dimensions %dx%d, want 800x600", photo.Width, photo.Height)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("photo never persisted")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
