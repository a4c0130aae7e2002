// internal/httpapi/photos.go
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/antolu/haochen.lu-sub001/internal/access"
	"github.com/antolu/haochen.lu-sub001/internal/alias"
	"github.com/antolu/haochen.lu-sub001/internal/ingest"
	"github.com/antolu/haochen.lu-sub001/internal/storage"
	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

const maxUploadBytes = 64 << 20

// uploadPhoto accepts one image and starts the ingestion pipeline. The
// upload id is returned immediately so the client can subscribe to
// progress; processing continues regardless of the client connection.
func (a *API) uploadPhoto(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	level := access.Public
	if v := c.PostForm("access_level"); v != "" {
		level, err = access.ParseLevel(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not open file"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read file"})
		return
	}

	in := ingest.Input{
		UploadID:    uuid.NewString(),
		PhotoID:     uuid.NewString(),
		Data:        data,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		AccessLevel: level,
	}

	// Once accepted, ingestion runs to completion independent of the
	// HTTP request lifetime.
	go func() {
		if _, err := a.ingest.Ingest(context.Background(), in); err != nil {
			a.logger.Warn("ingest failed", "upload_id", in.UploadID, "err", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"upload_id": in.UploadID,
		"photo_id":  in.PhotoID,
		"status":    "processing",
	})
}

// photoResponse augments the stored row with curated display names and
// the decoded manifest.
type photoResponse struct {
	storage.Photo
	CameraDisplay string                 `json:"camera_display,omitempty"`
	LensDisplay   string                 `json:"lens_display,omitempty"`
	Variants      schema.VariantManifest `json:"variants"`
}

func (a *API) toResponse(p *storage.Photo) (*photoResponse, error) {
	manifest, err := p.Manifest()
	if err != nil {
		return nil, err
	}

	resp := &photoResponse{Photo: *p, Variants: manifest}
	if p.CameraModel != nil {
		resp.CameraDisplay = a.resolver.Resolve(alias.KindCamera, *p.CameraModel)
	}
	if p.LensModel != nil {
		resp.LensDisplay = a.resolver.Resolve(alias.KindLens, *p.LensModel)
	}
	return resp, nil
}

func (a *API) getPhoto(c *gin.Context) {
	photo, ok := a.loadAuthorized(c)
	if !ok {
		return
	}

	resp, err := a.toResponse(photo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "corrupt manifest"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) listPhotos(c *gin.Context) {
	photos, err := a.photos.List(c.Request.Context(), 100, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	id := identityFrom(c)
	out := make([]*photoResponse, 0, len(photos))
	for i := range photos {
		if access.Authorize(access.Level(photos[i].AccessLevel), id) != nil {
			continue
		}
		resp, err := a.toResponse(&photos[i])
		if err != nil {
			a.logger.Warn("skipping photo with corrupt manifest", "photo_id", photos[i].ID, "err", err)
			continue
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"photos": out})
}

type accessUpdateInput struct {
	AccessLevel string `json:"access_level" binding:"required"`
}

func (a *API) updateAccessLevel(c *gin.Context) {
	var input accessUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	level, err := access.ParseLevel(input.AccessLevel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = a.photos.UpdateAccessLevel(c.Request.Context(), c.Param("id"), string(level))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_level": string(level)})
}

// loadAuthorized fetches the photo and runs the access gate. The gate
// applies identically to metadata, the original, and every variant.
func (a *API) loadAuthorized(c *gin.Context) (*storage.Photo, bool) {
	photo, err := a.photos.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return nil, false
	}

	switch err := access.Authorize(access.Level(photo.AccessLevel), identityFrom(c)); {
	case errors.Is(err, access.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, false
	case errors.Is(err, access.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return nil, false
	case err != nil:
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return nil, false
	}
	return photo, true
}
