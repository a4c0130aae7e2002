// internal/httpapi/files.go
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

func (a *API) serveOriginal(c *gin.Context) {
	photo, ok := a.loadAuthorized(c)
	if !ok {
		return
	}

	reader, size, err := a.blobs.Open(c.Request.Context(), photo.OriginalPath)
	if err != nil {
		a.logger.Error("open original failed", "photo_id", photo.ID, "err", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, size, photo.ContentType, reader, nil)
}

func (a *API) serveVariant(c *gin.Context) {
	photo, ok := a.loadAuthorized(c)
	if !ok {
		return
	}

	manifest, err := photo.Manifest()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "corrupt manifest"})
		return
	}

	tier := c.Param("tier")
	format := schema.VariantFormat(c.Param("format"))
	info, ok := manifest[tier][format]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "variant not found"})
		return
	}

	reader, size, err := a.blobs.Open(c.Request.Context(), info.Path)
	if err != nil {
		a.logger.Error("open variant failed", "photo_id", photo.ID, "path", info.Path, "err", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	defer reader.Close()

	c.Header("Cache-Control", "private, max-age=86400")
	c.DataFromReader(http.StatusOK, size, contentTypeOf(format), reader, nil)
}

func contentTypeOf(format schema.VariantFormat) string {
	switch format {
	case schema.FormatWebP:
		return "image/webp"
	case schema.FormatAVIF:
		return "image/avif"
	default:
		return "image/jpeg"
	}
}
