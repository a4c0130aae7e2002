// internal/httpapi/settings.go
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/antolu/haochen.lu-sub001/internal/imagecfg"
)

func (a *API) getImageSettings(c *gin.Context) {
	c.JSON(http.StatusOK, a.settings.Current())
}

// updateImageSettings applies a partial update. Uploads already in
// flight keep their snapshot; only subsequent ingestions observe the
// new values.
func (a *API) updateImageSettings(c *gin.Context) {
	var update imagecfg.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := a.settings.Apply(update)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.settingsRepo.Save(c.Request.Context(), snapshot); err != nil {
		a.logger.Error("persist image settings failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings applied but not persisted"})
		return
	}

	a.logger.Info("image settings updated", "by", identityFrom(c).Subject)
	c.JSON(http.StatusOK, snapshot)
}
