// internal/httpapi/aliases.go
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/clause"

	"github.com/antolu/haochen.lu-sub001/internal/storage"
)

func (a *API) listAliases(c *gin.Context) {
	var rows []storage.Alias
	if err := a.db.WithContext(c.Request.Context()).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"aliases": rows})
}

type aliasInput struct {
	Kind     string `json:"kind" binding:"required,oneof=camera lens"`
	Original string `json:"original" binding:"required"`
	Display  string `json:"display" binding:"required"`
	Active   *bool  `json:"active"`
}

// upsertAlias writes an alias row. The resolver cache is deliberately
// not invalidated here; serialization keeps using the loaded maps until
// an explicit refresh.
func (a *API) upsertAlias(c *gin.Context) {
	var input aliasInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row := storage.Alias{
		Kind:     input.Kind,
		Original: input.Original,
		Display:  input.Display,
		Active:   input.Active == nil || *input.Active,
	}
	err := a.db.WithContext(c.Request.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "original"}},
			DoUpdates: clause.AssignmentColumns([]string{"display", "active"}),
		}).
		Create(&row).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, row)
}

func (a *API) refreshAliases(c *gin.Context) {
	if err := a.resolver.Load(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}
