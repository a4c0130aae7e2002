// internal/httpapi/handler.go
package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/antolu/haochen.lu-sub001/internal/alias"
	"github.com/antolu/haochen.lu-sub001/internal/imagecfg"
	"github.com/antolu/haochen.lu-sub001/internal/ingest"
	"github.com/antolu/haochen.lu-sub001/internal/progress"
	"github.com/antolu/haochen.lu-sub001/internal/storage"
)

// API wires the pipeline components into the gin surface.
type API struct {
	ingest       *ingest.Service
	photos       *storage.PhotoRepo
	users        *storage.UserRepo
	settingsRepo *storage.SettingsRepo
	blobs        storage.BlobStore
	hub          *progress.Hub
	settings     *imagecfg.Store
	resolver     *alias.Resolver
	tokens       *TokenIssuer
	db           *gorm.DB
	logger       *slog.Logger
}

func NewAPI(
	ingestSvc *ingest.Service,
	db *gorm.DB,
	blobs storage.BlobStore,
	hub *progress.Hub,
	settings *imagecfg.Store,
	resolver *alias.Resolver,
	tokens *TokenIssuer,
	logger *slog.Logger,
) *API {
	return &API{
		ingest:       ingestSvc,
		photos:       storage.NewPhotoRepo(db),
		users:        storage.NewUserRepo(db),
		settingsRepo: storage.NewSettingsRepo(db),
		blobs:        blobs,
		hub:          hub,
		settings:     settings,
		resolver:     resolver,
		tokens:       tokens,
		db:           db,
		logger:       logger,
	}
}

// Register mounts all routes on the engine.
func (a *API) Register(r *gin.Engine) {
	r.Use(a.identityMiddleware())

	api := r.Group("/api")
	{
		api.POST("/auth/login", a.login)

		api.GET("/photos", a.listPhotos)
		api.GET("/photos/:id", a.getPhoto)
		api.GET("/photos/:id/original", a.serveOriginal)
		api.GET("/photos/:id/variants/:tier/:format", a.serveVariant)

		api.GET("/progress/:uploadID", a.progressSocket)
	}

	authed := api.Group("")
	authed.Use(a.requireAuth)
	{
		authed.POST("/photos", a.uploadPhoto)
		authed.PATCH("/photos/:id/access", a.updateAccessLevel)
	}

	admin := api.Group("/admin")
	admin.Use(a.requireAdmin)
	{
		admin.GET("/settings/images", a.getImageSettings)
		admin.PUT("/settings/images", a.updateImageSettings)

		admin.GET("/aliases", a.listAliases)
		admin.POST("/aliases", a.upsertAlias)
		admin.POST("/aliases/refresh", a.refreshAliases)
	}
}
