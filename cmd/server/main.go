// cmd/server/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/antolu/haochen.lu-sub001/internal/alias"
	"github.com/antolu/haochen.lu-sub001/internal/bus"
	"github.com/antolu/haochen.lu-sub001/internal/geo"
	"github.com/antolu/haochen.lu-sub001/internal/httpapi"
	"github.com/antolu/haochen.lu-sub001/internal/imagecfg"
	"github.com/antolu/haochen.lu-sub001/internal/ingest"
	"github.com/antolu/haochen.lu-sub001/internal/progress"
	"github.com/antolu/haochen.lu-sub001/internal/storage"
	"github.com/antolu/haochen.lu-sub001/internal/variants"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := LoadConfig()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("server starting", "listen_addr", cfg.ListenAddr, "db_path", cfg.DBPath, "storage_backend", cfg.StorageBackend, "formats", cfg.Formats)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		fatal(logger, "open database", err, "db_path", cfg.DBPath)
	}

	blobs, err := buildBlobStore(cfg)
	if err != nil {
		fatal(logger, "initialize blob store", err, "backend", cfg.StorageBackend)
	}
	logger.Info("blob store ready", "backend", cfg.StorageBackend)

	settings, err := loadSettings(db, cfg, logger)
	if err != nil {
		fatal(logger, "load image settings", err)
	}

	resolver := alias.NewResolver(db, logger)
	if err := resolver.Load(context.Background()); err != nil {
		fatal(logger, "load aliases", err)
	}

	var events ingest.EventPublisher
	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL, "subject", cfg.IngestSubject)
		defer nc.Close()
		events = nc
	}

	var geocoder geo.Geocoder
	if cfg.GeocoderURL != "" {
		geocoder = geo.NewClient(cfg.GeocoderURL)
		logger.Info("reverse geocoding enabled", "url", cfg.GeocoderURL)
	}

	if err := seedAdmin(db, cfg, logger); err != nil {
		fatal(logger, "seed admin user", err)
	}

	hub := progress.NewHub(logger)
	generator := variants.NewGenerator(blobs, cfg.Formats, nil, hub, logger)
	svc := ingest.NewService(
		storage.NewPhotoRepo(db),
		blobs,
		settings,
		generator,
		cfg.Formats,
		hub,
		geocoder,
		events,
		cfg.IngestSubject,
		logger,
	)

	tokens := httpapi.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)
	api := httpapi.NewAPI(svc, db, blobs, hub, settings, resolver, tokens, logger)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	engine.Use(cors.New(corsCfg))

	api.Register(engine)

	logger.Info("listening", "addr", cfg.ListenAddr)
	if err := engine.Run(cfg.ListenAddr); err != nil {
		fatal(logger, "http server", err, "addr", cfg.ListenAddr)
	}
}

func buildBlobStore(cfg config) (storage.BlobStore, error) {
	if cfg.StorageBackend == "minio" {
		return storage.NewMinioStore(context.Background(), cfg.Minio)
	}
	return storage.NewDiskStore(cfg.BlobDir)
}

// loadSettings restores the persisted runtime image configuration, falls
// back to defaults, and applies any startup size overrides from the
// environment. Overrides are persisted so the admin endpoint and a later
// restart agree on the effective configuration.
func loadSettings(db *gorm.DB, cfg config, logger *slog.Logger) (*imagecfg.Store, error) {
	repo := storage.NewSettingsRepo(db)

	initial, err := repo.Load(context.Background())
	if err != nil {
		return nil, err
	}
	if initial == nil {
		initial = imagecfg.Defaults()
		logger.Info("no persisted image settings, using defaults")
	}

	store := imagecfg.NewStore(initial)

	if len(cfg.SizeOverrides) > 0 {
		applied, err := store.Apply(imagecfg.Update{ResponsiveSizes: cfg.SizeOverrides})
		if err != nil {
			return nil, err
		}
		if err := repo.Save(context.Background(), applied); err != nil {
			return nil, err
		}
		logger.Info("applied responsive size overrides", "overrides", cfg.SizeOverrides)
	}

	return store, nil
}

// seedAdmin creates the bootstrap admin account when credentials are
// configured and no user with that name exists yet.
func seedAdmin(db *gorm.DB, cfg config, logger *slog.Logger) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&storage.User{}).Where("username = ?", cfg.AdminUsername).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := db.Create(&storage.User{Username: cfg.AdminUsername, Password: string(hash), Admin: true}).Error; err != nil {
		return err
	}
	logger.Info("created admin user", "username", cfg.AdminUsername)
	return nil
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
