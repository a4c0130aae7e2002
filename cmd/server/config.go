// cmd/server/config.go
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/antolu/haochen.lu-sub001/internal/storage"
	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

type config struct {
	ListenAddr string
	DBPath     string

	StorageBackend string // "disk" or "minio"
	BlobDir        string
	Minio          storage.MinioConfig

	JWTSecret     string
	TokenTTLHours int

	Formats []schema.VariantFormat

	// Optional responsive size overrides applied at startup, in the
	// form "thumbnail:400,small:800". Runtime changes go through the
	// admin settings endpoint.
	SizeOverrides map[string]int

	NATSURL       string
	IngestSubject string

	GeocoderURL string

	CORSOrigins []string

	AdminUsername string
	AdminPassword string
}

func LoadConfig() (config, error) {
	cfg := config{
		ListenAddr:     getenv("LISTEN_ADDR", ":8080"),
		DBPath:         getenv("DB_PATH", "./data/photos.db"),
		StorageBackend: getenv("STORAGE_BACKEND", "disk"),
		BlobDir:        getenv("BLOB_DIR", "./data/blobs"),
		JWTSecret:      getenv("JWT_SECRET", ""),
		NATSURL:        getenv("NATS_URL", ""),
		IngestSubject:  getenv("SUBJECT_PHOTO_INGESTED", "photos.ingest.done"),
		GeocoderURL:    getenv("GEOCODER_URL", ""),
		AdminUsername:  getenv("ADMIN_USERNAME", ""),
		AdminPassword:  getenv("ADMIN_PASSWORD", ""),
	}

	if cfg.JWTSecret == "" {
		return config{}, fmt.Errorf("JWT_SECRET is required")
	}

	ttl, err := parsePositiveInt(getenv("TOKEN_TTL_HOURS", "72"), "TOKEN_TTL_HOURS")
	if err != nil {
		return config{}, err
	}
	cfg.TokenTTLHours = ttl

	formats, err := parseFormats(getenv("IMAGE_FORMATS", "webp,avif,jpeg"))
	if err != nil {
		return config{}, fmt.Errorf("parse IMAGE_FORMATS: %w", err)
	}
	cfg.Formats = formats

	if sizesEnv := getenv("RESPONSIVE_SIZES", ""); sizesEnv != "" {
		sizes, err := parseResponsiveSizes(sizesEnv)
		if err != nil {
			return config{}, fmt.Errorf("parse RESPONSIVE_SIZES: %w", err)
		}
		cfg.SizeOverrides = sizes
	}

	switch cfg.StorageBackend {
	case "disk":
	case "minio":
		cfg.Minio = storage.MinioConfig{
			Endpoint:  getenv("MINIO_ENDPOINT", "127.0.0.1:9000"),
			AccessKey: getenv("MINIO_ACCESS_KEY", ""),
			SecretKey: getenv("MINIO_SECRET_KEY", ""),
			Bucket:    getenv("MINIO_BUCKET", "photos"),
			UseSSL:    getenvBool("MINIO_USE_SSL", false),
		}
		if cfg.Minio.AccessKey == "" || cfg.Minio.SecretKey == "" {
			return config{}, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio backend")
		}
	default:
		return config{}, fmt.Errorf("unknown STORAGE_BACKEND %q (expected disk or minio)", cfg.StorageBackend)
	}

	origins := getenv("CORS_ORIGINS", "*")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	return cfg, nil
}

func parseFormats(value string) ([]schema.VariantFormat, error) {
	var formats []schema.VariantFormat
	seen := make(map[schema.VariantFormat]bool)

	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := schema.VariantFormat(part)
		switch f {
		case schema.FormatWebP, schema.FormatAVIF, schema.FormatJPEG:
		default:
			return nil, fmt.Errorf("unsupported format %q", part)
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}

	if len(formats) == 0 {
		return nil, fmt.Errorf("at least one format is required")
	}
	return formats, nil
}

func parseResponsiveSizes(sizesEnv string) (map[string]int, error) {
	sizes := make(map[string]int)

	for _, pair := range strings.Split(sizesEnv, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid size format %q, expected 'name:edge'", pair)
		}

		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, fmt.Errorf("empty tier name in %q", pair)
		}
		edge, err := parsePositiveInt(strings.TrimSpace(parts[1]), name)
		if err != nil {
			return nil, err
		}
		sizes[name] = edge
	}

	return sizes, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	return val == "true"
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
