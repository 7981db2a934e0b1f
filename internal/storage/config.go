package storage

import (
	"os"
	"strconv"
)

// MinIOConfig holds the connection settings for the MinIO object store. An
// empty Endpoint means no object store is configured and callers fall back
// to the in-memory store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

// LoadMinIOConfig reads the MinIO settings from MINIO_* environment
// variables.
func LoadMinIOConfig() *MinIOConfig {
	useSSL, _ := strconv.ParseBool(os.Getenv("MINIO_USE_SSL"))
	return &MinIOConfig{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Region:    os.Getenv("MINIO_REGION"),
		UseSSL:    useSSL,
		Bucket:    envOr("MINIO_BUCKET", "permit-packages"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
