package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/fastingles-audio/internal/platform/gcp"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidMode         StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapErrorMissingEmulatorHost StorageBootstrapErrorCode = "missing_emulator_host"
	StorageBootstrapErrorInvalidEmulatorHost StorageBootstrapErrorCode = "invalid_emulator_host"
	StorageBootstrapErrorInvalidPublicURL    StorageBootstrapErrorCode = "invalid_public_url"
	StorageBootstrapErrorMissingBucket       StorageBootstrapErrorCode = "missing_bucket"
	StorageBootstrapErrorConnectFailed       StorageBootstrapErrorCode = "connect_failed"
)

// StorageBootstrapError reports why the audio bucket could not be opened.
type StorageBootstrapError struct {
	Code         StorageBootstrapErrorCode
	Mode         string
	Bucket       string
	EmulatorHost string
	Cause        error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case StorageBootstrapErrorInvalidMode:
		return fmt.Sprintf("audio storage bootstrap failed (code=%s): %v", e.Code, e.Cause)
	case StorageBootstrapErrorMissingEmulatorHost, StorageBootstrapErrorInvalidEmulatorHost:
		return fmt.Sprintf("audio storage bootstrap failed (code=%s, mode=%s, emulator_host=%q): %v", e.Code, e.Mode, e.EmulatorHost, e.Cause)
	case StorageBootstrapErrorMissingBucket, StorageBootstrapErrorInvalidPublicURL:
		return fmt.Sprintf("audio storage bootstrap failed (code=%s): %v", e.Code, e.Cause)
	default:
		return fmt.Sprintf("audio storage bootstrap failed (code=%s, mode=%s, bucket=%q): %v", e.Code, e.Mode, e.Bucket, e.Cause)
	}
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// openObjectStore resolves bucket settings from the environment and opens the
// store, ensuring the bucket exists.
func openObjectStore(ctx context.Context, log *logger.Logger) (*gcp.ObjectStore, error) {
	cfg, err := gcp.ResolveObjectStoreConfigFromEnv()
	if err != nil {
		classified := classifyStorageBootstrapError(cfg, err)
		log.Error("Audio storage config invalid", "error_code", storageBootstrapErrorCode(classified), "error", classified)
		return nil, classified
	}

	modeSource := "OBJECT_STORAGE_MODE"
	if cfg.ModeFromEmulatorHost {
		modeSource = "STORAGE_EMULATOR_HOST"
	}
	log.Info(
		"Opening audio object store",
		"mode", cfg.Mode,
		"mode_source", modeSource,
		"bucket", cfg.Bucket,
		"emulator_host", cfg.EmulatorHost,
		"cdn_domain", cfg.CDNDomain,
	)

	store, err := gcp.NewObjectStore(ctx, log, cfg)
	if err != nil {
		classified := classifyStorageBootstrapError(cfg, err)
		log.Error(
			"Audio storage bootstrap failed",
			"mode", cfg.Mode,
			"mode_source", modeSource,
			"bucket", cfg.Bucket,
			"error_code", storageBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyStorageBootstrapError(cfg gcp.ObjectStoreConfig, err error) error {
	out := &StorageBootstrapError{
		Code:         StorageBootstrapErrorConnectFailed,
		Mode:         string(cfg.Mode),
		Bucket:       cfg.Bucket,
		EmulatorHost: cfg.EmulatorHost,
		Cause:        err,
	}
	var cfgErr *gcp.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ConfigErrorInvalidMode:
			out.Code = StorageBootstrapErrorInvalidMode
		case gcp.ConfigErrorMissingEmulatorHost:
			out.Code = StorageBootstrapErrorMissingEmulatorHost
		case gcp.ConfigErrorMissingBucket:
			out.Code = StorageBootstrapErrorMissingBucket
		case gcp.ConfigErrorInvalidURL:
			if cfgErr.Field == "STORAGE_EMULATOR_HOST" {
				out.Code = StorageBootstrapErrorInvalidEmulatorHost
			} else {
				out.Code = StorageBootstrapErrorInvalidPublicURL
			}
		}
	}
	return out
}

func storageBootstrapErrorCode(err error) StorageBootstrapErrorCode {
	var bootstrapErr *StorageBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return StorageBootstrapErrorConnectFailed
}
