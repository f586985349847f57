package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/fastingles-audio/internal/platform/envutil"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

// ObjectStoreConfig describes the single audio bucket and how to reach it.
type ObjectStoreConfig struct {
	Mode         ObjectStorageMode
	EmulatorHost string
	// ModeFromEmulatorHost is set when Mode was inferred from
	// STORAGE_EMULATOR_HOST rather than OBJECT_STORAGE_MODE.
	ModeFromEmulatorHost bool

	Bucket        string
	ProjectID     string
	CDNDomain     string
	PublicBaseURL string
}

func (cfg ObjectStoreConfig) IsEmulatorMode() bool {
	return cfg.Mode == ObjectStorageModeGCSEmulator
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidURL          ConfigErrorCode = "invalid_url"
	ConfigErrorMissingBucket       ConfigErrorCode = "missing_bucket"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Field string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", e.Value, ObjectStorageModeGCS, ObjectStorageModeGCSEmulator)
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", ObjectStorageModeGCSEmulator)
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid %s=%q; expected absolute URL like http://fake-gcs:4443", e.Field, e.Value)
	case ConfigErrorMissingBucket:
		return "missing AUDIO_GCS_BUCKET_NAME"
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// ResolveObjectStoreConfigFromEnv reads the bucket settings. An emulator host
// without an explicit mode selects emulator mode.
func ResolveObjectStoreConfigFromEnv() (ObjectStoreConfig, error) {
	cfg := ObjectStoreConfig{
		EmulatorHost:  strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
		Bucket:        envutil.String("AUDIO_GCS_BUCKET_NAME", ""),
		ProjectID:     envutil.String("GCP_PROJECT_ID", ""),
		CDNDomain:     envutil.String("AUDIO_CDN_DOMAIN", ""),
		PublicBaseURL: strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""), "/"),
	}

	rawMode := envutil.String("OBJECT_STORAGE_MODE", "")
	switch ObjectStorageMode(strings.ToLower(rawMode)) {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ObjectStorageModeGCSEmulator
			cfg.ModeFromEmulatorHost = true
		} else {
			cfg.Mode = ObjectStorageModeGCS
		}
	case ObjectStorageModeGCS:
		cfg.Mode = ObjectStorageModeGCS
	case ObjectStorageModeGCSEmulator:
		cfg.Mode = ObjectStorageModeGCSEmulator
	default:
		return cfg, &ConfigError{Code: ConfigErrorInvalidMode, Field: "OBJECT_STORAGE_MODE", Value: rawMode}
	}

	if err := ValidateObjectStoreConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateObjectStoreConfig(cfg ObjectStoreConfig) error {
	switch cfg.Mode {
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
	default:
		return &ConfigError{Code: ConfigErrorInvalidMode, Field: "OBJECT_STORAGE_MODE", Value: string(cfg.Mode)}
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return &ConfigError{Code: ConfigErrorMissingBucket, Field: "AUDIO_GCS_BUCKET_NAME"}
	}
	if cfg.IsEmulatorMode() {
		if cfg.EmulatorHost == "" {
			return &ConfigError{Code: ConfigErrorMissingEmulatorHost, Field: "STORAGE_EMULATOR_HOST"}
		}
		if err := validateAbsoluteURL(cfg.EmulatorHost); err != nil {
			return &ConfigError{Code: ConfigErrorInvalidURL, Field: "STORAGE_EMULATOR_HOST", Value: cfg.EmulatorHost, Cause: err}
		}
	}
	if cfg.PublicBaseURL != "" {
		if err := validateAbsoluteURL(cfg.PublicBaseURL); err != nil {
			return &ConfigError{Code: ConfigErrorInvalidURL, Field: "OBJECT_STORAGE_PUBLIC_BASE_URL", Value: cfg.PublicBaseURL, Cause: err}
		}
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return fmt.Errorf("not an absolute url")
	}
	return nil
}
