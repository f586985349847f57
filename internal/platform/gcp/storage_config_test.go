package gcp

import (
	"errors"
	"testing"
)

func TestResolveObjectStoreConfigFromEnvDefaultGCS(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	t.Setenv("AUDIO_GCS_BUCKET_NAME", "fastingles-audio")

	cfg, err := ResolveObjectStoreConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStoreConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
	if cfg.ModeFromEmulatorHost {
		t.Fatalf("mode from emulator host: want=false got=true")
	}
	if cfg.Bucket != "fastingles-audio" {
		t.Fatalf("bucket: want=%q got=%q", "fastingles-audio", cfg.Bucket)
	}
}

func TestResolveObjectStoreConfigFromEnvExplicitGCSIgnoresEmulatorHost(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")
	t.Setenv("AUDIO_GCS_BUCKET_NAME", "fastingles-audio")

	cfg, err := ResolveObjectStoreConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStoreConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
}

func TestResolveObjectStoreConfigFromEnvInfersEmulator(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443/")
	t.Setenv("AUDIO_GCS_BUCKET_NAME", "fastingles-audio")

	cfg, err := ResolveObjectStoreConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStoreConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCSEmulator, cfg.Mode)
	}
	if !cfg.ModeFromEmulatorHost {
		t.Fatalf("mode from emulator host: want=true got=false")
	}
	if cfg.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator host: got=%q", cfg.EmulatorHost)
	}
}

func TestResolveObjectStoreConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		host     string
		bucket   string
		wantCode ConfigErrorCode
	}{
		{name: "invalid mode", mode: "local", bucket: "b", wantCode: ConfigErrorInvalidMode},
		{name: "emulator without host", mode: "gcs_emulator", bucket: "b", wantCode: ConfigErrorMissingEmulatorHost},
		{name: "emulator relative host", mode: "gcs_emulator", host: "fake-gcs:4443", bucket: "b", wantCode: ConfigErrorInvalidURL},
		{name: "missing bucket", mode: "gcs", wantCode: ConfigErrorMissingBucket},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.host)
			t.Setenv("AUDIO_GCS_BUCKET_NAME", tc.bucket)
			t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

			_, err := ResolveObjectStoreConfigFromEnv()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if cfgErr.Code != tc.wantCode {
				t.Fatalf("code: want=%q got=%q", tc.wantCode, cfgErr.Code)
			}
		})
	}
}
