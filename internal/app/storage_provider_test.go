package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/fastingles-audio/internal/platform/gcp"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

func TestClassifyStorageBootstrapError(t *testing.T) {
	emulatorCfg := gcp.ObjectStoreConfig{
		Mode:         gcp.ObjectStorageModeGCSEmulator,
		EmulatorHost: "fake-gcs:4443",
		Bucket:       "audio",
	}

	cases := []struct {
		name string
		err  error
		want StorageBootstrapErrorCode
	}{
		{
			name: "invalid mode",
			err:  &gcp.ConfigError{Code: gcp.ConfigErrorInvalidMode, Field: "OBJECT_STORAGE_MODE", Value: "s3"},
			want: StorageBootstrapErrorInvalidMode,
		},
		{
			name: "missing emulator host",
			err:  &gcp.ConfigError{Code: gcp.ConfigErrorMissingEmulatorHost, Field: "STORAGE_EMULATOR_HOST"},
			want: StorageBootstrapErrorMissingEmulatorHost,
		},
		{
			name: "invalid emulator host",
			err:  &gcp.ConfigError{Code: gcp.ConfigErrorInvalidURL, Field: "STORAGE_EMULATOR_HOST", Value: "fake-gcs:4443"},
			want: StorageBootstrapErrorInvalidEmulatorHost,
		},
		{
			name: "invalid public url",
			err:  &gcp.ConfigError{Code: gcp.ConfigErrorInvalidURL, Field: "OBJECT_STORAGE_PUBLIC_BASE_URL", Value: "cdn"},
			want: StorageBootstrapErrorInvalidPublicURL,
		},
		{
			name: "missing bucket",
			err:  &gcp.ConfigError{Code: gcp.ConfigErrorMissingBucket, Field: "AUDIO_GCS_BUCKET_NAME"},
			want: StorageBootstrapErrorMissingBucket,
		},
		{
			name: "wrapped config error",
			err:  errors.Join(errors.New("outer"), &gcp.ConfigError{Code: gcp.ConfigErrorMissingBucket}),
			want: StorageBootstrapErrorMissingBucket,
		},
		{
			name: "connect failure",
			err:  io.ErrUnexpectedEOF,
			want: StorageBootstrapErrorConnectFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStorageBootstrapError(emulatorCfg, tc.err)

			var got *StorageBootstrapError
			require.ErrorAs(t, err, &got)
			assert.Equal(t, tc.want, got.Code)
			assert.Equal(t, tc.want, storageBootstrapErrorCode(err))
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, "audio", got.Bucket)
		})
	}
}

func TestStorageBootstrapErrorMessageIncludesContext(t *testing.T) {
	err := classifyStorageBootstrapError(
		gcp.ObjectStoreConfig{Mode: gcp.ObjectStorageModeGCSEmulator, EmulatorHost: "fake-gcs:4443"},
		&gcp.ConfigError{Code: gcp.ConfigErrorInvalidURL, Field: "STORAGE_EMULATOR_HOST", Value: "fake-gcs:4443"},
	)
	msg := err.Error()
	assert.True(t, strings.Contains(msg, "code=invalid_emulator_host"), msg)
	assert.True(t, strings.Contains(msg, `emulator_host="fake-gcs:4443"`), msg)
}

func TestStorageBootstrapErrorCodeDefaultsToConnectFailed(t *testing.T) {
	assert.Equal(t, StorageBootstrapErrorConnectFailed, storageBootstrapErrorCode(errors.New("boom")))
	assert.Equal(t, StorageBootstrapErrorConnectFailed, storageBootstrapErrorCode(&StorageBootstrapError{}))
}

func TestOpenObjectStoreRejectsBadEnvironmentBeforeDialing(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want StorageBootstrapErrorCode
	}{
		{
			name: "unknown mode",
			env:  map[string]string{"OBJECT_STORAGE_MODE": "s3", "AUDIO_GCS_BUCKET_NAME": "audio"},
			want: StorageBootstrapErrorInvalidMode,
		},
		{
			name: "no bucket",
			env:  map[string]string{"OBJECT_STORAGE_MODE": "gcs", "AUDIO_GCS_BUCKET_NAME": ""},
			want: StorageBootstrapErrorMissingBucket,
		},
		{
			name: "emulator without host",
			env:  map[string]string{"OBJECT_STORAGE_MODE": "gcs_emulator", "AUDIO_GCS_BUCKET_NAME": "audio"},
			want: StorageBootstrapErrorMissingEmulatorHost,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("STORAGE_EMULATOR_HOST", "")
			t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			store, err := openObjectStore(context.Background(), logger.Nop())
			require.Error(t, err)
			assert.Nil(t, store)
			assert.Equal(t, tc.want, storageBootstrapErrorCode(err))
		})
	}
}
