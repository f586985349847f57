package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

// ErrObjectNotFound is returned when an operation needs an object that is not
// in the bucket.
var ErrObjectNotFound = errors.New("object not found")

const (
	existsTimeout = 15 * time.Second
	uploadTimeout = 2 * time.Minute
	deleteTimeout = 30 * time.Second
	bucketTimeout = 30 * time.Second
)

// ObjectStore is the audio bucket adapter.
type ObjectStore struct {
	log    *logger.Logger
	client *storage.Client
	cfg    ObjectStoreConfig

	ensureOnce sync.Once
	ensureErr  error
}

func NewObjectStore(ctx context.Context, log *logger.Logger, cfg ObjectStoreConfig) (*ObjectStore, error) {
	if err := ValidateObjectStoreConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	client, err := newStorageClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	s, err := NewObjectStoreWithClient(ctx, log, client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewObjectStoreWithClient wraps an existing client and makes sure the bucket
// exists before returning.
func NewObjectStoreWithClient(ctx context.Context, log *logger.Logger, client *storage.Client, cfg ObjectStoreConfig) (*ObjectStore, error) {
	s := &ObjectStore{
		log:    log.With("service", "ObjectStore", "bucket", cfg.Bucket),
		client: client,
		cfg:    cfg,
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	s.log.Info("Object storage initialized",
		"mode", cfg.Mode,
		"mode_from_emulator_host", cfg.ModeFromEmulatorHost,
		"emulator_host", cfg.EmulatorHost,
		"cdn_domain", cfg.CDNDomain,
	)
	return s, nil
}

func newStorageClient(ctx context.Context, cfg ObjectStoreConfig) (*storage.Client, error) {
	if cfg.IsEmulatorMode() {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

// EnsureBucket creates the bucket when it is missing. It runs once per store;
// later calls return the first result.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, bucketTimeout)
		defer cancel()

		bkt := s.client.Bucket(s.cfg.Bucket)
		_, err := bkt.Attrs(ctx)
		if err == nil {
			return
		}
		if !errors.Is(err, storage.ErrBucketNotExist) {
			s.ensureErr = fmt.Errorf("check bucket %q: %w", s.cfg.Bucket, err)
			return
		}
		project := s.cfg.ProjectID
		if project == "" && s.cfg.IsEmulatorMode() {
			project = "local"
		}
		if err := bkt.Create(ctx, project, nil); err != nil && !isConflict(err) {
			s.ensureErr = fmt.Errorf("create bucket %q: %w", s.cfg.Bucket, err)
			return
		}
		s.log.Info("Created bucket")
	})
	return s.ensureErr
}

// Exists reports whether key is present. Only "not found" maps to false;
// every other failure is returned.
func (s *ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, existsTimeout)
	defer cancel()
	_, err := s.client.Bucket(s.cfg.Bucket).Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %q: %w", key, err)
}

// Put uploads data to key, replacing any existing object.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.cfg.Bucket).Object(key).NewWriter(ctx)
	if contentType == "" {
		contentType = contentTypeForKey(key)
	}
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write %q to GCS: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %q: %w", key, err)
	}
	return nil
}

// PresignedURL returns a time-limited download URL for key. The object must
// exist. Emulator and CDN setups return a plain public URL instead.
func (s *ObjectStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("presign %q: %w", key, ErrObjectNotFound)
	}
	if u := s.publicURL(key); u != "" {
		return u, nil
	}
	u, err := s.client.Bucket(s.cfg.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %q: %w", key, err)
	}
	return u, nil
}

// Delete removes key. Failures are logged and reported as false.
func (s *ObjectStore) Delete(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()
	if err := s.client.Bucket(s.cfg.Bucket).Object(key).Delete(ctx); err != nil {
		s.log.Warn("Delete object failed", "key", key, "error", err)
		return false
	}
	s.log.Info("Deleted object", "key", key)
	return true
}

func (s *ObjectStore) Close() error {
	return s.client.Close()
}

func (s *ObjectStore) publicURL(key string) string {
	return publicObjectURL(s.cfg, key)
}

func publicObjectURL(cfg ObjectStoreConfig, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if cfg.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", cfg.CDNDomain, key)
	}
	if cfg.IsEmulatorMode() {
		base := cfg.PublicBaseURL
		if base == "" {
			base = cfg.EmulatorHost
		}
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			strings.TrimRight(base, "/"),
			url.PathEscape(cfg.Bucket),
			url.PathEscape(key),
		)
	}
	return ""
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(s, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(s, ".ogg"), strings.HasSuffix(s, ".opus"):
		return "audio/ogg"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func isConflict(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusConflict
}
