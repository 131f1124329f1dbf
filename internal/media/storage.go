package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"freewalk/pkg/platform/circuit"
)

// ErrStorageUnavailable is returned without calling the backend while its
// circuit is open.
var ErrStorageUnavailable = errors.New("object storage unavailable")

// Uploader stores an image and returns a stable public reference to it.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

// ObjectStore uploads to a bucket behind the storage REST API of the identity
// provider platform: POST {base}/storage/v1/object/{bucket}/{key}. Objects are
// public, and the returned reference is their public URL.
type ObjectStore struct {
	baseURL string
	apiKey  string
	bucket  string
	client  *http.Client
	logger  *slog.Logger
	breaker *circuit.Breaker
}

type ObjectStoreOption func(*ObjectStore)

func WithHTTPClient(c *http.Client) ObjectStoreOption {
	return func(s *ObjectStore) {
		s.client = c
	}
}

func WithLogger(logger *slog.Logger) ObjectStoreOption {
	return func(s *ObjectStore) {
		s.logger = logger
	}
}

// WithBreaker replaces the default breaker (5 failures, 30s cooldown).
func WithBreaker(b *circuit.Breaker) ObjectStoreOption {
	return func(s *ObjectStore) {
		s.breaker = b
	}
}

func NewObjectStore(baseURL, apiKey, bucket string, timeout time.Duration, opts ...ObjectStoreOption) *ObjectStore {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &ObjectStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		bucket:  bucket,
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default(),
		breaker: circuit.New("object-storage"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload writes data under a random key and returns its public URL.
func (s *ObjectStore) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if !s.breaker.Allow() {
		return "", ErrStorageUnavailable
	}
	ref, err := s.upload(ctx, data, filename, contentType)
	switch {
	case err == nil || errors.Is(err, errRejected):
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "object storage circuit closed", "bucket", s.bucket)
		}
	case ctx.Err() != nil:
		// cancelled by the caller; the backend state is unknown
	default:
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "object storage circuit opened", "bucket", s.bucket, "error", err)
		}
	}
	return ref, err
}

// errRejected marks 4xx answers; the backend is up, the request was refused.
var errRejected = errors.New("rejected")

func (s *ObjectStore) upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	key := strings.ReplaceAll(uuid.NewString(), "-", "") + Extension(filename, contentType)
	objectPath := url.PathEscape(s.bucket) + "/" + url.PathEscape(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/storage/v1/object/"+objectPath, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("x-upsert", "false")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		s.logger.ErrorContext(ctx, "object upload rejected",
			"status", resp.StatusCode,
			"bucket", s.bucket,
			"body", string(body),
		)
		if resp.StatusCode/100 == 4 {
			return "", fmt.Errorf("upload object: http %d: %w", resp.StatusCode, errRejected)
		}
		return "", fmt.Errorf("upload object: http %d", resp.StatusCode)
	}
	return s.baseURL + "/storage/v1/object/public/" + objectPath, nil
}

// MemoryStore keeps uploads in process and hands out memory:// references.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := "memory://evidence/" + strings.ReplaceAll(uuid.NewString(), "-", "") + Extension(filename, contentType)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = bytes.Clone(data)
	return ref, nil
}

// Object returns a stored upload.
func (s *MemoryStore) Object(ref string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[ref]
	return b, ok
}
