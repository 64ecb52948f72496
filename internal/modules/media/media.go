// README: Opaque blob store for handover photos and rental documents.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"vrent/internal/apperr"
	"vrent/internal/logger"
	"vrent/internal/types"
)

const (
	MaxUploadBytes = 10 << 20
	uploadAttempts = 3
)

var (
	ErrUnsupportedType = apperr.Validation("UNSUPPORTED_MEDIA_TYPE", "file type is not accepted")
	ErrTooLarge        = apperr.Validation("FILE_TOO_LARGE", "file exceeds the upload limit")
	ErrBlobStore       = apperr.New(apperr.KindExternal, "BLOB_STORE_UNAVAILABLE", "file storage is unavailable")
)

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Object is what callers persist; file content is never inspected.
type Object struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
	Size     int64  `json:"size"`
}

type BlobStore interface {
	Put(ctx context.Context, name, contentType string, body io.Reader) (Object, error)
	Delete(ctx context.Context, publicID string) error
}

// GCSStore writes objects to a Cloud Storage (Firebase) bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
}

func NewGCSStore(bucket *storage.BucketHandle, bucketName string) *GCSStore {
	return &GCSStore{bucket: bucket, name: bucketName}
}

func (s *GCSStore) Put(ctx context.Context, name, contentType string, body io.Reader) (Object, error) {
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, max-age=0"
	n, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return Object{}, err
	}
	if err := w.Close(); err != nil {
		return Object{}, err
	}
	return Object{
		URL:      fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.name, escapePath(name)),
		PublicID: name,
		Size:     n,
	}, nil
}

func (s *GCSStore) Delete(ctx context.Context, publicID string) error {
	err := s.bucket.Object(publicID).Delete(ctx)
	if err == storage.ErrObjectNotExist {
		return nil
	}
	return err
}

type Upload struct {
	BookingID   types.ID
	Purpose     string // handover, return, dispute, document
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

type Service struct {
	store   BlobStore
	backoff time.Duration
	log     *slog.Logger
}

func NewService(store BlobStore) *Service {
	return &Service{store: store, backoff: 200 * time.Millisecond, log: logger.WithService("media")}
}

// Upload stores the file under bookings/<id>/<purpose>/ and returns its URL.
// Transient store failures are retried from the start of Body.
func (s *Service) Upload(ctx context.Context, u Upload) (Object, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(u.ContentType, ";")[0]))
	ext, ok := extensions[ct]
	if !ok {
		return Object{}, ErrUnsupportedType.WithMessage("%q is not accepted", u.ContentType)
	}
	if u.Size > MaxUploadBytes {
		return Object{}, ErrTooLarge
	}
	if u.BookingID == "" || u.Purpose == "" {
		return Object{}, apperr.Validation("INVALID_UPLOAD", "booking and purpose are required")
	}
	name := path.Join("bookings", string(u.BookingID), u.Purpose, string(types.NewID())+ext)

	backoff := s.backoff
	var err error
	for attempt := 0; attempt < uploadAttempts; attempt++ {
		if _, err = u.Body.Seek(0, io.SeekStart); err != nil {
			return Object{}, ErrBlobStore.Wrap(err)
		}
		var obj Object
		obj, err = s.store.Put(ctx, name, ct, io.LimitReader(u.Body, MaxUploadBytes+1))
		if err == nil {
			if obj.Size > MaxUploadBytes {
				_ = s.store.Delete(ctx, name)
				return Object{}, ErrTooLarge
			}
			return obj, nil
		}
		s.log.WarnContext(ctx, "upload failed", "object", name, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return Object{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return Object{}, ErrBlobStore.Wrap(err)
}

func (s *Service) Delete(ctx context.Context, publicID string) error {
	if err := s.store.Delete(ctx, publicID); err != nil {
		return ErrBlobStore.Wrap(err)
	}
	return nil
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
