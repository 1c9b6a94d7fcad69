package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedhub/internal/async"
	"feedhub/internal/config"
	"feedhub/internal/models"
	"feedhub/internal/observability"
)

const (
	DefaultImageUploadDir       = "images"
	DefaultImageURLPrefix       = "images"
	DefaultImageMaxUploadSizeMB = 10
	maxStoredNameLength         = 120
)

// ErrInvalidHandle is returned for handles outside the upload root.
var ErrInvalidHandle = errors.New("invalid attachment handle")

// UploadInput is a file received from a client.
type UploadInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// AttachmentService stores post images on local disk and hands out
// forward-slash handles of the form "<prefix>/<file>".
type AttachmentService struct {
	uploadDir          string
	urlPrefix          string
	maxUploadSizeBytes int64
	tasks              *async.Runner
	now                func() time.Time
}

// NewAttachmentService builds the service from config. tasks runs detached deletes.
func NewAttachmentService(cfg *config.Config, tasks *async.Runner) *AttachmentService {
	s := &AttachmentService{
		uploadDir:          DefaultImageUploadDir,
		urlPrefix:          DefaultImageURLPrefix,
		maxUploadSizeBytes: DefaultImageMaxUploadSizeMB * 1024 * 1024,
		tasks:              tasks,
		now:                time.Now,
	}
	if cfg != nil {
		if cfg.UploadDir != "" {
			s.uploadDir = cfg.UploadDir
		}
		if cfg.ImageURLPrefix != "" {
			s.urlPrefix = cfg.ImageURLPrefix
		}
		if cfg.ImageMaxUploadSizeMB > 0 {
			s.maxUploadSizeBytes = cfg.MaxUploadBytes()
		}
	}
	if s.tasks == nil {
		s.tasks = async.NewRunner()
	}
	return s
}

// UploadDir is the directory files are written to.
func (s *AttachmentService) UploadDir() string {
	return s.uploadDir
}

// URLPrefix is the first segment of every handle and the static route prefix.
func (s *AttachmentService) URLPrefix() string {
	return s.urlPrefix
}

// Store writes an allowed image and returns its handle. Files whose declared
// type is not png/jpg/jpeg are dropped: Store returns "", nil.
func (s *AttachmentService) Store(ctx context.Context, in *UploadInput) (string, error) {
	if in == nil || !isAllowedImageMIME(in.ContentType) {
		observability.AttachmentOperations.WithLabelValues("store", "dropped").Inc()
		return "", nil
	}
	if len(in.Content) == 0 {
		return "", models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return "", models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}
	if detected := http.DetectContentType(in.Content); !isMatchingContentType(in.ContentType, detected) {
		return "", models.NewValidationError("Image content type mismatch")
	}

	if err := os.MkdirAll(s.uploadDir, 0o750); err != nil {
		return "", models.NewInternalError(err)
	}

	name := fmt.Sprintf("%d-%s", s.now().UnixMilli(), sanitizeFilename(in.Filename, in.ContentType))
	if err := writeExclusive(filepath.Join(s.uploadDir, name), in.Content); err != nil {
		if !errors.Is(err, os.ErrExist) {
			observability.AttachmentOperations.WithLabelValues("store", "error").Inc()
			return "", models.NewInternalError(err)
		}
		name = fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), uuid.NewString()[:8], sanitizeFilename(in.Filename, in.ContentType))
		if err := writeExclusive(filepath.Join(s.uploadDir, name), in.Content); err != nil {
			observability.AttachmentOperations.WithLabelValues("store", "error").Inc()
			return "", models.NewInternalError(err)
		}
	}

	observability.AttachmentOperations.WithLabelValues("store", "ok").Inc()
	handle := path.Join(s.urlPrefix, name)
	observability.L().InfoContext(ctx, "attachment stored", slog.String("path", handle), slog.Int("bytes", len(in.Content)))
	return handle, nil
}

// Resolve maps a handle to its absolute file path.
func (s *AttachmentService) Resolve(handle string) (string, error) {
	handle = filepath.ToSlash(strings.TrimSpace(handle))
	name, ok := strings.CutPrefix(strings.TrimPrefix(handle, "/"), s.urlPrefix+"/")
	if !ok || name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return "", ErrInvalidHandle
	}
	abs, err := filepath.Abs(filepath.Join(s.uploadDir, name))
	if err != nil {
		return "", ErrInvalidHandle
	}
	return abs, nil
}

// Exists reports whether handle points to a stored file.
func (s *AttachmentService) Exists(handle string) bool {
	p, err := s.Resolve(handle)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Remove unlinks the file behind handle.
func (s *AttachmentService) Remove(handle string) error {
	p, err := s.Resolve(handle)
	if err != nil {
		return fmt.Errorf("%w: %q", err, handle)
	}
	if err := os.Remove(p); err != nil {
		observability.AttachmentOperations.WithLabelValues("delete", "error").Inc()
		return err
	}
	observability.AttachmentOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

// Discard removes the file now. Failures are logged, never returned.
func (s *AttachmentService) Discard(ctx context.Context, handle string) {
	if err := s.Remove(handle); err != nil {
		observability.L().WarnContext(ctx, "attachment removal failed",
			slog.String("path", handle),
			slog.String("error", err.Error()),
		)
	}
}

// Delete schedules removal of the file and returns immediately.
func (s *AttachmentService) Delete(ctx context.Context, handle string) {
	s.tasks.Go(ctx, "attachment.delete", map[string]interface{}{"path": handle}, func(context.Context) error {
		return s.Remove(handle)
	})
}

func writeExclusive(p string, data []byte) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return err
	}
	return f.Close()
}

func sanitizeFilename(name, contentType string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	clean := strings.TrimLeft(b.String(), ".")
	if clean == "" {
		clean = "image" + extensionFor(contentType)
	}
	if len(clean) > maxStoredNameLength {
		clean = clean[len(clean)-maxStoredNameLength:]
	}
	return clean
}

func extensionFor(contentType string) string {
	if normalizeContentType(contentType) == "image/png" {
		return ".png"
	}
	return ".jpg"
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}
