package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/models"
	"github.com/noah-isme/gema-chat-api/internal/observability"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadScanFailed indicates validation of the file failed.
	ErrUploadScanFailed = errors.New("file scanning failed")
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
	Delete(ctx context.Context, location string) error
}

// releaseFiles removes stored uploads. Failures only log.
func releaseFiles(ctx context.Context, storage FileStorage, logger zerolog.Logger, paths []string) {
	if storage == nil {
		return
	}
	for _, path := range paths {
		if err := storage.Delete(ctx, path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to delete stored file")
		}
	}
}

// UploadService validates files and hands them to the configured storage.
type UploadService interface {
	Store(ctx context.Context, actorID string, file *multipart.FileHeader) (dto.UploadResponse, error)
}

type uploadService struct {
	storage FileStorage
	users   repository.UserStore
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
	now     func() time.Time
}

var blockedMimes = []string{
	"application/x-executable",
	"application/x-elf",
	"application/x-sharedlib",
	"application/x-mach-binary",
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
}

var blockedExtensions = map[string]struct{}{
	".exe": {}, ".dll": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".msi": {}, ".scr": {},
}

// NewUploadService constructs an upload service.
func NewUploadService(storage FileStorage, users repository.UserStore, maxBytes int64, logger zerolog.Logger) UploadService {
	if maxBytes <= 0 {
		maxBytes = 25 * 1024 * 1024
	}
	return &uploadService{
		storage: storage,
		users:   users,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: maxBytes,
		tracer:  otel.Tracer("github.com/noah-isme/gema-chat-api/internal/service/upload"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *uploadService) Store(ctx context.Context, actorID string, file *multipart.FileHeader) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.store")
	defer span.End()

	span.SetAttributes(attribute.Int64("upload.max_bytes", s.maxSize), attribute.String("upload.user_id", actorID))

	if _, err := loadActiveActor(ctx, s.users, actorID, s.now()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "actor rejected")
		return dto.UploadResponse{}, err
	}

	if file == nil {
		err := fmt.Errorf("file is required: %w", ErrInvalidInput)
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.UploadResponse{}, err
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		return dto.UploadResponse{}, s.reject(span, "size", ErrUploadTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.UploadResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.UploadResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		return dto.UploadResponse{}, s.reject(span, "size", ErrUploadTooLarge)
	}
	if buf.Len() == 0 {
		return dto.UploadResponse{}, s.reject(span, "empty", fmt.Errorf("file is empty: %w", ErrInvalidInput))
	}

	detected := mimetype.Detect(buf.Bytes())
	span.SetAttributes(attribute.String("upload.detected_mime", detected.String()))
	if isBlocked(detected, file.Filename) {
		return dto.UploadResponse{}, s.reject(span, "type", ErrUploadTypeNotAllowed)
	}

	if err := s.scan(buf.Bytes(), detected); err != nil {
		return dto.UploadResponse{}, s.reject(span, "scan", err)
	}

	sanitizedName := sanitizeFileName(file.Filename)
	messageType := MessageTypeForMime(detected.String())
	span.SetAttributes(
		attribute.String("upload.sanitized_name", sanitizedName),
		attribute.String("upload.message_type", messageType),
		attribute.Int64("upload.size_bytes", int64(buf.Len())),
	)

	location, err := s.storage.Upload(ctx, sanitizedName, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return dto.UploadResponse{}, s.reject(span, "storage", err)
	}

	observability.Uploads().WithLabelValues(messageType).Inc()
	span.SetStatus(codes.Ok, "stored")
	s.logger.Info().
		Str("user_id", actorID).
		Str("path", location).
		Str("mime_type", detected.String()).
		Int("size", buf.Len()).
		Msg("file stored")

	return dto.UploadResponse{
		Path:     location,
		Name:     sanitizedName,
		Size:     int64(buf.Len()),
		MimeType: detected.String(),
		Type:     messageType,
	}, nil
}

func (s *uploadService) reject(span trace.Span, reason string, err error) error {
	observability.UploadsRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	return err
}

func (s *uploadService) scan(payload []byte, detected *mimetype.MIME) error {
	if !detected.Is("application/zip") {
		return nil
	}
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrUploadScanFailed
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(s.maxSize*20) {
			return fmt.Errorf("zip archive uncompressed size too large: %w", ErrUploadScanFailed)
		}
		if _, blocked := blockedExtensions[strings.ToLower(filepath.Ext(f.Name))]; blocked {
			return fmt.Errorf("archive contains executable %s: %w", f.Name, ErrUploadScanFailed)
		}
	}
	return nil
}

func isBlocked(detected *mimetype.MIME, name string) bool {
	if _, blocked := blockedExtensions[strings.ToLower(filepath.Ext(name))]; blocked {
		return true
	}
	for m := detected; m != nil; m = m.Parent() {
		for _, candidate := range blockedMimes {
			if m.Is(candidate) {
				return true
			}
		}
	}
	return false
}

// MessageTypeForMime maps a MIME type to the message type used to post it.
func MessageTypeForMime(mime string) string {
	lower := strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	switch {
	case lower == "image/gif":
		return models.MessageTypeGIF
	case strings.HasPrefix(lower, "image/"):
		return models.MessageTypeImage
	case strings.HasPrefix(lower, "video/"):
		return models.MessageTypeVideo
	case strings.HasPrefix(lower, "audio/"):
		return models.MessageTypeVoice
	default:
		return models.MessageTypeFile
	}
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}
