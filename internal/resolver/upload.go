package resolver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"

	"foodrelay/internal/domain"
)

const maxFieldBytes = 4 << 10

// UploadConfig configures multipart image uploads.
type UploadConfig struct {
	Field    string // file form field; "file" is always accepted as well
	TempDir  string // empty = os.TempDir()
	MaxBytes int64
	Logger   *slog.Logger
}

// Uploads resolves multipart uploads. The file part is spooled to a temp
// file which is removed before FromRequest returns, on every path.
type Uploads struct {
	field    string
	tempDir  string
	maxBytes int64
	logger   *slog.Logger
}

func NewUploads(cfg UploadConfig) *Uploads {
	if cfg.Field == "" {
		cfg.Field = "image"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Uploads{field: cfg.Field, tempDir: cfg.TempDir, maxBytes: cfg.MaxBytes, logger: cfg.Logger}
}

// ErrNotMultipart is returned for requests that are not multipart/form-data.
var ErrNotMultipart = errors.New("request is not multipart/form-data")

// FromRequest reads the image part and the userName/userEmail fields.
// A request without the file part yields domain.ErrNoImageProvided; the
// requester is still returned so the caller can address the reply.
func (u *Uploads) FromRequest(r *http.Request) (domain.ImageReference, domain.Requester, error) {
	var requester domain.Requester

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return domain.ImageReference{}, requester, ErrNotMultipart
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return domain.ImageReference{}, requester, fmt.Errorf("%w: %v", ErrNotMultipart, err)
	}

	var tmpPath string
	defer func() {
		if tmpPath == "" {
			return
		}
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			u.logger.Warn("cannot remove upload temp file", "path", tmpPath, "err", err)
		}
	}()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.ImageReference{}, requester, fmt.Errorf("read multipart: %w", err)
		}

		name := part.FormName()
		switch {
		case part.FileName() != "" && (name == u.field || name == "file"):
			if tmpPath != "" {
				// Only the first image is analyzed.
				part.Close()
				continue
			}
			tmpPath, err = u.spool(part)
			part.Close()
			if err != nil {
				return domain.ImageReference{}, requester, err
			}
		case name == "userName" || name == "userEmail":
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			part.Close()
			if err != nil {
				return domain.ImageReference{}, requester, fmt.Errorf("read field %s: %w", name, err)
			}
			if name == "userName" {
				requester.Name = strings.TrimSpace(string(value))
			} else {
				requester.Email = strings.TrimSpace(string(value))
			}
		default:
			part.Close()
		}
	}

	requester = requester.WithDefaults()
	if tmpPath == "" {
		return domain.ImageReference{}, requester, domain.ErrNoImageProvided
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return domain.ImageReference{}, requester, fmt.Errorf("read upload: %w", err)
	}
	mimeType, err := sniffImage(data)
	if err != nil {
		return domain.ImageReference{}, requester, err
	}

	u.logger.Debug("upload resolved", "bytes", len(data), "mime", mimeType)
	return domain.InlineBytes(data, mimeType), requester, nil
}

// spool copies the part to a new temp file and returns its path. On error
// the file is already removed.
func (u *Uploads) spool(part io.Reader) (string, error) {
	f, err := os.CreateTemp(u.tempDir, "foodrelay-upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	n, copyErr := io.Copy(f, io.LimitReader(part, u.maxBytes+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		os.Remove(path)
		return "", fmt.Errorf("store upload: %w", copyErr)
	case closeErr != nil:
		os.Remove(path)
		return "", fmt.Errorf("store upload: %w", closeErr)
	case n > u.maxBytes:
		os.Remove(path)
		return "", fmt.Errorf("upload over %d bytes: %w", u.maxBytes, domain.ErrImageTooLarge)
	}
	return path, nil
}
