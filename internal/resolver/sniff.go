package resolver

import (
	"encoding/base64"
	"fmt"
	"strings"

	"foodrelay/internal/domain"

	"github.com/gabriel-vasile/mimetype"
)

// sniffImage detects the content type of data and rejects anything that
// is not an image.
func sniffImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file: %w", domain.ErrNotAnImage)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return mt.String(), fmt.Errorf("detected %s: %w", mt.String(), domain.ErrNotAnImage)
	}
	return mt.String(), nil
}

// FromBase64 checks that s (optionally a data: URL) decodes to an image
// and returns it as a base64 reference.
func FromBase64(s string) (domain.ImageReference, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	if s == "" {
		return domain.ImageReference{}, domain.ErrNoImageProvided
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return domain.ImageReference{}, fmt.Errorf("decode base64: %v: %w", err, domain.ErrNotAnImage)
	}
	mimeType, err := sniffImage(data)
	if err != nil {
		return domain.ImageReference{}, err
	}
	return domain.Base64String(s, mimeType), nil
}
