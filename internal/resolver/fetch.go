package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"foodrelay/internal/domain"
)

// Fetcher downloads remote images so they can be sent inline to services
// that only accept base64.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

func NewFetcher(client *http.Client, maxBytes int64, logger *slog.Logger) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, maxBytes: maxBytes, logger: logger}
}

// Fetch returns the image at rawURL as an inline reference. Returned
// errors never contain the URL: Telegram file links embed the bot token.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (domain.ImageReference, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.ImageReference{}, fmt.Errorf("%w: invalid image link", domain.ErrImageDownload)
	}
	log := f.logger.With("host", req.URL.Host)

	resp, err := f.client.Do(req)
	if err != nil {
		err = StripURL(err)
		log.Warn("image download failed", "err", err)
		return domain.ImageReference{}, fmt.Errorf("%w: %v", domain.ErrImageDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("image download failed", "status", resp.StatusCode)
		return domain.ImageReference{}, fmt.Errorf("%w: image host returned %d", domain.ErrImageDownload, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		err = StripURL(err)
		log.Warn("image download interrupted", "err", err)
		return domain.ImageReference{}, fmt.Errorf("%w: %v", domain.ErrImageDownload, err)
	}
	if int64(len(data)) > f.maxBytes {
		return domain.ImageReference{}, fmt.Errorf("image over %d bytes: %w", f.maxBytes, domain.ErrImageTooLarge)
	}
	mimeType, err := sniffImage(data)
	if err != nil {
		return domain.ImageReference{}, err
	}
	return domain.InlineBytes(data, mimeType), nil
}

// StripURL drops the request URL from net/http client errors and keeps
// the underlying cause.
func StripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
