// Package relay ties image resolution, the analysis call and formatting
// together. Transport concerns live in internal/channel.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"foodrelay/internal/domain"
	"foodrelay/internal/format"
)

// ImageFetcher downloads remote images for base64 deployments.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (domain.ImageReference, error)
}

// Config configures the relay.
type Config struct {
	Analyzer domain.Analyzer
	Fetcher  ImageFetcher // required when Transfer is base64
	Transfer domain.ImageTransfer
	Cards    bool
	Timeout  time.Duration // ceiling for download plus analysis; 0 = none
	Logger   *slog.Logger
}

// Relay performs exactly one analysis per resolved image.
type Relay struct {
	analyzer domain.Analyzer
	fetcher  ImageFetcher
	transfer domain.ImageTransfer
	cards    bool
	timeout  time.Duration
	logger   *slog.Logger
}

func New(cfg Config) *Relay {
	if cfg.Transfer == "" {
		cfg.Transfer = domain.TransferURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{
		analyzer: cfg.Analyzer,
		fetcher:  cfg.Fetcher,
		transfer: cfg.Transfer,
		cards:    cfg.Cards,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

func (r *Relay) Transfer() domain.ImageTransfer { return r.transfer }

// BuildRequest encodes ref in the deployment's wire shape.
func (r *Relay) BuildRequest(ctx context.Context, ref domain.ImageReference, who domain.Requester) (domain.AnalysisRequest, error) {
	who = who.WithDefaults()
	req := domain.AnalysisRequest{UserName: who.Name, UserEmail: who.Email}

	switch r.transfer {
	case domain.TransferURL:
		if ref.Kind != domain.ImageRemoteURL {
			return req, fmt.Errorf("%s reference: %w", ref.Kind, domain.ErrTransferUnsupported)
		}
		req.ImageURL = ref.URL
	case domain.TransferBase64:
		if ref.Kind == domain.ImageRemoteURL {
			if r.fetcher == nil {
				return req, fmt.Errorf("no image fetcher: %w", domain.ErrTransferUnsupported)
			}
			fetched, err := r.fetcher.Fetch(ctx, ref.URL)
			if err != nil {
				return req, err
			}
			ref = fetched
		}
		req.ImageBase64 = ref.Encoded()
	default:
		return req, fmt.Errorf("transfer %q: %w", r.transfer, domain.ErrTransferUnsupported)
	}
	return req, nil
}

// Analyze resolves the wire request, calls the analysis service once and
// formats the outcome. The returned reply is always usable; err reports
// what went wrong for logging. The call is detached from ctx cancellation
// so a disconnecting client does not abort an in-flight analysis. A single
// deadline covers the image download and the analysis call together.
func (r *Relay) Analyze(ctx context.Context, ref domain.ImageReference, who domain.Requester) (domain.ReplyMessage, error) {
	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := r.BuildRequest(ctx, ref, who)
	if err != nil {
		return r.Failure(err), err
	}

	r.logger.Info("requesting analysis",
		"image_kind", ref.Kind.String(),
		"transfer", string(r.transfer),
		"user", req.UserName,
	)
	res, err := r.analyzer.Analyze(ctx, req)
	if err != nil {
		return r.Failure(err), err
	}
	return format.Result(res, r.cards), nil
}

// NoImage is the reply for events without a usable image.
func (r *Relay) NoImage() domain.ReplyMessage {
	return domain.ReplyMessage{Text: format.NoImagePrompt}
}

// Failure converts err into a user-facing reply.
func (r *Relay) Failure(err error) domain.ReplyMessage {
	return domain.ReplyMessage{Text: format.Failure(err)}
}
