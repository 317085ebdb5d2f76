package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tartampluch/go-musicbot/internal/config"
)

// Image download failures. Their messages carry the markers the cycle
// runner uses to schedule an image regeneration.
var (
	ErrImageURLInvalid  = errors.New(config.ErrImageURLInvalid)
	ErrImageURLFormat   = errors.New(config.ErrImageURLFormat)
	ErrImageForbidden   = errors.New(config.ErrImageForbidden)
	ErrImageStatus      = errors.New(config.ErrImageStatus)
	ErrImageContentType = errors.New(config.ErrImageContentType)
	ErrImageTooSmall    = errors.New(config.ErrImageTooSmall)
	ErrImageTooLarge    = errors.New(config.ErrImageTooLarge)
)

// ImageFetcher downloads an image that is about to be attached to a post.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// ImageDownloader implements ImageFetcher over net/http and refuses anything
// that is not a plausible image.
type ImageDownloader struct {
	Client *http.Client
}

// NewImageDownloader returns a downloader with the image timeout.
func NewImageDownloader() *ImageDownloader {
	return &ImageDownloader{Client: &http.Client{Timeout: config.ImageFetchTimeout}}
}

func (p *ImageDownloader) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, ErrImageURLInvalid
	}
	u, err := url.Parse(imageURL)
	if err != nil || u.Host == "" {
		return nil, ErrImageURLInvalid
	}
	if u.Scheme != config.SchemeHTTP && u.Scheme != config.SchemeHTTPS {
		return nil, fmt.Errorf("%w: %s", ErrImageURLFormat, u.Scheme)
	}

	log := slog.With(
		slog.String(config.LogKeyComponent, config.CompTools),
		slog.String(config.LogKeyURL, u.Scheme+"://"+u.Host+u.Path),
	)
	log.Debug(config.MsgImageFetch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageURLInvalid, err)
	}
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)
	req.Header.Set(config.HeaderAccept, config.MimeAcceptImage)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageURLInvalid, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrImageForbidden
	case resp.StatusCode != http.StatusOK:
		log.Warn(config.ErrImageStatus, slog.Int(config.LogKeyStatus, resp.StatusCode))
		return nil, fmt.Errorf("%w: %d", ErrImageStatus, resp.StatusCode)
	}

	if ct := resp.Header.Get(config.HeaderContentType); !strings.HasPrefix(ct, config.MimeImagePrefix) {
		return nil, fmt.Errorf("%w: %q", ErrImageContentType, ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageURLInvalid, err)
	}
	switch {
	case len(data) > config.MaxImageSize:
		return nil, ErrImageTooLarge
	case len(data) < config.MinImageBytes:
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooSmall, len(data))
	}

	log.Debug(config.MsgImageFetch, slog.Int(config.LogKeySizeBytes, len(data)))
	return data, nil
}
