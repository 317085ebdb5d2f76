package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/tartampluch/go-musicbot/internal/config"
)

// Fetcher retrieves a remote reference file (album YAML or musician vCards).
type Fetcher interface {
	Fetch(ctx context.Context, url, user, pass string) (io.ReadCloser, error)
}

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher with the default timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: config.HTTPTimeout}}
}

// Fetch downloads targetURL. Query strings are stripped from log records
// since they may carry tokens. The body is capped at MaxHTTPResponseSize.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL, user, pass string) (io.ReadCloser, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrInvalidURL, err)
	}
	if u.Scheme != config.SchemeHTTP && u.Scheme != config.SchemeHTTPS {
		return nil, fmt.Errorf("%s: %s", config.ErrProtocol, u.Scheme)
	}

	log := slog.With(
		slog.String(config.LogKeyComponent, config.CompFetcher),
		slog.String(config.LogKeyURL, u.Scheme+"://"+u.Host+u.Path),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)
	if user != "" || pass != "" {
		req.SetBasicAuth(user, pass)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error during fetch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		log.Warn("Server returned error status", slog.Int(config.LogKeyStatus, resp.StatusCode))
		return nil, fmt.Errorf("server returned unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	log.Debug("Reference file downloading", slog.Int64(config.LogKeySizeBytes, resp.ContentLength))

	return &limitedReadCloser{
		Reader: io.LimitReader(resp.Body, config.MaxHTTPResponseSize),
		Closer: resp.Body,
	}, nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}

// CatalogSource locates the two reference files. Either file may be omitted.
type CatalogSource struct {
	Mode          string // config.SourceModeLocal, config.SourceModeWeb or config.SourceModeNone
	AlbumsPath    string
	MusiciansPath string
	AlbumsURL     string
	MusiciansURL  string
	WebUser       string
	WebPass       string
}

// CatalogLoader builds a Catalog from the built-in album table plus the
// configured reference files.
type CatalogLoader struct {
	Fetcher Fetcher
}

// Load assembles the catalog. Mode none (or empty) yields the built-in
// albums only.
func (l *CatalogLoader) Load(ctx context.Context, src CatalogSource) (*Catalog, error) {
	start := time.Now()
	cat := NewCatalog()
	cat.Add(KnownAlbums()...)

	albumsLoc, musiciansLoc := src.AlbumsPath, src.MusiciansPath
	if src.Mode == config.SourceModeWeb {
		albumsLoc, musiciansLoc = src.AlbumsURL, src.MusiciansURL
	}

	if src.Mode == config.SourceModeLocal || src.Mode == config.SourceModeWeb {
		if albumsLoc != "" {
			entries, err := l.loadOne(ctx, src, albumsLoc, func(r io.Reader) ([]ReferenceEntry, error) {
				return DecodeAlbums(r)
			})
			if err != nil {
				return nil, err
			}
			cat.Add(entries...)
		}
		if musiciansLoc != "" {
			entries, err := l.loadOne(ctx, src, musiciansLoc, func(r io.Reader) ([]ReferenceEntry, error) {
				return DecodeMusicians(ctx, r)
			})
			if err != nil {
				return nil, err
			}
			cat.Add(entries...)
		}
	} else if src.Mode != config.SourceModeNone {
		return nil, fmt.Errorf("%s: %q", config.ErrModeUnsupport, src.Mode)
	}

	albums, musicians := cat.Len()
	slog.Info(config.MsgCatalogLoaded,
		config.LogKeyComponent, config.CompCatalog,
		config.LogKeyMode, src.Mode,
		config.LogKeyAlbums, albums,
		config.LogKeyMusicians, musicians,
		config.LogKeyDuration, time.Since(start).Milliseconds())
	return cat, nil
}

func (l *CatalogLoader) loadOne(ctx context.Context, src CatalogSource, location string, decode func(io.Reader) ([]ReferenceEntry, error)) ([]ReferenceEntry, error) {
	reader, err := l.open(ctx, src, location)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w", config.ErrCatalogLoad, err)
	}
	defer func() { _ = reader.Close() }()

	entries, err := decode(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrCatalogLoad, err)
	}
	return entries, nil
}

func (l *CatalogLoader) open(ctx context.Context, src CatalogSource, location string) (io.ReadCloser, error) {
	if src.Mode == config.SourceModeLocal {
		return os.Open(location)
	}
	if l.Fetcher == nil {
		return nil, errors.New(config.ErrFetcherMissing)
	}
	return l.Fetcher.Fetch(ctx, location, src.WebUser, src.WebPass)
}
