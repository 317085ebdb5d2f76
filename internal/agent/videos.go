package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/engine"
	"google.golang.org/genai"
)

var (
	ErrVideoRequest = errors.New(config.ErrVideoRequest)
	ErrVideoStatus  = errors.New(config.ErrVideoStatus)
	ErrVideoDecode  = errors.New(config.ErrVideoDecode)
)

// Video is a music video offered to the model for recommendation posts.
type Video struct {
	ID           string    `json:"videoId"`
	Title        string    `json:"title"`
	Channel      string    `json:"channelTitle"`
	Description  string    `json:"description,omitempty"`
	PublishedAt  time.Time `json:"publishedAt"`
	ViewCount    string    `json:"viewCount,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	URL          string    `json:"videoUrl"`
}

// VideoCatalog finds music videos.
type VideoCatalog interface {
	SearchVideos(ctx context.Context, query string, max int) ([]Video, error)
	PopularVideos(ctx context.Context, region string, max int) ([]Video, error)
}

// YouTubeCatalog queries the YouTube Data API restricted to the music
// category.
type YouTubeCatalog struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
	Clock   engine.Clock
}

// NewYouTubeCatalog returns a catalog on the public API endpoint.
func NewYouTubeCatalog(apiKey string, clock engine.Clock) *YouTubeCatalog {
	return &YouTubeCatalog{
		Client:  &http.Client{Timeout: config.HTTPTimeout},
		BaseURL: config.YouTubeBaseURL,
		APIKey:  apiKey,
		Clock:   clock,
	}
}

type ytSnippet struct {
	Title        string    `json:"title"`
	ChannelTitle string    `json:"channelTitle"`
	Description  string    `json:"description"`
	PublishedAt  time.Time `json:"publishedAt"`
	Thumbnails   map[string]struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func (s ytSnippet) thumbnail() string {
	for _, size := range []string{"high", "default"} {
		if t, ok := s.Thumbnails[size]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet ytSnippet `json:"snippet"`
	} `json:"items"`
}

type ytVideosResponse struct {
	Items []struct {
		ID         string    `json:"id"`
		Snippet    ytSnippet `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func newVideo(id string, s ytSnippet, views string) Video {
	return Video{
		ID:           id,
		Title:        s.Title,
		Channel:      s.ChannelTitle,
		Description:  s.Description,
		PublishedAt:  s.PublishedAt,
		ViewCount:    views,
		ThumbnailURL: s.thumbnail(),
		URL:          fmt.Sprintf(config.FormatYouTubeWatch, id),
	}
}

// SearchVideos returns music videos matching query.
func (c *YouTubeCatalog) SearchVideos(ctx context.Context, query string, max int) ([]Video, error) {
	params := url.Values{
		"part":            {config.YouTubePartSnippet},
		"q":               {query},
		"type":            {config.YouTubeTypeVideo},
		"videoCategoryId": {config.YouTubeMusicCategory},
		"maxResults":      {strconv.Itoa(max)},
	}
	var resp ytSearchResponse
	if err := c.get(ctx, config.YouTubeSearchPath, params, &resp); err != nil {
		return nil, err
	}
	videos := make([]Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		videos = append(videos, newVideo(item.ID.VideoID, item.Snippet, ""))
	}
	return videos, nil
}

// PopularVideos returns the music chart of region, keeping videos published
// within config.NewReleaseWindow. When none is that recent the whole chart
// is returned.
func (c *YouTubeCatalog) PopularVideos(ctx context.Context, region string, max int) ([]Video, error) {
	params := url.Values{
		"part":            {config.YouTubePartStats},
		"chart":           {config.YouTubeChartPopular},
		"videoCategoryId": {config.YouTubeMusicCategory},
		"regionCode":      {region},
		"maxResults":      {strconv.Itoa(max)},
	}
	var resp ytVideosResponse
	if err := c.get(ctx, config.YouTubeVideosPath, params, &resp); err != nil {
		return nil, err
	}

	cutoff := c.Clock.Now().Add(-config.NewReleaseWindow)
	var all, recent []Video
	for _, item := range resp.Items {
		v := newVideo(item.ID, item.Snippet, item.Statistics.ViewCount)
		all = append(all, v)
		if !v.PublishedAt.Before(cutoff) {
			recent = append(recent, v)
		}
	}
	if len(recent) > 0 {
		return recent, nil
	}
	if all == nil {
		all = []Video{}
	}
	return all, nil
}

func (c *YouTubeCatalog) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.APIKey)

	slog.Debug(config.MsgVideoSearch,
		config.LogKeyComponent, config.CompVideos,
		config.LogKeyURL, c.BaseURL+path,
		config.LogKeyQuery, params.Get("q"),
		config.LogKeyRegion, params.Get("regionCode"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVideoRequest, err)
	}
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)
	req.Header.Set(config.HeaderAccept, config.MimeJSON)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVideoRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrVideoStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrVideoDecode, err)
	}
	return nil
}

// VideoTools exposes a VideoCatalog to the model. Both tools are read-only.
type VideoTools struct {
	Catalog    VideoCatalog
	Region     string
	MaxResults int
}

func (t *VideoTools) limit(args map[string]any) int {
	n := t.MaxResults
	if n <= 0 {
		n = config.DefaultVideoResults
	}
	if v, err := strconv.Atoi(argString(args, config.ArgMaxResults)); err == nil && v > 0 {
		n = v
	}
	return min(n, config.MaxVideoResults)
}

func (t *VideoTools) search(ctx context.Context, args map[string]any) (map[string]any, error) {
	query := argString(args, config.ArgQuery)
	if query == "" {
		return nil, ErrQueryRequired
	}
	videos, err := t.Catalog.SearchVideos(ctx, query, t.limit(args))
	if err != nil {
		return nil, err
	}
	return map[string]any{config.ResultKeyVideos: videoResults(videos)}, nil
}

func (t *VideoTools) newReleases(ctx context.Context, args map[string]any) (map[string]any, error) {
	region := argString(args, config.ArgRegion)
	if region == "" {
		region = t.Region
	}
	if region == "" {
		region = config.DefaultVideoRegion
	}
	videos, err := t.Catalog.PopularVideos(ctx, region, t.limit(args))
	if err != nil {
		return nil, err
	}
	return map[string]any{config.ResultKeyVideos: videoResults(videos)}, nil
}

func videoResults(videos []Video) []any {
	out := make([]any, 0, len(videos))
	for _, v := range videos {
		m, err := toResult(v)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// RegisterVideos adds the video tools to r.
func RegisterVideos(r *Registry, t *VideoTools) {
	maxParam := stringParam("Maximum number of videos to return")

	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolSearchVideos,
			Description: "Search music videos by genre, artist or theme. Read-only.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgQuery:      stringParam("Genre, artist or theme to search for"),
				config.ArgMaxResults: maxParam,
			}, config.ArgQuery),
		},
		Handler: t.search,
	})
	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolNewVideos,
			Description: "List popular music videos released recently. Read-only.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgRegion:     stringParam("Two-letter region code"),
				config.ArgMaxResults: maxParam,
			}),
		},
		Handler: t.newReleases,
	})
}
