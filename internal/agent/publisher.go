package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tartampluch/go-musicbot/internal/config"
)

// Post is a social post returned by a search.
type Post struct {
	ID     string `json:"id"`
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
}

// Publisher is the social platform boundary. Every method except Search is
// a side effect and counts as the single action of a cycle.
type Publisher interface {
	Post(ctx context.Context, text string, image []byte) (string, error)
	Reply(ctx context.Context, postID, text string) (string, error)
	Like(ctx context.Context, postID string) error
	Quote(ctx context.Context, postID, text string) (string, error)
	Search(ctx context.Context, query string) ([]Post, error)
}

// LogPublisher records every side effect in the log instead of sending it.
type LogPublisher struct {
	Logger *slog.Logger
	seq    atomic.Int64
}

// NewLogPublisher returns a dry-run publisher writing to the default logger.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{Logger: slog.Default().With(config.LogKeyComponent, config.CompAgent)}
}

func (p *LogPublisher) nextID() string {
	return fmt.Sprintf("%s%d", config.DryRunIDPrefix, p.seq.Add(1))
}

func (p *LogPublisher) publish(ctx context.Context, tool string, attrs ...any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := p.nextID()
	p.Logger.Info(config.MsgDryRunPublish, append([]any{config.LogKeyTool, tool, config.LogKeyID, id}, attrs...)...)
	return id, nil
}

func (p *LogPublisher) Post(ctx context.Context, text string, image []byte) (string, error) {
	if image == nil {
		return p.publish(ctx, config.ToolPostTweet, config.LogKeyValue, text)
	}
	return p.publish(ctx, config.ToolUploadAndTweet, config.LogKeyValue, text, config.LogKeySizeBytes, len(image))
}

func (p *LogPublisher) Reply(ctx context.Context, postID, text string) (string, error) {
	return p.publish(ctx, config.ToolReplyTweet, config.LogKeyTarget, postID, config.LogKeyValue, text)
}

func (p *LogPublisher) Like(ctx context.Context, postID string) error {
	_, err := p.publish(ctx, config.ToolLikeTweet, config.LogKeyTarget, postID)
	return err
}

func (p *LogPublisher) Quote(ctx context.Context, postID, text string) (string, error) {
	return p.publish(ctx, config.ToolQuoteTweet, config.LogKeyTarget, postID, config.LogKeyValue, text)
}

// Search finds nothing: there is no timeline to read in dry-run mode.
func (p *LogPublisher) Search(ctx context.Context, query string) ([]Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.Logger.Debug(config.MsgDryRunPublish, config.LogKeyTool, config.ToolSearchTweets, config.LogKeyValue, query)
	return []Post{}, nil
}
