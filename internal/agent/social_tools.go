package agent

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/engine"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
	"google.golang.org/genai"
)

var (
	ErrApprovalRequired = errors.New(config.ErrApprovalRequired)
	ErrTopicMismatch    = errors.New(config.ErrTopicMismatch)
	ErrTopicInvalid     = errors.New(config.ErrTopicInvalid)
	ErrHashtags         = errors.New(config.ErrHashtags)
	ErrTextRequired     = errors.New(config.ErrTextRequired)
	ErrTweetIDRequired  = errors.New(config.ErrTweetIDRequired)
	ErrQueryRequired    = errors.New(config.ErrQueryRequired)
)

// Social exposes the publisher to the model. Side effects claim the shared
// cycle guard so that a cycle performs at most one of them.
type Social struct {
	Publisher Publisher
	Verifier  *engine.Verifier
	Guard     *scheduler.CycleGuard
	Images    ImageFetcher

	// Gallery holds images produced by generate_image. Nil disables
	// posting by image_id.
	Gallery *Gallery
}

var topicKinds = map[string]engine.SubjectKind{
	config.TopicAnniversary: engine.SubjectAlbum,
	config.TopicBirthday:    engine.SubjectBirthday,
}

func validTopic(topic string) bool {
	switch topic {
	case "", config.TopicGeneral, config.TopicRecommendation, config.TopicNewRelease,
		config.TopicAnniversary, config.TopicBirthday:
		return true
	}
	return false
}

// checkTopic enforces that dated topics carry a live approval of the same kind.
func (s *Social) checkTopic(args map[string]any) error {
	topic := argString(args, config.ArgTopic)
	if !validTopic(topic) {
		return fmt.Errorf("%w: %q", ErrTopicInvalid, topic)
	}
	kind, gated := topicKinds[topic]
	if !gated {
		return nil
	}
	id := argString(args, config.ArgApprovalID)
	if id == "" {
		return ErrApprovalRequired
	}
	check := s.Verifier.VerifyApproval(id)
	if !check.CanPost {
		return fmt.Errorf("%w: %s", ErrApprovalRequired, check.Reason)
	}
	if check.SubjectKind != kind {
		return fmt.Errorf("%w: %s is a %s approval", ErrTopicMismatch, id, check.SubjectKind)
	}
	return nil
}

// hasHashtag reports a '#' directly followed by a letter or digit.
func hasHashtag(text string) bool {
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if runes[i] == '#' && (unicode.IsLetter(runes[i+1]) || unicode.IsDigit(runes[i+1])) {
			return true
		}
	}
	return false
}

func postText(args map[string]any) (string, error) {
	text := argString(args, config.ArgText)
	if text == "" {
		return "", ErrTextRequired
	}
	if hasHashtag(text) {
		return "", ErrHashtags
	}
	return text, nil
}

// act claims the guard for tool, runs fn and gives the claim back when fn
// fails so the model may correct itself within the same cycle.
func (s *Social) act(tool string, fn func() (map[string]any, error)) (map[string]any, error) {
	if err := s.Guard.Claim(tool); err != nil {
		return nil, err
	}
	res, err := fn()
	if err != nil {
		s.Guard.Release(tool)
		return nil, err
	}
	return res, nil
}

func (s *Social) post(ctx context.Context, args map[string]any) (map[string]any, error) {
	text, err := postText(args)
	if err != nil {
		return nil, err
	}
	if err := s.checkTopic(args); err != nil {
		return nil, err
	}
	return s.act(config.ToolPostTweet, func() (map[string]any, error) {
		id, err := s.Publisher.Post(ctx, text, nil)
		if err != nil {
			return nil, err
		}
		return map[string]any{config.ResultKeyID: id}, nil
	})
}

func (s *Social) uploadAndPost(ctx context.Context, args map[string]any) (map[string]any, error) {
	text, err := postText(args)
	if err != nil {
		return nil, err
	}
	if err := s.checkTopic(args); err != nil {
		return nil, err
	}
	return s.act(config.ToolUploadAndTweet, func() (map[string]any, error) {
		image, err := s.image(ctx, args)
		if err != nil {
			return nil, err
		}
		id, err := s.Publisher.Post(ctx, text, image)
		if err != nil {
			return nil, err
		}
		return map[string]any{config.ResultKeyID: id}, nil
	})
}

// image resolves the attachment: a generated image_id wins over image_url.
func (s *Social) image(ctx context.Context, args map[string]any) ([]byte, error) {
	if id := argString(args, config.ArgImageID); id != "" {
		if s.Gallery != nil {
			if data, ok := s.Gallery.Get(id); ok {
				return data, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrImageIDUnknown, id)
	}
	return s.Images.FetchImage(ctx, argString(args, config.ArgImageURL))
}

func (s *Social) reply(ctx context.Context, args map[string]any) (map[string]any, error) {
	target := argString(args, config.ArgTweetID)
	if target == "" {
		return nil, ErrTweetIDRequired
	}
	text, err := postText(args)
	if err != nil {
		return nil, err
	}
	if err := s.checkTopic(args); err != nil {
		return nil, err
	}
	return s.act(config.ToolReplyTweet, func() (map[string]any, error) {
		id, err := s.Publisher.Reply(ctx, target, text)
		if err != nil {
			return nil, err
		}
		return map[string]any{config.ResultKeyID: id}, nil
	})
}

func (s *Social) quote(ctx context.Context, args map[string]any) (map[string]any, error) {
	target := argString(args, config.ArgTweetID)
	if target == "" {
		return nil, ErrTweetIDRequired
	}
	text, err := postText(args)
	if err != nil {
		return nil, err
	}
	if err := s.checkTopic(args); err != nil {
		return nil, err
	}
	return s.act(config.ToolQuoteTweet, func() (map[string]any, error) {
		id, err := s.Publisher.Quote(ctx, target, text)
		if err != nil {
			return nil, err
		}
		return map[string]any{config.ResultKeyID: id}, nil
	})
}

func (s *Social) like(ctx context.Context, args map[string]any) (map[string]any, error) {
	target := argString(args, config.ArgTweetID)
	if target == "" {
		return nil, ErrTweetIDRequired
	}
	return s.act(config.ToolLikeTweet, func() (map[string]any, error) {
		if err := s.Publisher.Like(ctx, target); err != nil {
			return nil, err
		}
		return map[string]any{config.ResultKeyID: target}, nil
	})
}

// search is read-only and never claims the guard.
func (s *Social) search(ctx context.Context, args map[string]any) (map[string]any, error) {
	query := argString(args, config.ArgQuery)
	if query == "" {
		return nil, ErrQueryRequired
	}
	posts, err := s.Publisher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(posts))
	for _, p := range posts {
		results = append(results, map[string]any{
			config.ResultKeyID:     p.ID,
			config.ResultKeyAuthor: p.Author,
			config.ArgText:         p.Text,
		})
	}
	return map[string]any{config.ResultKeyResults: results}, nil
}

func topicParams(props map[string]*genai.Schema) map[string]*genai.Schema {
	props[config.ArgTopic] = &genai.Schema{
		Type:        genai.TypeString,
		Description: "What the post is about. anniversary and birthday require approval_id.",
		Enum: []string{
			config.TopicGeneral, config.TopicRecommendation, config.TopicNewRelease,
			config.TopicAnniversary, config.TopicBirthday,
		},
	}
	props[config.ArgApprovalID] = stringParam("Approval id for anniversary or birthday posts")
	return props
}

// RegisterSocial exposes the social side effects to the model.
func RegisterSocial(r *Registry, s *Social) {
	textParam := stringParam("Post text, emojis welcome, no hashtags")
	idParam := stringParam("Identifier of the target post")

	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolPostTweet,
			Description: "Publish a text-only post.",
			Parameters: objectSchema(topicParams(map[string]*genai.Schema{
				config.ArgText: textParam,
			}), config.ArgText),
		},
		Handler: s.post,
	})
	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolUploadAndTweet,
			Description: "Publish the post text with an image, either a generated image_id or a downloadable image_url.",
			Parameters: objectSchema(topicParams(map[string]*genai.Schema{
				config.ArgText:     textParam,
				config.ArgImageID:  stringParam("Id returned by generate_image"),
				config.ArgImageURL: stringParam("Direct http(s) URL of the image, when no image_id is given"),
			}), config.ArgText),
		},
		Handler: s.uploadAndPost,
	})
	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolReplyTweet,
			Description: "Reply to an existing post.",
			Parameters: objectSchema(topicParams(map[string]*genai.Schema{
				config.ArgTweetID: idParam,
				config.ArgText:    textParam,
			}), config.ArgTweetID, config.ArgText),
		},
		Handler: s.reply,
	})
	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolQuoteTweet,
			Description: "Quote an existing post with a comment.",
			Parameters: objectSchema(topicParams(map[string]*genai.Schema{
				config.ArgTweetID: idParam,
				config.ArgText:    textParam,
			}), config.ArgTweetID, config.ArgText),
		},
		Handler: s.quote,
	})
	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolLikeTweet,
			Description: "Like an existing post.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgTweetID: idParam,
			}, config.ArgTweetID),
		},
		Handler: s.like,
	})
	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolSearchTweets,
			Description: "Search recent posts. Read-only.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgQuery: stringParam("Search query"),
			}, config.ArgQuery),
		},
		Handler: s.search,
	})
}
