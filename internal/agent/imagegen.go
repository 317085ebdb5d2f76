package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tartampluch/go-musicbot/internal/config"
	"google.golang.org/genai"
)

// Image generation failures carry an image failure marker as well, so a
// failed generation leads to a regeneration attempt like a refused URL.
var (
	ErrImageGenerate  = errors.New(config.ErrImageGenerate)
	ErrImageEmpty     = errors.New(config.ErrImageEmpty)
	ErrImageIDUnknown = errors.New(config.ErrImageIDUnknown)
	ErrPromptRequired = errors.New(config.ErrPromptRequired)
)

// ImageGenerator turns a text prompt into encoded image bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ImageModel is the part of genai.Models used for image generation.
type ImageModel interface {
	GenerateImages(ctx context.Context, model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// GeminiImager generates post images with an Imagen model.
type GeminiImager struct {
	Model     ImageModel
	ModelName string
}

func (g *GeminiImager) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := g.Model.GenerateImages(ctx, g.ModelName, prompt, &genai.GenerateImagesConfig{
		AspectRatio: config.ImageAspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageGenerate, err)
	}
	if resp != nil {
		for _, img := range resp.GeneratedImages {
			if img != nil && img.Image != nil && len(img.Image.ImageBytes) > 0 {
				return img.Image.ImageBytes, nil
			}
		}
	}
	return nil, ErrImageEmpty
}

// Gallery keeps the latest generated images addressable by id until a
// posting tool picks one up. The oldest image is dropped past Limit.
type Gallery struct {
	// Limit is the number of images kept. Zero means config.GalleryLimit.
	Limit int

	mu     sync.Mutex
	images map[string][]byte
	order  []string
}

// Add stores data and returns its id.
func (g *Gallery) Add(data []byte) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.images == nil {
		g.images = make(map[string][]byte)
	}
	limit := g.Limit
	if limit <= 0 {
		limit = config.GalleryLimit
	}
	for len(g.order) >= limit {
		delete(g.images, g.order[0])
		g.order = g.order[1:]
	}

	id := config.GeneratedImagePrefix + uuid.NewString()
	g.images[id] = data
	g.order = append(g.order, id)
	return id
}

// Get returns the image stored under id.
func (g *Gallery) Get(id string) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.images[id]
	return data, ok
}

// ImageTools exposes image generation to the model. Generation is not a
// side effect and never claims the cycle guard.
type ImageTools struct {
	Generator ImageGenerator
	Gallery   *Gallery
}

func (t *ImageTools) generate(ctx context.Context, args map[string]any) (map[string]any, error) {
	prompt := argString(args, config.ArgPrompt)
	if prompt == "" {
		return nil, ErrPromptRequired
	}
	data, err := t.Generator.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, err
	}
	id := t.Gallery.Add(data)

	slog.Info(config.MsgImageGenerated,
		config.LogKeyComponent, config.CompImages,
		config.LogKeyID, id,
		config.LogKeySizeBytes, len(data))

	return map[string]any{
		config.ResultKeyImageID: id,
		config.ResultKeySize:    len(data),
	}, nil
}

// RegisterImages adds generate_image to r.
func RegisterImages(r *Registry, t *ImageTools) {
	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolGenerateImage,
			Description: "Generate an image from a prompt. Returns an image_id to pass to upload_image_and_tweet.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgPrompt: stringParam("Visual description of the image, no text in the picture"),
			}, config.ArgPrompt),
		},
		Handler: t.generate,
	})
}
