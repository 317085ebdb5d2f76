package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-musicbot/internal/agent"
	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
	"google.golang.org/genai"
)

type fakeImageModel struct {
	resp   *genai.GenerateImagesResponse
	err    error
	model  string
	prompt string
	cfg    *genai.GenerateImagesConfig
}

func (m *fakeImageModel) GenerateImages(_ context.Context, model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	m.model, m.prompt, m.cfg = model, prompt, cfg
	return m.resp, m.err
}

func TestGeminiImager(t *testing.T) {
	png := []byte("\x89PNG fake bytes")

	t.Run("FirstImageWins", func(t *testing.T) {
		m := &fakeImageModel{resp: &genai.GenerateImagesResponse{GeneratedImages: []*genai.GeneratedImage{
			{Image: &genai.Image{}},
			{Image: &genai.Image{ImageBytes: png, MIMEType: "image/png"}},
		}}}
		g := &agent.GeminiImager{Model: m, ModelName: config.DefaultImageModel}

		data, err := g.GenerateImage(context.Background(), "a prism on vinyl")
		require.NoError(t, err)
		assert.Equal(t, png, data)
		assert.Equal(t, config.DefaultImageModel, m.model)
		assert.Equal(t, "a prism on vinyl", m.prompt)
		assert.Equal(t, config.ImageAspectRatio, m.cfg.AspectRatio)
	})

	t.Run("Empty", func(t *testing.T) {
		g := &agent.GeminiImager{Model: &fakeImageModel{resp: &genai.GenerateImagesResponse{}}}
		_, err := g.GenerateImage(context.Background(), "x")
		assert.ErrorIs(t, err, agent.ErrImageEmpty)
		assert.True(t, scheduler.IsImageFailure("", err))
	})

	t.Run("ModelError", func(t *testing.T) {
		g := &agent.GeminiImager{Model: &fakeImageModel{err: errors.New("safety filter")}}
		_, err := g.GenerateImage(context.Background(), "x")
		assert.ErrorIs(t, err, agent.ErrImageGenerate)
		assert.Contains(t, err.Error(), "safety filter")
		assert.True(t, scheduler.IsImageFailure("", err))
	})
}

func TestGallery_EvictsOldest(t *testing.T) {
	g := &agent.Gallery{Limit: 2}
	a := g.Add([]byte("a"))
	b := g.Add([]byte("b"))
	c := g.Add([]byte("c"))

	assert.True(t, strings.HasPrefix(a, config.GeneratedImagePrefix))
	assert.NotEqual(t, a, b)

	_, ok := g.Get(a)
	assert.False(t, ok, "oldest image dropped")
	data, ok := g.Get(b)
	require.True(t, ok)
	assert.Equal(t, []byte("b"), data)
	_, ok = g.Get(c)
	assert.True(t, ok)
}

func TestGenerateImage_ThenUpload(t *testing.T) {
	f := newSocial(t)
	img := []byte("generated cover")
	f.gen.On("GenerateImage", mock.Anything, "neon synthesizers").Return(img, nil).Once()

	res := f.call(config.ToolGenerateImage, map[string]any{config.ArgPrompt: "neon synthesizers"})
	require.Equal(t, config.StatusDone, res[config.ResultKeyStatus])
	id, _ := res[config.ResultKeyImageID].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, len(img), res[config.ResultKeySize])
	assert.Empty(t, f.guard.Claimed(), "generation is not a side effect")

	f.pub.On("Post", mock.Anything, "Synthwave Sunday 🌆", img).Return("21", nil).Once()
	res = f.call(config.ToolUploadAndTweet, map[string]any{
		config.ArgText:    "Synthwave Sunday 🌆",
		config.ArgImageID: id,
	})
	assert.Equal(t, "21", res[config.ResultKeyID])
	assert.Equal(t, config.ToolUploadAndTweet, f.guard.Claimed())
	f.images.AssertNotCalled(t, "FetchImage", mock.Anything, mock.Anything)
	f.pub.AssertExpectations(t)
}

func TestGenerateImage_Failures(t *testing.T) {
	f := newSocial(t)
	failed(t, f.call(config.ToolGenerateImage, map[string]any{}), config.ErrPromptRequired)

	f.gen.On("GenerateImage", mock.Anything, "blocked").Return(nil, agent.ErrImageEmpty).Once()
	res := f.call(config.ToolGenerateImage, map[string]any{config.ArgPrompt: "blocked"})
	failed(t, res, config.ErrImageEmpty)
	assert.True(t, scheduler.IsImageFailure(res[config.ResultKeyMessage].(string), nil))
}

func TestUploadImageAndTweet_UnknownImageID(t *testing.T) {
	f := newSocial(t)

	res := f.call(config.ToolUploadAndTweet, map[string]any{
		config.ArgText:    "Jazz night",
		config.ArgImageID: "img-made-up",
	})
	failed(t, res, config.ErrImageIDUnknown)
	assert.True(t, scheduler.IsImageFailure(res[config.ResultKeyMessage].(string), nil))
	assert.Empty(t, f.guard.Claimed())
	f.pub.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything)
}

func TestGeminiAgent_GeneratesAndPosts(t *testing.T) {
	model := &scriptedModel{responses: []*genai.GenerateContentResponse{
		callResponse(config.ToolGenerateImage, map[string]any{config.ArgPrompt: "vintage turntable"}),
	}}
	a, f := newAgent(t, model, 4)
	img := []byte("turntable")
	f.gen.On("GenerateImage", mock.Anything, "vintage turntable").Return(img, nil).Once()

	// The second turn needs the id issued by the first one.
	model.next = func(contents []*genai.Content) *genai.GenerateContentResponse {
		resp := contents[len(contents)-1].Parts[0].FunctionResponse
		id, _ := resp.Response[config.ResultKeyImageID].(string)
		return callResponse(config.ToolUploadAndTweet, map[string]any{
			config.ArgText:    "Spin it again 🎶",
			config.ArgImageID: id,
		})
	}
	f.pub.On("Post", mock.Anything, "Spin it again 🎶", img).Return("99", nil).Once()

	out, err := a.Step(context.Background(), scheduler.StepRequest{Action: scheduler.ActionPost})
	require.NoError(t, err)
	assert.Contains(t, out, config.ToolUploadAndTweet+": "+config.StatusDone)
	assert.False(t, scheduler.IsImageFailure(out, err))

	names := declared(model.configs[0])
	assert.Contains(t, names, config.ToolGenerateImage)
	assert.Contains(t, names, config.ToolUploadAndTweet)
	f.pub.AssertExpectations(t)
}
