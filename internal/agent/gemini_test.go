package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-musicbot/internal/agent"
	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
	"google.golang.org/genai"
)

// scriptedModel replays one response per turn and records what it saw.
type scriptedModel struct {
	responses []*genai.GenerateContentResponse
	err       error
	configs   []*genai.GenerateContentConfig
	contents  [][]*genai.Content

	// next, when set, answers once after responses run out.
	next func(contents []*genai.Content) *genai.GenerateContentResponse
}

func (m *scriptedModel) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.configs = append(m.configs, cfg)
	m.contents = append(m.contents, contents)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		if next := m.next; next != nil {
			m.next = nil
			return next(contents), nil
		}
		return textResponse("nothing left to say"), nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func callResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{ID: "c-" + name, Name: name, Args: args}},
		}},
	}}}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: genai.NewContentFromText(text, genai.RoleModel),
	}}}
}

func newAgent(t *testing.T, model *scriptedModel, maxTurns int) (*agent.GeminiAgent, *socialFixture) {
	t.Helper()
	f := newSocial(t)
	agent.RegisterVerification(f.reg, f.verifier)
	return agent.NewGeminiAgent(model, config.DefaultAgentModel, f.reg, f.guard, maxTurns), f
}

func declared(cfg *genai.GenerateContentConfig) []string {
	var names []string
	for _, tool := range cfg.Tools {
		for _, d := range tool.FunctionDeclarations {
			names = append(names, d.Name)
		}
	}
	return names
}

func TestGeminiAgent_VerificationTurn(t *testing.T) {
	model := &scriptedModel{responses: []*genai.GenerateContentResponse{
		callResponse(config.ToolRequestAnniversary, map[string]any{
			config.ArgReleaseDate: "1973-03-01",
			config.ArgAlbumName:   "The Dark Side of the Moon",
			config.ArgArtistName:  "Pink Floyd",
		}),
	}}
	a, f := newAgent(t, model, 4)

	first, err := a.Step(context.Background(), scheduler.StepRequest{
		CycleID:      "c1",
		Action:       scheduler.ActionPostNoImage,
		Instructions: "narrowed",
	})
	require.NoError(t, err)
	assert.Contains(t, first, config.ToolRequestAnniversary+": "+config.StatusDone)
	assert.Contains(t, first, "nothing left to say")
	assert.Equal(t, 1, f.verifier.Ledger.Len())

	require.NotEmpty(t, model.configs)
	assert.Equal(t, "narrowed", model.configs[0].SystemInstruction.Parts[0].Text)
	names := declared(model.configs[0])
	assert.Contains(t, names, config.ToolPostTweet)
	assert.NotContains(t, names, config.ToolUploadAndTweet)
	assert.NotContains(t, names, config.ToolLikeTweet)
}

func TestGeminiAgent_PostsOnce(t *testing.T) {
	model := &scriptedModel{responses: []*genai.GenerateContentResponse{
		callResponse(config.ToolPostTweet, map[string]any{config.ArgText: "First"}),
		callResponse(config.ToolPostTweet, map[string]any{config.ArgText: "Second"}),
		textResponse("done"),
	}}
	a, f := newAgent(t, model, 5)
	f.pub.On("Post", mock.Anything, "First", []byte(nil)).Return("1", nil).Once()

	out, err := a.Step(context.Background(), scheduler.StepRequest{Action: scheduler.ActionRecommend})
	require.NoError(t, err)
	assert.Contains(t, out, config.ToolPostTweet+": "+config.StatusDone)
	assert.NotContains(t, out, config.ErrActionClaimed, "recovered failures are not reported")
	f.pub.AssertNumberOfCalls(t, "Post", 1)

	// The second call was answered with a refusal the model could read.
	last := model.contents[len(model.contents)-1]
	resp := last[len(last)-1].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "c-"+config.ToolPostTweet, resp.ID)
	assert.Equal(t, config.StatusFailed, resp.Response[config.ResultKeyStatus])
}

func TestGeminiAgent_ImageFailureSurfaces(t *testing.T) {
	model := &scriptedModel{responses: []*genai.GenerateContentResponse{
		callResponse(config.ToolUploadAndTweet, map[string]any{
			config.ArgText:     "Techno bunker vibes",
			config.ArgImageURL: "https://img.example/x.jpg",
		}),
		textResponse("I could not attach the image."),
	}}
	a, f := newAgent(t, model, 4)
	f.images.On("FetchImage", mock.Anything, "https://img.example/x.jpg").Return(nil, agent.ErrImageForbidden).Once()

	out, err := a.Step(context.Background(), scheduler.StepRequest{Action: scheduler.ActionPost})
	require.Error(t, err)
	assert.True(t, scheduler.IsImageFailure(out, err))
	assert.Empty(t, f.guard.Claimed())
}

func TestGeminiAgent_ToolNotAllowed(t *testing.T) {
	model := &scriptedModel{responses: []*genai.GenerateContentResponse{
		callResponse(config.ToolLikeTweet, map[string]any{config.ArgTweetID: "1"}),
		textResponse("ok"),
	}}
	a, f := newAgent(t, model, 4)

	_, err := a.Step(context.Background(), scheduler.StepRequest{Action: scheduler.ActionSearch})
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrToolNotAllowed)
	f.pub.AssertNotCalled(t, "Like", mock.Anything, mock.Anything)
}

func TestGeminiAgent_SearchOnly(t *testing.T) {
	model := &scriptedModel{responses: []*genai.GenerateContentResponse{
		callResponse(config.ToolSearchTweets, map[string]any{config.ArgQuery: "ambient"}),
		textResponse("Found nothing worth sharing."),
	}}
	a, f := newAgent(t, model, 4)
	f.pub.On("Search", mock.Anything, "ambient").Return([]agent.Post{}, nil).Once()

	out, err := a.Step(context.Background(), scheduler.StepRequest{Action: scheduler.ActionSearch})
	require.NoError(t, err)
	assert.Contains(t, out, "Found nothing worth sharing.")
}

func TestGeminiAgent_MaxTurns(t *testing.T) {
	model := &scriptedModel{responses: []*genai.GenerateContentResponse{
		callResponse(config.ToolSearchTweets, map[string]any{config.ArgQuery: "a"}),
		callResponse(config.ToolSearchTweets, map[string]any{config.ArgQuery: "b"}),
	}}
	a, f := newAgent(t, model, 2)
	f.pub.On("Search", mock.Anything, mock.Anything).Return([]agent.Post{}, nil)

	_, err := a.Step(context.Background(), scheduler.StepRequest{Action: scheduler.ActionSearch})
	assert.ErrorIs(t, err, agent.ErrMaxTurns)
	assert.Len(t, model.configs, 2)
}

func TestGeminiAgent_ModelErrors(t *testing.T) {
	a, _ := newAgent(t, &scriptedModel{err: errors.New("quota")}, 3)
	_, err := a.Step(context.Background(), scheduler.StepRequest{Action: scheduler.ActionLike})
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrAgentGenerate)

	empty := &scriptedModel{responses: []*genai.GenerateContentResponse{{}}}
	a, _ = newAgent(t, empty, 3)
	_, err = a.Step(context.Background(), scheduler.StepRequest{Action: scheduler.ActionLike})
	assert.ErrorIs(t, err, agent.ErrAgentEmpty)
}
