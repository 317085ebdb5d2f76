package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
	"google.golang.org/genai"
)

var (
	ErrAgentEmpty     = errors.New(config.ErrAgentEmpty)
	ErrMaxTurns       = errors.New(config.ErrMaxTurns)
	ErrToolNotAllowed = errors.New(config.ErrToolNotAllowed)
)

// Model is the part of genai.Models used by the agent.
type Model interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiClient opens a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrAgentInit, err)
	}
	return client, nil
}

// GeminiAgent implements scheduler.Stepper with a function-calling loop.
// Only the tools of the current action are declared to the model.
type GeminiAgent struct {
	Model     Model
	ModelName string
	Tools     *Registry
	Guard     *scheduler.CycleGuard
	MaxTurns  int
}

// NewGeminiAgent wires an agent. guard must be the runner's guard.
func NewGeminiAgent(model Model, name string, tools *Registry, guard *scheduler.CycleGuard, maxTurns int) *GeminiAgent {
	return &GeminiAgent{Model: model, ModelName: name, Tools: tools, Guard: guard, MaxTurns: maxTurns}
}

// Step runs the model until it stops calling tools or MaxTurns is reached.
// The returned text lists every tool result followed by the model's last
// words. A step that performed no side effect but saw a tool fail returns
// that failure as its error.
func (a *GeminiAgent) Step(ctx context.Context, req scheduler.StepRequest) (string, error) {
	log := slog.With(
		config.LogKeyComponent, config.CompAgent,
		config.LogKeyCycle, req.CycleID,
		config.LogKeyAction, req.Action,
	)

	allowed := ToolsFor(req.Action)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Instructions, genai.RoleUser),
	}
	if decls := a.Tools.Declarations(allowed); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf(config.FormatStepPrompt, strings.ToUpper(string(req.Action))), genai.RoleUser),
	}

	var (
		trace       []string
		succeeded   []string
		lastFailure string
		final       string
		finished    bool
	)

	for turn := 1; turn <= a.maxTurns(); turn++ {
		resp, err := a.Model.GenerateContent(ctx, a.ModelName, contents, cfg)
		if err != nil {
			return strings.Join(trace, "\n"), fmt.Errorf("%s: %w", config.ErrAgentGenerate, err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return strings.Join(trace, "\n"), ErrAgentEmpty
		}

		calls := resp.FunctionCalls()
		log.Debug(config.MsgAgentTurn, config.LogKeyTurn, turn, config.LogKeyCalls, len(calls))
		if len(calls) == 0 {
			final = strings.TrimSpace(resp.Text())
			finished = true
			break
		}

		contents = append(contents, resp.Candidates[0].Content)
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			var res map[string]any
			if slices.Contains(allowed, call.Name) {
				res = a.Tools.Call(ctx, call.Name, call.Args)
			} else {
				res = failure(fmt.Errorf("%w: %s", ErrToolNotAllowed, call.Name))
			}
			line := traceLine(call.Name, res)
			trace = append(trace, line)
			if res[config.ResultKeyStatus] == config.StatusFailed {
				lastFailure, _ = res[config.ResultKeyMessage].(string)
			} else {
				succeeded = append(succeeded, line)
			}

			part := genai.NewPartFromFunctionResponse(call.Name, res)
			part.FunctionResponse.ID = call.ID
			parts = append(parts, part)
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	if final != "" {
		trace = append(trace, final)
		succeeded = append(succeeded, final)
	}
	summary := strings.Join(trace, "\n")
	acted := a.claimed()

	log.Info(config.MsgAgentDone, config.LogKeyTool, acted, config.LogKeyOutcome, finished)

	switch {
	case acted != "":
		// Failures the model recovered from are dropped so they do not read
		// as an image failure.
		return strings.Join(succeeded, "\n"), nil
	case lastFailure != "":
		return summary, errors.New(lastFailure)
	case !finished:
		return summary, ErrMaxTurns
	}
	return summary, nil
}

func (a *GeminiAgent) maxTurns() int {
	if a.MaxTurns < 1 {
		return config.DefaultAgentMaxTurns
	}
	return a.MaxTurns
}

func (a *GeminiAgent) claimed() string {
	if a.Guard == nil {
		return ""
	}
	return a.Guard.Claimed()
}

// traceLine formats one tool result for the step summary.
func traceLine(tool string, res map[string]any) string {
	msg, _ := res[config.ResultKeyMessage].(string)
	if msg == "" {
		msg, _ = res[config.ResultKeyStatus].(string)
	}
	return fmt.Sprintf(config.FormatToolTrace, tool, strings.TrimSpace(msg))
}
