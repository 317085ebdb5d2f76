package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
	"google.golang.org/genai"
)

// Handler executes a tool call. A returned error is reported to the model as
// a failed result, never as a Go error of the step.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool pairs a function declaration with its implementation.
type Tool struct {
	Decl    *genai.FunctionDeclaration
	Handler Handler
}

// Registry holds the tools the agent may call.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces t.
func (r *Registry) Register(t Tool) {
	r.tools[t.Decl.Name] = t
}

// Names lists the registered tools, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the declarations of names, skipping unknown ones.
func (r *Registry) Declarations(names []string) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			decls = append(decls, t.Decl)
		}
	}
	return decls
}

// Call runs a tool and always returns a result map carrying a status key.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) map[string]any {
	log := slog.With(config.LogKeyComponent, config.CompTools, config.LogKeyTool, name)

	t, ok := r.tools[name]
	if !ok {
		log.Warn(config.MsgToolRefused, config.LogKeyReason, config.ErrUnknownTool)
		return failure(fmt.Errorf("%s: %s", config.ErrUnknownTool, name))
	}

	log.Debug(config.MsgToolCall)
	res, err := t.Handler(ctx, args)
	if err != nil {
		log.Info(config.MsgToolRefused, config.LogKeyReason, err.Error())
		return failure(err)
	}
	if res == nil {
		res = map[string]any{}
	}
	if _, ok := res[config.ResultKeyStatus]; !ok {
		res[config.ResultKeyStatus] = config.StatusDone
	}
	return res
}

func failure(err error) map[string]any {
	return map[string]any{
		config.ResultKeyStatus:  config.StatusFailed,
		config.ResultKeyMessage: err.Error(),
	}
}

var verificationTools = []string{
	config.ToolRequestAnniversary,
	config.ToolRequestBirthday,
	config.ToolVerifyApproval,
	config.ToolCheckDate,
	config.ToolCheckBatch,
}

// ToolsFor returns the tool names exposed to the model for one action.
// Verification tools come with every action that can publish text. Names
// missing from the registry are skipped when declarations are built.
func ToolsFor(action scheduler.ActionKind) []string {
	var names []string
	switch action {
	case scheduler.ActionPost:
		names = append(names, config.ToolGenerateImage, config.ToolUploadAndTweet)
	case scheduler.ActionPostNoImage:
		names = append(names, config.ToolPostTweet)
	case scheduler.ActionRecommend:
		names = append(names, config.ToolSearchVideos, config.ToolPostTweet)
	case scheduler.ActionNewReleases:
		names = append(names, config.ToolNewVideos, config.ToolSearchVideos, config.ToolPostTweet)
	case scheduler.ActionReply:
		names = append(names, config.ToolSearchTweets, config.ToolReplyTweet)
	case scheduler.ActionQuote:
		names = append(names, config.ToolSearchTweets, config.ToolQuoteTweet)
	case scheduler.ActionLike:
		return []string{config.ToolSearchTweets, config.ToolLikeTweet}
	case scheduler.ActionSearch:
		return []string{config.ToolSearchTweets}
	default:
		return nil
	}
	return append(names, verificationTools...)
}

// ---------------------------------------------------------------------------
// Argument and schema helpers
// ---------------------------------------------------------------------------

// argString reads a string argument. Numbers are accepted for ids since
// models sometimes send them unquoted.
func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", v))
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// toResult converts a JSON-tagged struct to the map form genai expects.
func toResult(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func stringParam(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func objectSchema(props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

var errToolArgs = errors.New(config.ErrToolArgs)
