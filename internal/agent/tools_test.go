package agent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-musicbot/internal/agent"
	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/engine"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
	"google.golang.org/genai"
)

// march1 is the release day of The Dark Side of the Moon.
var march1 = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func newVerifier() *engine.Verifier {
	clock := engine.NewFakeClock(march1)
	v := engine.NewVerifier(clock, engine.NewLedger(clock))
	v.Location = time.UTC
	return v
}

func TestRegistry_Call(t *testing.T) {
	r := agent.NewRegistry()
	r.Register(agent.Tool{
		Decl: &genai.FunctionDeclaration{Name: "echo"},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"echo": args["v"]}, nil
		},
	})
	r.Register(agent.Tool{
		Decl: &genai.FunctionDeclaration{Name: "broken"},
		Handler: func(context.Context, map[string]any) (map[string]any, error) {
			return nil, errors.New("boom")
		},
	})

	ok := r.Call(context.Background(), "echo", map[string]any{"v": "x"})
	assert.Equal(t, config.StatusDone, ok[config.ResultKeyStatus])
	assert.Equal(t, "x", ok["echo"])

	bad := r.Call(context.Background(), "broken", nil)
	assert.Equal(t, config.StatusFailed, bad[config.ResultKeyStatus])
	assert.Equal(t, "boom", bad[config.ResultKeyMessage])

	missing := r.Call(context.Background(), "nope", nil)
	assert.Equal(t, config.StatusFailed, missing[config.ResultKeyStatus])
	assert.Contains(t, missing[config.ResultKeyMessage], config.ErrUnknownTool)

	assert.Equal(t, []string{"broken", "echo"}, r.Names())
	assert.Len(t, r.Declarations([]string{"echo", "nope"}), 1)
}

func TestToolsFor(t *testing.T) {
	tests := []struct {
		action  scheduler.ActionKind
		has     []string
		hasNot  []string
		verifyN int
	}{
		{scheduler.ActionPost, []string{config.ToolGenerateImage, config.ToolUploadAndTweet}, []string{config.ToolPostTweet, config.ToolLikeTweet}, 5},
		{scheduler.ActionPostNoImage, []string{config.ToolPostTweet}, []string{config.ToolUploadAndTweet, config.ToolGenerateImage}, 5},
		{scheduler.ActionRecommend, []string{config.ToolSearchVideos, config.ToolPostTweet}, []string{config.ToolReplyTweet, config.ToolNewVideos}, 5},
		{scheduler.ActionNewReleases, []string{config.ToolNewVideos, config.ToolSearchVideos, config.ToolPostTweet}, []string{config.ToolQuoteTweet}, 5},
		{scheduler.ActionReply, []string{config.ToolSearchTweets, config.ToolReplyTweet}, []string{config.ToolPostTweet}, 5},
		{scheduler.ActionQuote, []string{config.ToolSearchTweets, config.ToolQuoteTweet}, []string{config.ToolLikeTweet}, 5},
		{scheduler.ActionLike, []string{config.ToolLikeTweet}, []string{config.ToolPostTweet, config.ToolRequestAnniversary}, 0},
		{scheduler.ActionSearch, []string{config.ToolSearchTweets}, []string{config.ToolLikeTweet}, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			names := agent.ToolsFor(tt.action)
			for _, n := range tt.has {
				assert.Contains(t, names, n)
			}
			for _, n := range tt.hasNot {
				assert.NotContains(t, names, n)
			}
			verify := 0
			for _, n := range names {
				switch n {
				case config.ToolRequestAnniversary, config.ToolRequestBirthday, config.ToolVerifyApproval,
					config.ToolCheckDate, config.ToolCheckBatch:
					verify++
				}
			}
			assert.Equal(t, tt.verifyN, verify)
		})
	}

	assert.Nil(t, agent.ToolsFor("dance"))
}

func TestVerificationTools(t *testing.T) {
	r := agent.NewRegistry()
	agent.RegisterVerification(r, newVerifier())
	ctx := context.Background()

	t.Run("anniversary approved", func(t *testing.T) {
		res := r.Call(ctx, config.ToolRequestAnniversary, map[string]any{
			config.ArgReleaseDate: "March 1, 1973",
			config.ArgAlbumName:   "The Dark Side of the Moon",
			config.ArgArtistName:  "Pink Floyd",
		})
		assert.Equal(t, true, res["approved"])
		assert.Equal(t, float64(52), res["yearsSince"])
		assert.Equal(t, "52nd", res["ordinal"])
		id, _ := res["approvalId"].(string)
		require.NotEmpty(t, id)

		check := r.Call(ctx, config.ToolVerifyApproval, map[string]any{config.ArgApprovalID: id})
		assert.Equal(t, true, check["canPost"])
		assert.Equal(t, "album", check["subjectKind"])
	})

	t.Run("birthday denied", func(t *testing.T) {
		res := r.Call(ctx, config.ToolRequestBirthday, map[string]any{
			config.ArgBirthDate:    "1958-08-29",
			config.ArgMusicianName: "Michael Jackson",
		})
		assert.Equal(t, false, res["approved"])
		assert.Equal(t, config.ReasonNotMatch, res["reason"])
		assert.NotContains(t, res, "approvalId")
	})

	t.Run("check date", func(t *testing.T) {
		res := r.Call(ctx, config.ToolCheckDate, map[string]any{config.ArgDate: "2000-03-01"})
		assert.Equal(t, true, res["isMatch"])
		assert.Equal(t, float64(25), res["yearsSince"])
	})

	t.Run("batch from string", func(t *testing.T) {
		res := r.Call(ctx, config.ToolCheckBatch, map[string]any{
			config.ArgAlbums: `[{"name":"DSOTM","artist":"Pink Floyd","releaseDate":"1973-03-01"},{"name":"Thriller","artist":"MJ","releaseDate":"1982-11-30"}]`,
		})
		assert.Equal(t, config.StatusDone, res[config.ResultKeyStatus])
		assert.Equal(t, float64(2), res["total"])
		assert.Equal(t, float64(1), res["matchCount"])
	})

	t.Run("batch from array", func(t *testing.T) {
		res := r.Call(ctx, config.ToolCheckBatch, map[string]any{
			config.ArgAlbums: []any{map[string]any{"name": "X", "artist": "Y", "releaseDate": "1990-03-01"}},
		})
		assert.Equal(t, float64(1), res["matchCount"])
	})

	t.Run("batch invalid", func(t *testing.T) {
		for _, raw := range []any{nil, "not json", "[]"} {
			res := r.Call(ctx, config.ToolCheckBatch, map[string]any{config.ArgAlbums: raw})
			assert.Equal(t, config.StatusFailed, res[config.ResultKeyStatus], "albums=%v", raw)
		}
	})
}
