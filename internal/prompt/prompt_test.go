package prompt_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/prompt"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
)

func instructionKeys() []string {
	keys := []string{
		config.TKeyPersona,
		config.TKeyOneAction,
		config.TKeyCurrentAction,
		config.TKeyForbidOthers,
		config.TKeyImageProcess,
		config.TKeyVerification,
		config.TKeyVideos,
		config.TKeyGuidelines,
		config.TKeyRegenerate,
		config.TKeyNoImage,
		config.TKeyGenre,
		config.TKeyGenreSubgenres,
		config.TKeyReminder,
	}
	for _, a := range scheduler.AllActions() {
		keys = append(keys, config.TKeyActionPrefix+string(a))
	}
	return keys
}

// TestI18nIntegrity checks that every supported language defines exactly
// the keys the builder uses.
func TestI18nIntegrity(t *testing.T) {
	want := instructionKeys()

	for _, lang := range config.SupportedLanguages {
		t.Run(lang, func(t *testing.T) {
			content, err := os.ReadFile(filepath.Join("locales", "active."+lang+".json"))
			require.NoError(t, err)

			var messages map[string]string
			require.NoError(t, json.Unmarshal(content, &messages))

			for _, k := range want {
				assert.NotEmpty(t, messages[k], "missing key %q", k)
			}
			assert.Len(t, messages, len(want), "unused keys in active.%s.json", lang)
		})
	}
}

func TestNewBundle_DetectsLanguages(t *testing.T) {
	_, langs := prompt.NewBundle()
	assert.ElementsMatch(t, config.SupportedLanguages, langs)
}

func TestTranslator_Fallbacks(t *testing.T) {
	bundle, _ := prompt.NewBundle()

	fr := prompt.NewTranslator(bundle, "fr")
	assert.Contains(t, fr.Msg(config.TKeyReminder, nil), "RAPPEL")

	unknown := prompt.NewTranslator(bundle, "de")
	assert.Contains(t, unknown.Msg(config.TKeyReminder, nil), "REMEMBER", "unknown languages fall back to English")

	assert.Equal(t, "NoSuchKey", unknown.Msg("NoSuchKey", nil))

	var nilTr *prompt.Translator
	assert.Equal(t, config.TKeyReminder, nilTr.Msg(config.TKeyReminder, nil))
}

func TestBuilder_NarrowsToOneAction(t *testing.T) {
	b := prompt.NewBuilder("en")

	for _, action := range scheduler.AllActions() {
		t.Run(string(action), func(t *testing.T) {
			text := b.Instructions(scheduler.StepRequest{Action: action})
			assert.Contains(t, text, "CURRENT REQUIRED ACTION: "+strings.ToUpper(string(action)))
			assert.Contains(t, text, "ONE ACTION PER STEP ONLY")
			assert.NotContains(t, text, "Instr", "no untranslated keys")
		})
	}
}

func TestBuilder_ImageHints(t *testing.T) {
	b := prompt.NewBuilder("en")

	regen := b.Instructions(scheduler.StepRequest{Action: scheduler.ActionPost, Regenerate: true, Attempt: 2, MaxAttempts: 3})
	assert.Contains(t, regen, "attempt 2/3")
	assert.Contains(t, regen, "upload_image_and_tweet")

	assert.Contains(t, regen, "generate_image")

	plain := b.Instructions(scheduler.StepRequest{Action: scheduler.ActionPost})
	assert.NotContains(t, plain, "attempt")
	assert.Contains(t, plain, "generate_image")
	assert.Contains(t, plain, "suggestedImagePrompt")

	noImage := b.Instructions(scheduler.StepRequest{Action: scheduler.ActionPostNoImage})
	assert.Contains(t, noImage, "text-only")
	assert.NotContains(t, noImage, "upload_image_and_tweet")
	assert.Contains(t, noImage, "request_anniversary_post_approval")

	like := b.Instructions(scheduler.StepRequest{Action: scheduler.ActionLike})
	assert.NotContains(t, like, "request_anniversary_post_approval")
}

func TestBuilder_Genre(t *testing.T) {
	b := prompt.NewBuilder("en")

	text := b.Instructions(scheduler.StepRequest{
		Action: scheduler.ActionRecommend,
		Genre:  &scheduler.GenrePick{Genre: "Jazz", Subgenres: []string{"bebop", "swing"}},
	})
	assert.Contains(t, text, "Focus on this genre: Jazz (for example bebop, swing).")

	bare := b.Instructions(scheduler.StepRequest{
		Action: scheduler.ActionNewReleases,
		Genre:  &scheduler.GenrePick{Genre: "Techno"},
	})
	assert.Contains(t, bare, "Focus on this genre: Techno.")
}

func TestBuilder_VideoHints(t *testing.T) {
	b := prompt.NewBuilder("en")

	for _, action := range []scheduler.ActionKind{scheduler.ActionRecommend, scheduler.ActionNewReleases} {
		text := b.Instructions(scheduler.StepRequest{Action: action})
		assert.Contains(t, text, "search_music_videos", string(action))
		assert.Contains(t, text, "videoUrl", string(action))
	}

	post := b.Instructions(scheduler.StepRequest{Action: scheduler.ActionPost})
	assert.NotContains(t, post, "search_music_videos")
}

func TestBuilder_French(t *testing.T) {
	text := prompt.NewBuilder("fr").Instructions(scheduler.StepRequest{Action: scheduler.ActionQuote})
	assert.Contains(t, text, "ACTION REQUISE : QUOTE")
	assert.Contains(t, text, "CITER")
}
