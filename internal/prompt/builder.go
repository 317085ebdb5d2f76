package prompt

import (
	"strings"

	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/scheduler"
)

// Builder renders the system instructions of a cycle. It implements
// scheduler.Instructor.
type Builder struct {
	tr *Translator
}

// NewBuilder returns a builder for lang using the embedded locales.
func NewBuilder(lang string) *Builder {
	bundle, _ := NewBundle()
	return &Builder{tr: NewTranslator(bundle, lang)}
}

// Instructions narrows the agent to the single action of req.
func (b *Builder) Instructions(req scheduler.StepRequest) string {
	action := req.Action
	description := b.tr.Msg(config.TKeyActionPrefix+string(action), nil)

	parts := []string{
		b.tr.Msg(config.TKeyPersona, nil),
		b.tr.Msg(config.TKeyOneAction, nil),
		b.tr.Msg(config.TKeyCurrentAction, map[string]any{"Action": strings.ToUpper(string(action))}),
		b.tr.Msg(config.TKeyForbidOthers, map[string]any{"Description": description}),
	}

	switch {
	case action == scheduler.ActionPost && req.Regenerate:
		parts = append(parts, b.tr.Msg(config.TKeyRegenerate, map[string]any{
			"Attempt":     req.Attempt,
			"MaxAttempts": req.MaxAttempts,
		}))
	case action == scheduler.ActionPostNoImage:
		parts = append(parts, b.tr.Msg(config.TKeyNoImage, nil))
	}

	if req.Genre != nil {
		if len(req.Genre.Subgenres) > 0 {
			parts = append(parts, b.tr.Msg(config.TKeyGenreSubgenres, map[string]any{
				"Genre":     req.Genre.Genre,
				"Subgenres": strings.Join(req.Genre.Subgenres, ", "),
			}))
		} else {
			parts = append(parts, b.tr.Msg(config.TKeyGenre, map[string]any{"Genre": req.Genre.Genre}))
		}
	}

	if action == scheduler.ActionPost {
		parts = append(parts, b.tr.Msg(config.TKeyImageProcess, nil))
	}
	if action == scheduler.ActionRecommend || action == scheduler.ActionNewReleases {
		parts = append(parts, b.tr.Msg(config.TKeyVideos, nil))
	}
	if action.IsPost() || action == scheduler.ActionQuote || action == scheduler.ActionReply {
		parts = append(parts, b.tr.Msg(config.TKeyVerification, nil))
	}
	parts = append(parts,
		b.tr.Msg(config.TKeyGuidelines, nil),
		b.tr.Msg(config.TKeyReminder, nil),
	)
	return strings.Join(parts, "\n\n")
}
