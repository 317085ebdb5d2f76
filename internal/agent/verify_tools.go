package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tartampluch/go-musicbot/internal/config"
	"github.com/tartampluch/go-musicbot/internal/engine"
	"google.golang.org/genai"
)

// RegisterVerification exposes the anniversary verifier to the model.
func RegisterVerification(r *Registry, v *engine.Verifier) {
	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolRequestAnniversary,
			Description: "Verify that today is the release anniversary of an album. Returns an approval_id when approved. Required before any album anniversary post.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgReleaseDate: stringParam("Full release date, e.g. 1973-03-01 or March 1, 1973"),
				config.ArgAlbumName:   stringParam("Album title"),
				config.ArgArtistName:  stringParam("Artist or band"),
			}, config.ArgReleaseDate, config.ArgAlbumName, config.ArgArtistName),
		},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return toResult(v.RequestAnniversaryApproval(
				argString(args, config.ArgReleaseDate),
				argString(args, config.ArgAlbumName),
				argString(args, config.ArgArtistName),
			))
		},
	})

	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolRequestBirthday,
			Description: "Verify that today is the birthday of a musician. Returns an approval_id when approved. Required before any birthday post.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgBirthDate:    stringParam("Full birth date, e.g. 1958-08-29"),
				config.ArgMusicianName: stringParam("Musician name"),
				config.ArgInfo:         stringParam("Optional context such as band or genre"),
			}, config.ArgBirthDate, config.ArgMusicianName),
		},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return toResult(v.RequestBirthdayApproval(
				argString(args, config.ArgBirthDate),
				argString(args, config.ArgMusicianName),
				argString(args, config.ArgInfo),
			))
		},
	})

	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolVerifyApproval,
			Description: "Check that an approval_id is still valid before posting.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgApprovalID: stringParam("Approval id returned by a request tool"),
			}, config.ArgApprovalID),
		},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return toResult(v.VerifyApproval(argString(args, config.ArgApprovalID)))
		},
	})

	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolCheckDate,
			Description: "Check whether a date falls on today's month and day. Read-only, grants nothing.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgDate: stringParam("Date to check"),
			}, config.ArgDate),
		},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return toResult(v.CheckDate(argString(args, config.ArgDate)))
		},
	})

	r.Register(Tool{
		Decl: &genai.FunctionDeclaration{
			Name:        config.ToolCheckBatch,
			Description: "Check several albums at once and list those whose release anniversary is today. Read-only, grants nothing.",
			Parameters: objectSchema(map[string]*genai.Schema{
				config.ArgAlbums: stringParam(`JSON array: [{"name": "...", "artist": "...", "releaseDate": "..."}]`),
			}, config.ArgAlbums),
		},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			items, err := decodeBatch(args[config.ArgAlbums])
			if err != nil {
				return nil, err
			}
			return toResult(v.CheckBatch(items))
		},
	})
}

// decodeBatch accepts the albums argument either as a JSON string or as an
// already decoded array.
func decodeBatch(raw any) ([]engine.BatchItem, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: %s", errToolArgs, config.ReasonBatchEmpty)
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errToolArgs, config.ReasonBatchJSON)
		}
		data = b
	}

	var items []engine.BatchItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s", errToolArgs, config.ReasonBatchJSON)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", errToolArgs, config.ReasonBatchEmpty)
	}
	return items, nil
}
