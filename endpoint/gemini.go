package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

// Gemini is the Generator backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("endpoint: missing API key")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("endpoint: create client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, wav []byte, language string) ([]Part, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{logFoodDeclaration()},
		}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(instruction(language)),
			genai.NewPartFromBytes(wav, "audio/wav"),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		if e, ok := err.(*apierror.APIError); ok {
			err = e.Unwrap()
		}
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("endpoint: empty response")
	}

	var parts []Part
	for _, p := range resp.Candidates[0].Content.Parts {
		switch {
		case p.Text != "":
			parts = append(parts, Part{Text: p.Text})
		case p.FunctionCall != nil:
			args, err := json.Marshal(p.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("endpoint: encode %s args: %w", p.FunctionCall.Name, err)
			}
			parts = append(parts, Part{Call: &FuncCall{Name: p.FunctionCall.Name, Args: args}})
		}
	}
	return parts, nil
}
