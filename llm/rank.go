package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cherrydra/mcpvariants/variants"
	"github.com/openai/openai-go"
)

const rankSystemPrompt = `You rank MCP server variants for a client.
Given the client's hints and the available variants (with their
descriptions, hints and status), reply with a JSON array of variant IDs
ordered from most to least suitable. Reply with the JSON array only.`

// Rank asks the model to order variants for the given client hints.
// IDs the model omits or invents are ignored; omitted variants keep
// their original relative order at the end.
func (i *LLM) Rank(ctx context.Context, hints variants.VariantHints, vs []variants.ServerVariant) ([]variants.ServerVariant, error) {
	if i.Client == nil {
		return nil, ErrDisabled
	}
	if len(vs) < 2 {
		return vs, nil
	}

	payload, err := json.Marshal(map[string]any{
		"clientHints": hints,
		"variants":    vs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ranking payload: %w", err)
	}

	completion, err := i.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(rankSystemPrompt),
			openai.UserMessage(string(payload)),
		},
		Model: i.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("rank variants: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("rank variants: no choices in response")
	}

	var ids []string
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	// Some models wrap JSON in a code fence despite instructions.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &ids); err != nil {
		return nil, fmt.Errorf("parse ranking response: %w", err)
	}

	return reorder(vs, ids), nil
}

// RankingFunc adapts Rank to a [variants.RankingFunc]. Ranking failures
// fall back to the input order; a ranking hiccup must not break
// initialization.
func (i *LLM) RankingFunc() variants.RankingFunc {
	return func(ctx context.Context, hints variants.VariantHints, vs []variants.ServerVariant) []variants.ServerVariant {
		ranked, err := i.Rank(ctx, hints, vs)
		if err != nil {
			return vs
		}
		return ranked
	}
}

func reorder(vs []variants.ServerVariant, ids []string) []variants.ServerVariant {
	byID := make(map[string]variants.ServerVariant, len(vs))
	for _, v := range vs {
		byID[v.ID] = v
	}

	out := make([]variants.ServerVariant, 0, len(vs))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		v, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, v)
	}
	for _, v := range vs {
		if !seen[v.ID] {
			out = append(out, v)
		}
	}
	return out
}
