// Package variants implements SEP-2053 server variants on top of the
// official MCP Go SDK. A variant-aware [Server] multiplexes one MCP surface
// across several backing servers, ranks the available variants for the
// client during initialize, and routes each request to the variant selected
// via the _meta field.
package variants

import (
	"context"
	"slices"
)

const (
	// ExtensionID is the experimental capability key under which variant
	// information travels during initialize.
	ExtensionID = "io.modelcontextprotocol/server-variants"

	// MetaVariantKey is the _meta key carrying the per-request variant
	// selection.
	MetaVariantKey = ExtensionID + "/variant"
)

// VariantStatus is the stability status of a server variant.
type VariantStatus string

const (
	// Stable marks a production-ready variant.
	Stable VariantStatus = "stable"
	// Experimental marks a variant that may change without notice.
	Experimental VariantStatus = "experimental"
	// Deprecated marks a variant scheduled for removal.
	Deprecated VariantStatus = "deprecated"
)

// DeprecationInfo carries migration guidance for deprecated variants.
type DeprecationInfo struct {
	Message string `json:"message"`

	// Replacement is the suggested replacement variant ID.
	Replacement string `json:"replacement,omitempty"`

	// RemovalDate is an ISO 8601 date; servers should keep accepting the
	// variant until then.
	RemovalDate string `json:"removalDate,omitempty"`
}

// ServerVariant describes one selectable configuration of the server's
// capabilities (tools, resources, prompts, subscriptions).
type ServerVariant struct {
	// ID uniquely identifies the variant, e.g. "claude-optimized",
	// "compact", "agent-plan".
	ID string `json:"id"`

	// Description is shown to users and fed to LLMs reasoning about
	// variant selection: target model family, key characteristics,
	// trade-offs.
	Description string `json:"description"`

	// Hints are structured metadata for programmatic filtering and
	// ranking. Unknown keys are ignored.
	Hints map[string]string `json:"hints,omitempty"`

	// Status defaults to Stable when empty.
	Status VariantStatus `json:"status,omitempty"`

	DeprecationInfo *DeprecationInfo `json:"deprecationInfo,omitempty"`

	// priority orders variants when no RankingFunc is set; lower wins.
	// Set by Server registration, read via Priority.
	priority int
}

// Priority returns the registration priority; lower values rank first.
func (v ServerVariant) Priority() int {
	return v.priority
}

// Well-known hint keys (SEP-2053 common hint vocabulary).
const (
	// HintModelFamily: "anthropic", "openai", "google", "meta", "local", "any".
	HintModelFamily = "modelFamily"
	// HintUseCase: "autonomous-agent", "human-assistant", "ide", "api",
	// "chat", "planning", "execution".
	HintUseCase = "useCase"
	// HintContextSize: "compact", "standard", "verbose".
	HintContextSize = "contextSize"
	// HintRenderingCapabilities: "rich", "markdown", "text-only".
	HintRenderingCapabilities = "renderingCapabilities"
	// HintLanguageOptimization: "en", "multilingual", "code-focused".
	HintLanguageOptimization = "languageOptimization"
)

// VariantHints is what the client sends during initialize to help the
// server rank its variants.
type VariantHints struct {
	Description string `json:"description,omitempty"`

	// Hints values are a string or an array of strings in preference
	// order. Unknown keys are ignored.
	Hints map[string]any `json:"hints,omitempty"`
}

// HintValue reads a typed hint value. It reports false when the key is
// missing or the stored value is not a T.
func HintValue[T any](h VariantHints, key string) (T, bool) {
	var zero T
	v, ok := h.Hints[key]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// RankingFunc orders variants by relevance for the given client hints,
// most relevant first. The first variant is the recommended default and
// serves clients that never select a variant at all. Priority (set at
// registration) is available as a baseline signal on each variant.
type RankingFunc func(ctx context.Context, hints VariantHints, variants []ServerVariant) []ServerVariant

// rankByPriority is the default ranking: priority ascending, then
// stable before experimental before deprecated. The slice is already a
// copy, so in-place sorting is fine.
func rankByPriority(_ context.Context, _ VariantHints, vs []ServerVariant) []ServerVariant {
	slices.SortStableFunc(vs, func(a, b ServerVariant) int {
		if a.priority != b.priority {
			return a.priority - b.priority
		}
		return statusWeight(a.Status) - statusWeight(b.Status)
	})
	return vs
}

func statusWeight(s VariantStatus) int {
	switch s {
	case Stable, "":
		return 0
	case Experimental:
		return 1
	case Deprecated:
		return 2
	default:
		return 3
	}
}
