package variants

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankByPriority(t *testing.T) {
	vs := []ServerVariant{
		{ID: "c", Status: Deprecated, priority: 1},
		{ID: "a", Status: Experimental, priority: 2},
		{ID: "b", Status: Stable, priority: 1},
		{ID: "d", priority: 0},
	}

	ranked := rankByPriority(context.Background(), VariantHints{}, vs)

	ids := make([]string, len(ranked))
	for i, v := range ranked {
		ids[i] = v.ID
	}
	// Priority ascending; within priority 1 stable beats deprecated.
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids)
}

func TestStatusWeight(t *testing.T) {
	assert.Equal(t, statusWeight(Stable), statusWeight(""))
	assert.Less(t, statusWeight(Stable), statusWeight(Experimental))
	assert.Less(t, statusWeight(Experimental), statusWeight(Deprecated))
	assert.Less(t, statusWeight(Deprecated), statusWeight(VariantStatus("bogus")))
}

func TestHintValue(t *testing.T) {
	hints := VariantHints{
		Hints: map[string]any{
			HintUseCase:     "ide",
			HintContextSize: []any{"compact", "standard"},
		},
	}

	useCase, ok := HintValue[string](hints, HintUseCase)
	require.True(t, ok)
	assert.Equal(t, "ide", useCase)

	_, ok = HintValue[string](hints, HintContextSize)
	assert.False(t, ok, "array value is not a string")

	_, ok = HintValue[string](hints, HintModelFamily)
	assert.False(t, ok)

	_, ok = HintValue[string](VariantHints{}, HintUseCase)
	assert.False(t, ok, "nil hints map")
}

func TestVariantsReturnsCopy(t *testing.T) {
	vs := newTestVariantServer()

	got := vs.Variants()
	require.Len(t, got, 2)
	got[0].ID = "mutated"

	assert.Equal(t, "review", vs.Variants()[0].ID)
}

func TestDuplicateVariantIDPanics(t *testing.T) {
	srv := mcp.NewServer(&mcp.Implementation{Name: "s", Version: "v1"}, nil)
	vs := NewServer(&mcp.Implementation{Name: "test", Version: "v1"}).
		WithVariant(ServerVariant{ID: "dup"}, srv, 0)

	assert.Panics(t, func() {
		vs.WithVariant(ServerVariant{ID: "dup"}, srv, 1)
	})
}

func TestNilImplementationPanics(t *testing.T) {
	assert.Panics(t, func() { NewServer(nil) })
}

func TestCustomRanking(t *testing.T) {
	vs := newTestVariantServer().WithRanking(
		func(_ context.Context, hints VariantHints, variants []ServerVariant) []ServerVariant {
			if size, ok := HintValue[string](hints, HintContextSize); ok && size == "compact" {
				for i, v := range variants {
					if v.ID == "compact" {
						variants[0], variants[i] = variants[i], variants[0]
						break
					}
				}
			}
			return variants
		})

	ranked := vs.RankedVariants(context.Background(), VariantHints{
		Hints: map[string]any{HintContextSize: "compact"},
	})
	require.NotEmpty(t, ranked)
	assert.Equal(t, "compact", ranked[0].ID)

	ranked = vs.RankedVariants(context.Background(), VariantHints{})
	assert.Equal(t, "review", ranked[0].ID)
}

// The default variant for requests without a _meta selection comes from
// the ranking computed with the hints the client sent at initialize, not
// from a re-ranking with empty hints.
func TestSessionDefaultFollowsInitializeHints(t *testing.T) {
	vs := newTestVariantServer().WithRanking(
		func(_ context.Context, hints VariantHints, variants []ServerVariant) []ServerVariant {
			if size, ok := HintValue[string](hints, HintContextSize); ok && size == "compact" {
				for i, v := range variants {
					if v.ID == "compact" {
						variants[0], variants[i] = variants[i], variants[0]
						break
					}
				}
			}
			return variants
		})

	hints := VariantHints{Hints: map[string]any{HintContextSize: "compact"}}
	state, err := vs.newSession(context.Background(), nil, hints)
	require.NoError(t, err)
	defer state.close()

	assert.Equal(t, "compact", state.router.defaultID)

	state2, err := vs.newSession(context.Background(), nil, VariantHints{})
	require.NoError(t, err)
	defer state2.close()

	assert.Equal(t, "review", state2.router.defaultID)
}

func TestUnionCapabilities(t *testing.T) {
	union := unionCapabilities([]*mcp.ServerCapabilities{
		nil,
		{
			Tools:     &mcp.ToolCapabilities{ListChanged: true},
			Resources: &mcp.ResourceCapabilities{Subscribe: true},
			Experimental: map[string]any{
				"x": 1,
			},
		},
		{
			Tools:     &mcp.ToolCapabilities{},
			Resources: &mcp.ResourceCapabilities{ListChanged: true},
			Prompts:   &mcp.PromptCapabilities{},
			Experimental: map[string]any{
				"x": 2,
				"y": 3,
			},
		},
	})

	require.NotNil(t, union.Tools)
	assert.True(t, union.Tools.ListChanged)
	require.NotNil(t, union.Resources)
	assert.True(t, union.Resources.Subscribe)
	assert.True(t, union.Resources.ListChanged)
	assert.NotNil(t, union.Prompts)
	assert.Equal(t, 1, union.Experimental["x"], "first registration wins")
	assert.Equal(t, 3, union.Experimental["y"])
}
