package llm

import (
	"path/filepath"
	"testing"

	"github.com/cherrydra/mcpvariants/variants"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorder(t *testing.T) {
	vs := []variants.ServerVariant{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}

	out := reorder(vs, []string{"c", "a"})
	require.Len(t, out, 3)
	assert.Equal(t, "c", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
	// Omitted variants keep their original order at the end.
	assert.Equal(t, "b", out[2].ID)
}

func TestReorderIgnoresUnknownAndDuplicateIDs(t *testing.T) {
	vs := []variants.ServerVariant{
		{ID: "a"}, {ID: "b"},
	}

	out := reorder(vs, []string{"b", "made-up", "b", "a"})
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
}

func TestTalkContextManagerSaveLoad(t *testing.T) {
	store := filepath.Join(t.TempDir(), "contexts.json")

	var m TalkContextManager
	m.addMsg(openai.UserMessage("hello"))
	m.New()
	m.addMsg(openai.UserMessage("second"))
	require.NoError(t, m.Save(store))

	var restored TalkContextManager
	require.NoError(t, restored.Load(store))

	infos := restored.List()
	require.Len(t, infos, 2)
	assert.True(t, infos[1].Current)
}

func TestTalkContextManagerDelete(t *testing.T) {
	var m TalkContextManager
	m.addMsg(openai.UserMessage("one"))
	m.New()
	m.addMsg(openai.UserMessage("two"))

	require.NoError(t, m.Delete(1))
	assert.Error(t, m.Delete(5))

	infos := m.List()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Current)
}
