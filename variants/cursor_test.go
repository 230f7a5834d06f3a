package variants

import (
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	wrapped := wrapCursor("page-2", "compact")
	require.NotEmpty(t, wrapped)
	assert.NotEqual(t, "page-2", wrapped, "wrapped cursor must be opaque")

	inner, err := unwrapCursor(wrapped, "compact")
	require.NoError(t, err)
	assert.Equal(t, "page-2", inner)
}

func TestCursorEmpty(t *testing.T) {
	assert.Empty(t, wrapCursor("", "compact"))

	inner, err := unwrapCursor("", "compact")
	require.NoError(t, err)
	assert.Empty(t, inner)
}

func TestCursorWrongVariant(t *testing.T) {
	wrapped := wrapCursor("page-2", "compact")

	_, err := unwrapCursor(wrapped, "review")
	require.Error(t, err)

	var jErr *jsonrpc.Error
	require.True(t, errors.As(err, &jErr))
	assert.Equal(t, int64(jsonrpc.CodeInvalidParams), jErr.Code)
	assert.Contains(t, string(jErr.Data), "compact")
	assert.Contains(t, string(jErr.Data), "review")
}

func TestCursorGarbage(t *testing.T) {
	for _, cursor := range []string{"not base64!", "bm90IGpzb24="} {
		_, err := unwrapCursor(cursor, "compact")
		require.Error(t, err, "cursor %q", cursor)

		var jErr *jsonrpc.Error
		require.True(t, errors.As(err, &jErr))
		assert.Equal(t, int64(jsonrpc.CodeInvalidParams), jErr.Code)
	}
}
