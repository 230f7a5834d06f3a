package parser

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActions(t *testing.T) {
	p := Parser{}
	err := p.Parse([]string{"-V", "-u", "compact", "-t", "summarize", "-d", `{"text":"hi"}`, "http://localhost:8080/mcp"})
	require.NoError(t, err)

	args := p.Arguments()
	assert.True(t, args.Variants)
	assert.Equal(t, "compact", args.Variant)
	assert.Equal(t, "summarize", args.Tool)
	assert.Equal(t, `{"text":"hi"}`, args.Data)
	assert.Equal(t, []string{"http://localhost:8080/mcp"}, args.TransportArgs)
}

func TestParseMissingValue(t *testing.T) {
	p := Parser{}
	assert.ErrorIs(t, p.Parse([]string{"--variant"}), ErrInvalidUsage)
}

func TestParseLogLevel(t *testing.T) {
	p := Parser{}
	require.NoError(t, p.Parse([]string{"-l", "debug", "/bin/server"}))
	assert.Equal(t, slog.LevelDebug, p.Arguments().LogLevel)
}

func TestParseDataFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(file, []byte("{\"a\":1}\n"), 0644))

	p := Parser{}
	data, err := p.ParseData("@" + file)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, data)
}

func TestParseHeaderFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "headers.txt")
	require.NoError(t, os.WriteFile(file, []byte("Authorization: Bearer x\n\nX-Trace: 1\n"), 0644))

	p := Parser{}
	headers, err := p.ParseHeader("@" + file)
	require.NoError(t, err)
	assert.Equal(t, []string{"Authorization: Bearer x", "X-Trace: 1"}, headers)
}

func TestVariantFromEnv(t *testing.T) {
	t.Setenv("VARCURL_VARIANT", "review")

	p := Parser{}
	require.NoError(t, p.Parse([]string{"/bin/server"}))
	assert.Equal(t, "review", p.Arguments().Variant)
}

func TestLLMBaseURLRequiresName(t *testing.T) {
	p := Parser{}
	assert.Error(t, p.Parse([]string{"-L", "http://localhost:11434/v1", "/bin/server"}))
}
