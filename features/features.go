// Package features wraps a client session with the operations the CLI and
// the LLM layer need. When Variant is set, every request carries the
// selection in _meta so variant-aware servers route accordingly.
package features

import (
	"errors"
	"os"

	"github.com/cherrydra/mcpvariants/variants"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	ErrNoSession = errors.New("no session")
)

type ServerFeatures struct {
	Session *mcp.ClientSession
	Variant string
	Out     *os.File
}

// meta carries the variant selection; nil when no variant is chosen so
// the server falls back to its default.
func (s ServerFeatures) meta() mcp.Meta {
	if s.Variant == "" {
		return nil
	}
	return mcp.Meta{variants.MetaVariantKey: s.Variant}
}
