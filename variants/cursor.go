package variants

import (
	"encoding/base64"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Pagination cursors are opaque and variant-scoped: a cursor minted while
// listing one variant must not page through another. The front server
// wraps every inner cursor with its variant ID.
type scopedCursor struct {
	VariantID   string `json:"v"`
	InnerCursor string `json:"c"`
}

func wrapCursor(cursor, variantID string) string {
	if cursor == "" {
		return ""
	}
	data, err := json.Marshal(scopedCursor{
		VariantID:   variantID,
		InnerCursor: cursor,
	})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// unwrapCursor validates a wrapped cursor against the variant handling the
// request and returns the inner cursor.
func unwrapCursor(cursor, expectedVariant string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return "", &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "Invalid cursor format",
		}
	}

	var wrapped scopedCursor
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return "", &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "Invalid cursor format",
		}
	}

	if wrapped.VariantID != expectedVariant {
		errData, _ := json.Marshal(map[string]any{
			"cursorVariant":    wrapped.VariantID,
			"requestedVariant": expectedVariant,
		})
		return "", &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "Cursor invalid for requested variant",
			Data:    json.RawMessage(errData),
		}
	}

	return wrapped.InnerCursor, nil
}
