package features

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cherrydra/mcpvariants/variants"
)

// ListVariants decodes the variant list a variant-aware server returned
// during initialize. more reports whether the server withheld variants.
func (s ServerFeatures) ListVariants() (vs []variants.ServerVariant, more bool, err error) {
	if s.Session == nil {
		return nil, false, ErrNoSession
	}
	initResult := s.Session.InitializeResult()
	if initResult == nil || initResult.Capabilities == nil || initResult.Capabilities.Experimental == nil {
		return nil, false, nil
	}
	ext, ok := initResult.Capabilities.Experimental[variants.ExtensionID]
	if !ok {
		return nil, false, nil
	}

	raw, err := json.Marshal(ext)
	if err != nil {
		return nil, false, fmt.Errorf("marshal variants payload: %w", err)
	}
	var payload struct {
		AvailableVariants     []variants.ServerVariant `json:"availableVariants"`
		MoreVariantsAvailable bool                     `json:"moreVariantsAvailable"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false, fmt.Errorf("unmarshal variants payload: %w", err)
	}
	return payload.AvailableVariants, payload.MoreVariantsAvailable, nil
}

func (s *ServerFeatures) PrintVariants() error {
	vs, _, err := s.ListVariants()
	if err != nil {
		return err
	}
	for _, v := range vs {
		json.NewEncoder(cmp.Or(s.Out, os.Stdout)).Encode(v)
	}
	return nil
}
