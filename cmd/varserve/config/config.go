// Package config reads the varserve variants configuration: a JSON file
// mapping variant IDs to backing MCP servers.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cherrydra/mcpvariants/variants"
)

type KV map[string]string

// Encode flattens to "key=value" pairs for exec env and http headers
// ("Key: Value" for the latter is built by Headers).
func (kv KV) Encode() []string {
	var ret []string
	for k, v := range kv {
		ret = append(ret, fmt.Sprintf("%s=%s", k, v))
	}
	return ret
}

func (kv KV) Headers() []string {
	var ret []string
	for k, v := range kv {
		ret = append(ret, fmt.Sprintf("%s: %s", k, v))
	}
	return ret
}

// Variant is one configured server variant and its backing server.
type Variant struct {
	Type    string   `json:"type"` // stdio (default) or http
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Env     KV       `json:"env"`
	URL     string   `json:"url"`
	Headers KV       `json:"headers"`

	Description     string                    `json:"description"`
	Hints           map[string]string         `json:"hints"`
	Status          variants.VariantStatus    `json:"status"`
	DeprecationInfo *variants.DeprecationInfo `json:"deprecationInfo"`
	Priority        int                       `json:"priority"`
}

// Endpoint is the transport endpoint for the backing server.
func (v Variant) Endpoint() (string, error) {
	switch v.Type {
	case "", "stdio":
		if v.Command == "" {
			return "", fmt.Errorf("stdio variant needs a command")
		}
		return v.Command, nil
	case "http":
		if v.URL == "" {
			return "", fmt.Errorf("http variant needs a url")
		}
		return v.URL, nil
	default:
		return "", fmt.Errorf("unsupported variant type: %s", v.Type)
	}
}

type Config struct {
	Name     string             `json:"name"`
	Version  string             `json:"version"`
	Variants map[string]Variant `json:"variants"`
}

// Parse reads the config from file. An empty file name falls back to
// $VARSERVE_CONFIG_FILE, then $HOME/.config/varserve/variants.json; a
// missing default file yields an empty config.
func Parse(file string) (*Config, error) {
	if file == "" {
		if v := os.Getenv("VARSERVE_CONFIG_FILE"); v != "" {
			file = v
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("get home directory: %w", err)
			}
			dir := filepath.Join(home, ".config", "varserve")
			os.MkdirAll(dir, 0755)
			file = filepath.Join(dir, "variants.json")
		}
		if _, err := os.Stat(file); os.IsNotExist(err) {
			return &Config{}, nil
		}
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	var conf Config
	if err := json.NewDecoder(f).Decode(&conf); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	for id, v := range conf.Variants {
		if _, err := v.Endpoint(); err != nil {
			return nil, fmt.Errorf("variant %s: %w", id, err)
		}
	}
	return &conf, nil
}
