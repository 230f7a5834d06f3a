// varserve assembles a variant-aware MCP server from a JSON config and
// serves it over stdio or streamable HTTP.
package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/cherrydra/mcpvariants/cmd/varserve/config"
	"github.com/cherrydra/mcpvariants/llm"
	"github.com/cherrydra/mcpvariants/variants"
	"github.com/cherrydra/mcpvariants/version"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	configFile string
	addr       string
	stateless  bool
	logLevel   string
)

func main() {
	flag.StringVar(&configFile, "f", "", "Path to the variants config file (default is $HOME/.config/varserve/variants.json)")
	flag.StringVar(&addr, "addr", "", "Serve streamable HTTP on this address instead of stdio")
	flag.BoolVar(&stateless, "stateless", false, "Stateless streamable HTTP mode (requires -addr)")
	flag.StringVar(&logLevel, "l", "info", "Log level (debug/info/warn/error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		exit(fmt.Errorf("parse log level: %w", err))
	}
	slog.SetLogLoggerLevel(level)

	conf, err := config.Parse(configFile)
	if err != nil {
		exit(err)
	}
	if len(conf.Variants) == 0 {
		exit(fmt.Errorf("no variants configured"))
	}

	vs, err := assemble(conf)
	if err != nil {
		exit(err)
	}

	ctx := context.Background()
	if addr != "" {
		handler := variants.NewStreamableHTTPHandler(vs, &mcp.StreamableHTTPOptions{Stateless: stateless})
		slog.Info("Serving streamable HTTP", "addr", addr, "stateless", stateless)
		if err := http.ListenAndServe(addr, handler); err != nil {
			exit(err)
		}
		return
	}
	if err := vs.Run(ctx, &mcp.StdioTransport{}); err != nil {
		exit(err)
	}
}

func assemble(conf *config.Config) (*variants.Server, error) {
	vs := variants.NewServer(&mcp.Implementation{
		Name:    cmp.Or(conf.Name, "varserve"),
		Version: cmp.Or(conf.Version, version.Short()),
	})
	for id, v := range conf.Variants {
		endpoint, err := v.Endpoint()
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", id, err)
		}
		vs.WithRemoteVariant(variants.ServerVariant{
			ID:              id,
			Description:     v.Description,
			Hints:           v.Hints,
			Status:          v.Status,
			DeprecationInfo: v.DeprecationInfo,
		}, variants.Remote{
			Endpoint: endpoint,
			Args:     v.Args,
			Env:      v.Env.Encode(),
			Headers:  v.Headers.Headers(),
		}, v.Priority)
	}
	if model := newLLM(); model != nil {
		slog.Info("LLM variant ranking enabled", "model", model.Model)
		vs.WithRanking(model.RankingFunc())
	}
	return vs, nil
}

// newLLM enables LLM-backed variant ranking when VARSERVE_LLM_* is set.
func newLLM() *llm.LLM {
	apiKey := os.Getenv("VARSERVE_LLM_API_KEY")
	baseURL := os.Getenv("VARSERVE_LLM_BASE_URL")
	name := os.Getenv("VARSERVE_LLM_NAME")
	if name == "" || (apiKey == "" && baseURL == "") {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &llm.LLM{Client: &client, Model: name}
}

func exit(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
