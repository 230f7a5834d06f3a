package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cherrydra/mcpvariants/features"
	"github.com/cherrydra/mcpvariants/interactor"
	"github.com/cherrydra/mcpvariants/llm"
	"github.com/cherrydra/mcpvariants/parser"
	"github.com/cherrydra/mcpvariants/transport"
	"github.com/cherrydra/mcpvariants/version"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func main() {
	p := parser.Parser{}
	runE(func() error {
		return p.Parse(os.Args[1:])
	})
	args := p.Arguments()
	slog.SetLogLoggerLevel(args.LogLevel)
	if args.Help {
		printUsage()
		return
	}
	if args.Version {
		fmt.Println(version.Long())
		return
	}
	runE(func() error {
		return runMain(args)
	})
}

func runE(run func() error) {
	err := run()
	if errors.Is(err, parser.ErrInvalidUsage) {
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}
}

func runMain(args parser.Arguments) error {
	ctx := context.Background()
	model := newLLM(args)

	var session *mcp.ClientSession
	if len(args.TransportArgs) > 0 {
		clientTransport, err := transport.FromArgs(args)
		if err != nil {
			return fmt.Errorf("transport: %w", err)
		}
		client := mcp.NewClient(&mcp.Implementation{
			Name:    "varcurl",
			Title:   "Variant-aware MCP command line client",
			Version: version.Short(),
		}, nil)
		session, err = client.Connect(ctx, clientTransport, nil)
		if err != nil {
			return fmt.Errorf("connect mcp server: %w", err)
		}
	}

	if args.Interactive {
		i := interactor.Interactor{Args: args, Session: session, LLM: model}
		return i.Run(ctx)
	}

	if session == nil {
		return parser.ErrInvalidUsage
	}
	defer session.Close()

	f := features.ServerFeatures{Session: session, Variant: args.Variant}
	switch {
	case args.Variants:
		return f.PrintVariants()
	case args.Tools:
		return f.PrintTools(ctx)
	case args.Prompts:
		return f.PrintPrompts(ctx)
	case args.Resources:
		return f.PrintResources(ctx)
	case args.Tool != "":
		return f.CallTool(ctx, args.Tool, args.Data)
	case args.Prompt != "":
		return f.GetPrompt(ctx, args.Prompt, args.Data)
	case args.Resource != "":
		return f.ReadResource(ctx, args.Resource)
	case args.Msg != "":
		if model == nil {
			return llm.ErrDisabled
		}
		if err := model.ContextManger.LoadOnce(args.LLMContextFile); err != nil {
			slog.Warn("Load llm contexts", "err", err)
		}
		if err := model.Msg(ctx, f, args.Msg, os.Stdout); err != nil {
			return err
		}
		return model.ContextManger.Save(args.LLMContextFile)
	}
	return parser.ErrInvalidUsage
}

func newLLM(args parser.Arguments) *llm.LLM {
	if args.LLMApiKey == "" && args.LLMBaseURL == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(args.LLMApiKey)}
	if args.LLMBaseURL != "" {
		opts = append(opts, option.WithBaseURL(args.LLMBaseURL))
	}
	client := openai.NewClient(opts...)
	return &llm.LLM{Client: &client, Model: args.LLMName}
}

func printUsage() {
	fmt.Println(`Usage:
  varcurl <options> <mcp_server>

Accepted <options>:
  -V, --variants             list server variants
  -u, --variant <id>         select server variant for requests
  -T, --tools                list tools
  -P, --prompts              list prompts
  -R, --resources            list resources
  -t, --tool <string>        call tool
  -p, --prompt <string>      get prompt
  -r, --resource <string>    read resource
  -d, --data <string>        send json data to server, or @file
  -H, --header <string>      extra http header, or @file
  -I, --interactive          interactive mode
  -m, --msg <string>         talk to LLM with server tools attached
  -K, --llm-api-key <string> LLM api key
  -L, --llm-base-url <string> LLM base url (OpenAI compatible)
  -M, --llm-name <string>    LLM model name
  -l, --log-level <string>   log level (debug/info/warn/error)
  -s, --silent               suppress subprocess stderr
  -v, --version              show version
  -h, --help                 show this usage

Environment:
  VARCURL_VARIANT, VARCURL_LLM_API_KEY, VARCURL_LLM_BASE_URL,
  VARCURL_LLM_NAME, VARCURL_LOG_LEVEL, VARCURL_HISTORY_FILE,
  VARCURL_LLM_CONTEXT_FILE

Currently supported transport:
  stdio (standard input/output)
  http/https (streamable http)

Accepted <mcp_server> formats:
  stdio:///path/to/mcpserver [args]   # Explicit stdio scheme
  /path/to/mcpserver [args]           # Implicit stdio scheme
  https://example.com/mcp             # Streamable http endpoint`)
}
