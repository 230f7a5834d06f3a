// Package transport builds client-side MCP transports from endpoint URLs
// or parsed command-line arguments.
package transport

import (
	"cmp"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"

	"github.com/cherrydra/mcpvariants/parser"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	ErrNoTransport = errors.New("no transport specified")
)

// Options tune how an endpoint is dialed.
type Options struct {
	// Args are appended to the argv of stdio commands.
	Args []string
	// Env replaces the child process environment when non-nil.
	Env []string
	// Headers are "Key: Value" lines added to every HTTP request.
	Headers []string
	// Silent drops the child process stderr.
	Silent bool
}

// Endpoint builds a transport for an endpoint URL. stdio:// (or a bare
// path) runs the server as a child process; http:// and https:// use the
// streamable transport.
func Endpoint(endpoint string, opts Options) (mcp.Transport, error) {
	if endpoint == "" {
		return nil, ErrNoTransport
	}
	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse transport url: %w", err)
	}
	switch endpointURL.Scheme {
	case "", "stdio":
		command := exec.Command(cmp.Or(endpointURL.Host, endpointURL.Path), opts.Args...)
		if opts.Env != nil {
			command.Env = opts.Env
		}
		if !opts.Silent {
			command.Stderr = os.Stderr
		}
		return &mcp.CommandTransport{Command: command}, nil
	case "http", "https":
		return &mcp.StreamableClientTransport{
			Endpoint:   endpointURL.String(),
			HTTPClient: &http.Client{Transport: &HeaderRoundTripper{Headers: opts.Headers}},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transport url scheme: %s", endpointURL.Scheme)
	}
}

// FromArgs builds a transport from parsed command-line arguments: the
// first transport argument is the endpoint, the rest are the child argv.
func FromArgs(args parser.Arguments) (mcp.Transport, error) {
	if len(args.TransportArgs) == 0 {
		return nil, ErrNoTransport
	}
	return Endpoint(args.TransportArgs[0], Options{
		Args:    args.TransportArgs[1:],
		Headers: args.Headers,
		Silent:  args.Silent,
	})
}
