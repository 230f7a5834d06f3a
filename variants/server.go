package variants

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

type entry struct {
	variant ServerVariant
	backend backend
}

// Server is a variant-aware MCP server. It multiplexes across multiple
// backing servers, one per registered [ServerVariant]: initialize returns
// the ranked variant list, and every subsequent request is routed by the
// _meta variant selection (or to the default variant when absent).
//
// Server holds configuration only and is safe for concurrent use. In
// stateful mode (the default) inner connections are created per front
// session during initialize and live for that session. In stateless mode
// (via [NewStreamableHTTPHandler] with the Stateless option) one shared
// connection set serves all requests.
type Server struct {
	impl        *mcp.Implementation
	variants    []entry
	rankingFunc RankingFunc
	shared      *session // stateless mode only, released by Close
}

// NewServer creates a variant server with no registered variants.
// impl must not be nil.
func NewServer(impl *mcp.Implementation) *Server {
	if impl == nil {
		panic("variants: nil Implementation")
	}
	return &Server{impl: impl}
}

func (s *Server) register(v ServerVariant, b backend, priority int) *Server {
	for _, e := range s.variants {
		if e.variant.ID == v.ID {
			panic("variants: duplicate variant ID: " + v.ID)
		}
	}
	v.priority = priority
	s.variants = append(s.variants, entry{variant: v, backend: b})
	return s
}

// WithVariant registers a variant backed by an in-process mcp.Server.
// priority orders variants when no RankingFunc is set; lower values rank
// first and the first-ranked variant is the default for clients that never
// select one. Duplicate IDs panic. Returns the receiver for chaining.
func (s *Server) WithVariant(v ServerVariant, mcpServer *mcp.Server, priority int) *Server {
	return s.register(v, &memoryBackend{server: mcpServer}, priority)
}

// WithRemoteVariant registers a variant backed by an external MCP server
// reached per [Remote]. Connections are dialed per front session.
func (s *Server) WithRemoteVariant(v ServerVariant, r Remote, priority int) *Server {
	return s.register(v, &remoteBackend{remote: r}, priority)
}

// WithRanking sets the ranking function applied during initialize. The
// function returns variants sorted most relevant first. When nil, variants
// are ordered by priority.
func (s *Server) WithRanking(fn RankingFunc) *Server {
	s.rankingFunc = fn
	return s
}

// Variants returns a copy of the registered variants in registration order.
func (s *Server) Variants() []ServerVariant {
	out := make([]ServerVariant, len(s.variants))
	for i, e := range s.variants {
		out[i] = e.variant
	}
	return out
}

// RankedVariants applies the configured ranking (or the priority default)
// to the registered variants.
func (s *Server) RankedVariants(ctx context.Context, hints VariantHints) []ServerVariant {
	all := s.Variants()
	if len(all) == 0 {
		return all
	}
	rank := s.rankingFunc
	if rank == nil {
		rank = rankByPriority
	}
	return rank(ctx, hints, all)
}

// Close releases backend resources and, in stateless mode, the shared
// inner connections.
func (s *Server) Close() error {
	if s.shared != nil {
		s.shared.close()
		s.shared = nil
	}
	var firstErr error
	for _, e := range s.variants {
		if err := e.backend.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run serves on the given transport (e.g. stdio) until the context is
// canceled. For multi-client HTTP use [NewStreamableHTTPHandler].
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	defer s.Close()
	srv, err := s.mcpServer(false)
	if err != nil {
		return err
	}
	return srv.Run(ctx, t)
}

// NewStreamableHTTPHandler returns an [mcp.StreamableHTTPHandler] serving
// the variant server to multiple concurrent clients. It mirrors
// mcp.NewStreamableHTTPHandler:
//
//	handler := variants.NewStreamableHTTPHandler(vs, nil)
//	http.ListenAndServe(":8080", handler)
func NewStreamableHTTPHandler(vs *Server, opts *mcp.StreamableHTTPOptions) *mcp.StreamableHTTPHandler {
	if vs == nil {
		panic("variants: nil Server")
	}
	stateless := opts != nil && opts.Stateless
	srv, err := vs.mcpServer(stateless)
	if err != nil {
		panic("variants: " + err.Error())
	}
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return srv },
		opts,
	)
}

// mcpServer assembles the front proxy server: a thin mcp.Server that
// handles initialize itself (injecting variant metadata) and hands every
// routable method to the per-session router. Its advertised capabilities
// are the union of what the backends advertise.
func (s *Server) mcpServer(stateless bool) (*mcp.Server, error) {
	if len(s.variants) == 0 {
		return nil, errors.New("variants: no variants registered")
	}

	caps, err := s.discoverCapabilities()
	if err != nil {
		return nil, err
	}

	// Per-session state, keyed by *mcp.ServerSession identity.
	sessions := &sync.Map{}

	// Stateless mode shares one connection set across all requests. It is
	// kept on the Server so Close can release it.
	var shared *session
	if stateless {
		shared, err = s.newSession(context.Background(), nil, VariantHints{})
		if err != nil {
			return nil, err
		}
		s.shared = shared
	}

	front := mcp.NewServer(s.impl, &mcp.ServerOptions{
		Capabilities: caps,
	})
	front.AddReceivingMiddleware(s.middleware(sessions, shared))
	return front, nil
}

// discoverCapabilities probes every backend concurrently and merges the
// results into the capability set the front server advertises.
func (s *Server) discoverCapabilities() (*mcp.ServerCapabilities, error) {
	allCaps := make([]*mcp.ServerCapabilities, len(s.variants))
	g, ctx := errgroup.WithContext(context.Background())
	for i, e := range s.variants {
		g.Go(func() error {
			caps, err := e.backend.capabilities(ctx)
			if err != nil {
				return err
			}
			allCaps[i] = caps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return unionCapabilities(allCaps), nil
}

// unionCapabilities merges backend capabilities:
//
//   - Tools, Resources, Prompts: advertised if any backend advertises
//     them; ListChanged and Subscribe are OR-ed.
//   - Completions, Logging: first non-nil wins.
//   - Experimental: keys merged, first registration wins.
func unionCapabilities(allCaps []*mcp.ServerCapabilities) *mcp.ServerCapabilities {
	union := &mcp.ServerCapabilities{}

	for _, caps := range allCaps {
		if caps == nil {
			continue
		}

		if caps.Tools != nil {
			if union.Tools == nil {
				union.Tools = &mcp.ToolCapabilities{}
			}
			union.Tools.ListChanged = union.Tools.ListChanged || caps.Tools.ListChanged
		}

		if caps.Resources != nil {
			if union.Resources == nil {
				union.Resources = &mcp.ResourceCapabilities{}
			}
			union.Resources.Subscribe = union.Resources.Subscribe || caps.Resources.Subscribe
			union.Resources.ListChanged = union.Resources.ListChanged || caps.Resources.ListChanged
		}

		if caps.Prompts != nil {
			if union.Prompts == nil {
				union.Prompts = &mcp.PromptCapabilities{}
			}
			union.Prompts.ListChanged = union.Prompts.ListChanged || caps.Prompts.ListChanged
		}

		if caps.Completions != nil && union.Completions == nil {
			union.Completions = caps.Completions
		}
		if caps.Logging != nil && union.Logging == nil {
			union.Logging = caps.Logging
		}

		if caps.Experimental != nil {
			if union.Experimental == nil {
				union.Experimental = make(map[string]any)
			}
			for k, v := range caps.Experimental {
				if _, exists := union.Experimental[k]; !exists {
					union.Experimental[k] = v
				}
			}
		}
	}

	return union
}

// extractVariantHints pulls client variant hints out of the initialize
// request. Per SEP-2053 the client sends
//
//	capabilities.experimental[ExtensionID].variantHints
func extractVariantHints(req mcp.Request) VariantHints {
	params, _ := req.GetParams().(*mcp.InitializeParams)
	if params == nil || params.Capabilities == nil || params.Capabilities.Experimental == nil {
		return VariantHints{}
	}
	ext, ok := params.Capabilities.Experimental[ExtensionID]
	if !ok {
		return VariantHints{}
	}
	extMap, _ := ext.(map[string]any)
	vh, _ := extMap["variantHints"].(map[string]any)
	if vh == nil {
		return VariantHints{}
	}
	var hints VariantHints
	hints.Description, _ = vh["description"].(string)
	if h, ok := vh["hints"].(map[string]any); ok {
		hints.Hints = h
	}
	return hints
}

// enrichInitResult injects the ranked variant list into the initialize
// response's experimental capabilities.
func (s *Server) enrichInitResult(ctx context.Context, result mcp.Result, hints VariantHints) (mcp.Result, error) {
	initResult, ok := result.(*mcp.InitializeResult)
	if !ok {
		return result, nil
	}

	ranked := s.RankedVariants(ctx, hints)

	available := make([]map[string]any, len(ranked))
	for i, v := range ranked {
		variant := map[string]any{
			"id":          v.ID,
			"description": v.Description,
		}
		if v.Hints != nil {
			variant["hints"] = v.Hints
		}
		if v.Status != "" {
			variant["status"] = v.Status
		}
		if v.DeprecationInfo != nil {
			variant["deprecationInfo"] = v.DeprecationInfo
		}
		available[i] = variant
	}

	if initResult.Capabilities == nil {
		initResult.Capabilities = &mcp.ServerCapabilities{}
	}
	if initResult.Capabilities.Experimental == nil {
		initResult.Capabilities.Experimental = make(map[string]any)
	}
	initResult.Capabilities.Experimental[ExtensionID] = map[string]any{
		"availableVariants":     available,
		"moreVariantsAvailable": len(ranked) < len(s.variants),
	}

	return initResult, nil
}
