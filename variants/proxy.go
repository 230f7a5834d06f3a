package variants

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// session is the per-client state of the front server: one inner
// connection per variant plus the router over them. Stateless mode uses a
// single shared instance.
type session struct {
	router *router
}

func (ss *session) close() {
	for _, c := range ss.router.connections {
		c.close()
	}
}

// newSession connects every backend and fixes the default variant from the
// ranking computed with the client's initialize hints, so later requests
// without a _meta selection resolve to the same default initialize
// advertised.
func (s *Server) newSession(ctx context.Context, frontSession *mcp.ServerSession, hints VariantHints) (*session, error) {
	connections := make(map[string]*conn, len(s.variants))

	for _, e := range s.variants {
		c, err := e.backend.connect(ctx, e.variant, frontSession)
		if err != nil {
			for _, c := range connections {
				c.close()
			}
			return nil, err
		}
		connections[e.variant.ID] = c
	}

	var defaultID string
	if ranked := s.RankedVariants(ctx, hints); len(ranked) > 0 {
		defaultID = ranked[0].ID
	}

	return &session{
		router: &router{
			server:      s,
			connections: connections,
			defaultID:   defaultID,
		},
	}, nil
}

// middleware manages per-session state and delegates routable methods to
// the session's router. When shared is non-nil (stateless mode) every
// request uses the shared connections instead.
func (s *Server) middleware(sessions *sync.Map, shared *session) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			ss := req.GetSession().(*mcp.ServerSession)

			if method == "initialize" {
				// The SDK negotiates capabilities first.
				result, err := next(ctx, method, req)
				if err != nil {
					return nil, err
				}

				hints := extractVariantHints(req)

				if shared == nil {
					state, err := s.newSession(ctx, ss, hints)
					if err != nil {
						return nil, err
					}
					sessions.Store(ss, state)

					go func() {
						ss.Wait()
						sessions.Delete(ss)
						state.close()
					}()
				}

				return s.enrichInitResult(ctx, result, hints)
			}

			if v, ok := sessions.Load(ss); ok {
				return v.(*session).router.handle(ctx, method, req, next)
			}
			if shared != nil {
				return shared.router.handle(ctx, method, req, next)
			}
			return next(ctx, method, req)
		}
	}
}

// router sends requests to inner variant servers.
type router struct {
	server      *Server
	connections map[string]*conn
	defaultID   string
}

// handle routes variant-scoped methods; anything else passes through.
func (r *router) handle(ctx context.Context, method string, req mcp.Request, next mcp.MethodHandler) (mcp.Result, error) {
	switch method {
	case "tools/list":
		return r.listTools(ctx, req)
	case "resources/list":
		return r.listResources(ctx, req)
	case "prompts/list":
		return r.listPrompts(ctx, req)
	case "resources/templates/list":
		return r.listResourceTemplates(ctx, req)
	case "tools/call":
		return r.callTool(ctx, req)
	case "resources/read":
		return r.readResource(ctx, req)
	case "prompts/get":
		return r.getPrompt(ctx, req)
	case "resources/subscribe":
		return r.subscribe(ctx, req)
	case "resources/unsubscribe":
		return r.unsubscribe(ctx, req)
	case "completion/complete":
		return r.complete(ctx, req)
	default:
		return next(ctx, method, req)
	}
}

// variantIDFromMeta reads the variant selection from the request _meta.
// Guards against typed-nil params (e.g. (*ListToolsParams)(nil) inside the
// Params interface), which the SDK produces for requests without params.
func variantIDFromMeta(req mcp.Request) string {
	params := req.GetParams()
	if params == nil {
		return ""
	}
	if v := reflect.ValueOf(params); v.Kind() == reflect.Ptr && v.IsNil() {
		return ""
	}
	meta := params.GetMeta()
	if meta == nil {
		return ""
	}
	id, _ := meta[MetaVariantKey].(string)
	return id
}

// resolve picks the target variant for a request: explicit _meta selection
// first, then the session's default.
func (r *router) resolve(ctx context.Context, req mcp.Request) (string, *mcp.ClientSession, error) {
	variantID := variantIDFromMeta(req)
	if variantID == "" {
		variantID = r.defaultID
		if variantID == "" {
			return "", nil, errors.New("no variants available")
		}
	}

	c, ok := r.connections[variantID]
	if !ok {
		return "", nil, r.invalidVariantError(ctx, variantID)
	}
	return variantID, c.session, nil
}

// invalidVariantError builds the InvalidParams error returned for an
// unknown variant selection, listing what is available.
func (r *router) invalidVariantError(ctx context.Context, requested string) error {
	ranked := r.server.RankedVariants(ctx, VariantHints{})
	ids := make([]string, len(ranked))
	for i, v := range ranked {
		ids[i] = v.ID
	}

	data, err := json.Marshal(map[string]any{
		"requestedVariant":  requested,
		"availableVariants": ids,
	})
	if err != nil {
		data = []byte("{}")
	}
	return &jsonrpc.Error{
		Code:    jsonrpc.CodeInvalidParams,
		Message: "Invalid server variant",
		Data:    json.RawMessage(data),
	}
}

// enrichError adds activeVariant to resolution-class errors (InvalidParams,
// MethodNotFound) so clients can tell which variant failed to resolve a
// name, cursor, or subscription. Business-logic errors pass through as-is.
func enrichError(err error, variantID string) error {
	var jErr *jsonrpc.Error
	if !errors.As(err, &jErr) {
		return err
	}

	switch jErr.Code {
	case jsonrpc.CodeInvalidParams, jsonrpc.CodeMethodNotFound:
	default:
		return err
	}

	// Copy rather than mutate the original.
	data := make(map[string]any)
	if len(jErr.Data) > 0 {
		_ = json.Unmarshal(jErr.Data, &data)
	}
	data["activeVariant"] = variantID

	enriched := &jsonrpc.Error{
		Code:    jErr.Code,
		Message: jErr.Message,
	}
	if encoded, mErr := json.Marshal(data); mErr == nil {
		enriched.Data = json.RawMessage(encoded)
	}
	return enriched
}

func (r *router) listTools(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	p, _ := req.GetParams().(*mcp.ListToolsParams)
	if p != nil && p.Cursor != "" {
		if p.Cursor, err = unwrapCursor(p.Cursor, variantID); err != nil {
			return nil, err
		}
	}
	result, err := session.ListTools(ctx, p)
	if err != nil {
		return nil, enrichError(err, variantID)
	}
	if result != nil && result.NextCursor != "" {
		result.NextCursor = wrapCursor(result.NextCursor, variantID)
	}
	return result, nil
}

func (r *router) listResources(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	p, _ := req.GetParams().(*mcp.ListResourcesParams)
	if p != nil && p.Cursor != "" {
		if p.Cursor, err = unwrapCursor(p.Cursor, variantID); err != nil {
			return nil, err
		}
	}
	result, err := session.ListResources(ctx, p)
	if err != nil {
		return nil, enrichError(err, variantID)
	}
	if result != nil && result.NextCursor != "" {
		result.NextCursor = wrapCursor(result.NextCursor, variantID)
	}
	return result, nil
}

func (r *router) listPrompts(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	p, _ := req.GetParams().(*mcp.ListPromptsParams)
	if p != nil && p.Cursor != "" {
		if p.Cursor, err = unwrapCursor(p.Cursor, variantID); err != nil {
			return nil, err
		}
	}
	result, err := session.ListPrompts(ctx, p)
	if err != nil {
		return nil, enrichError(err, variantID)
	}
	if result != nil && result.NextCursor != "" {
		result.NextCursor = wrapCursor(result.NextCursor, variantID)
	}
	return result, nil
}

func (r *router) listResourceTemplates(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	p, _ := req.GetParams().(*mcp.ListResourceTemplatesParams)
	if p != nil && p.Cursor != "" {
		if p.Cursor, err = unwrapCursor(p.Cursor, variantID); err != nil {
			return nil, err
		}
	}
	result, err := session.ListResourceTemplates(ctx, p)
	if err != nil {
		return nil, enrichError(err, variantID)
	}
	if result != nil && result.NextCursor != "" {
		result.NextCursor = wrapCursor(result.NextCursor, variantID)
	}
	return result, nil
}

func (r *router) callTool(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	// The server SDK delivers tools/call params as *CallToolParamsRaw with
	// raw JSON arguments; convert for the client-side call.
	raw, _ := req.GetParams().(*mcp.CallToolParamsRaw)
	if raw == nil {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "missing or invalid tools/call params",
		}
	}
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Meta:      raw.Meta,
		Name:      raw.Name,
		Arguments: raw.Arguments,
	})
	if err != nil {
		return nil, enrichError(err, variantID)
	}
	return result, nil
}

func (r *router) readResource(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	p, _ := req.GetParams().(*mcp.ReadResourceParams)
	if p == nil {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "missing or invalid resources/read params",
		}
	}
	result, err := session.ReadResource(ctx, p)
	if err != nil {
		return nil, enrichError(err, variantID)
	}
	return result, nil
}

func (r *router) getPrompt(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	p, _ := req.GetParams().(*mcp.GetPromptParams)
	if p == nil {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "missing or invalid prompts/get params",
		}
	}
	result, err := session.GetPrompt(ctx, p)
	if err != nil {
		return nil, enrichError(err, variantID)
	}
	return result, nil
}

func (r *router) subscribe(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	p, _ := req.GetParams().(*mcp.SubscribeParams)
	if p == nil {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "missing or invalid resources/subscribe params",
		}
	}
	if err := session.Subscribe(ctx, p); err != nil {
		return nil, enrichError(err, variantID)
	}
	return nil, nil
}

// unsubscribe forwards resources/unsubscribe. Servers keep accepting
// unsubscribes for existing subscription IDs even when the underlying
// resource is gone.
func (r *router) unsubscribe(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	p, _ := req.GetParams().(*mcp.UnsubscribeParams)
	if p == nil {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "missing or invalid resources/unsubscribe params",
		}
	}
	if err := session.Unsubscribe(ctx, p); err != nil {
		return nil, enrichError(err, variantID)
	}
	return nil, nil
}

func (r *router) complete(ctx context.Context, req mcp.Request) (mcp.Result, error) {
	variantID, session, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	p, _ := req.GetParams().(*mcp.CompleteParams)
	if p == nil {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "missing or invalid completion/complete params",
		}
	}
	result, err := session.Complete(ctx, p)
	if err != nil {
		return nil, enrichError(err, variantID)
	}
	return result, nil
}
