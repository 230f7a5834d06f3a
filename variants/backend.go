package variants

import (
	"context"
	"fmt"

	"github.com/cherrydra/mcpvariants/transport"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// backend abstracts how a variant reaches its backing MCP server. One
// implementation runs the server in-process, the other dials a remote
// endpoint.
type backend interface {
	// connect opens a connection for dispatching requests. frontSession
	// is nil in stateless mode.
	connect(ctx context.Context, variant ServerVariant, frontSession *mcp.ServerSession) (*conn, error)

	// capabilities probes the server's advertised capabilities with an
	// ephemeral connection.
	capabilities(ctx context.Context) (*mcp.ServerCapabilities, error)

	close() error
}

// conn holds the client session for one inner server plus its teardown.
type conn struct {
	session *mcp.ClientSession
	cleanup func()
}

func (c *conn) close() {
	c.session.Close()
	if c.cleanup != nil {
		c.cleanup()
	}
}

// proxyClient builds the client used to talk to an inner server. Progress
// and logging notifications are forwarded to the front session with the
// variant ID injected into _meta.
//
// List-changed and resource-updated notifications are dropped: the SDK's
// ServerSession only exposes NotifyProgress and Log, so there is no way to
// relay them to the front client. Inner servers are typically statically
// configured, so in practice nothing is lost.
func proxyClient(variant ServerVariant, frontSession *mcp.ServerSession) *mcp.Client {
	return mcp.NewClient(&mcp.Implementation{
		Name:    "variant-proxy-client",
		Version: "1.0.0",
	}, &mcp.ClientOptions{
		ProgressNotificationHandler: func(ctx context.Context, req *mcp.ProgressNotificationClientRequest) {
			if frontSession != nil {
				setVariantMeta(req.Params, variant.ID)
				_ = frontSession.NotifyProgress(ctx, req.Params)
			}
		},
		LoggingMessageHandler: func(ctx context.Context, req *mcp.LoggingMessageRequest) {
			if frontSession != nil {
				setVariantMeta(req.Params, variant.ID)
				_ = frontSession.Log(ctx, req.Params)
			}
		},
		ToolListChangedHandler:     func(context.Context, *mcp.ToolListChangedRequest) {},
		ResourceListChangedHandler: func(context.Context, *mcp.ResourceListChangedRequest) {},
		PromptListChangedHandler:   func(context.Context, *mcp.PromptListChangedRequest) {},
		ResourceUpdatedHandler:     func(context.Context, *mcp.ResourceUpdatedNotificationRequest) {},
	})
}

// setVariantMeta records the variant ID in a params' _meta map, keeping
// whatever metadata is already there.
func setVariantMeta(p mcp.Params, variantID string) {
	meta := p.GetMeta()
	if meta == nil {
		meta = map[string]any{}
		p.SetMeta(meta)
	}
	meta[MetaVariantKey] = variantID
}

// memoryBackend serves a variant from a co-located *mcp.Server over
// in-memory transports.
type memoryBackend struct {
	server *mcp.Server
}

func (b *memoryBackend) connect(ctx context.Context, variant ServerVariant, frontSession *mcp.ServerSession) (*conn, error) {
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := b.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect inner server: %w", err)
	}

	clientSession, err := proxyClient(variant, frontSession).Connect(ctx, clientTransport, nil)
	if err != nil {
		serverSession.Close()
		return nil, fmt.Errorf("connect proxy client: %w", err)
	}

	return &conn{
		session: clientSession,
		cleanup: func() {
			serverSession.Close()
		},
	}, nil
}

func (b *memoryBackend) capabilities(ctx context.Context) (*mcp.ServerCapabilities, error) {
	st, ct := mcp.NewInMemoryTransports()
	ss, err := b.server.Connect(ctx, st, nil)
	if err != nil {
		return nil, fmt.Errorf("connect inner server: %w", err)
	}

	c := mcp.NewClient(&mcp.Implementation{Name: "cap-probe", Version: "1.0.0"}, nil)
	cs, err := c.Connect(ctx, ct, nil)
	if err != nil {
		ss.Close()
		return nil, fmt.Errorf("probe capabilities: %w", err)
	}

	var caps *mcp.ServerCapabilities
	if ir := cs.InitializeResult(); ir != nil {
		caps = ir.Capabilities
	}

	cs.Close()
	ss.Close()
	return caps, nil
}

func (b *memoryBackend) close() error {
	return nil
}

// Remote describes how to reach a variant's backing server outside this
// process: a stdio command (stdio:///path or a bare path, Args appended)
// or a streamable HTTP endpoint (http:// or https://, Headers attached to
// every request as "Key: Value" lines).
type Remote struct {
	Endpoint string
	Args     []string
	Env      []string
	Headers  []string
}

// remoteBackend dials an external MCP server for every connection. Each
// front session gets its own backing session, so remote state stays
// session-scoped just like the in-memory case.
type remoteBackend struct {
	remote Remote
}

func (b *remoteBackend) transport() (mcp.Transport, error) {
	return transport.Endpoint(b.remote.Endpoint, transport.Options{
		Args:    b.remote.Args,
		Env:     b.remote.Env,
		Headers: b.remote.Headers,
		Silent:  true,
	})
}

func (b *remoteBackend) connect(ctx context.Context, variant ServerVariant, frontSession *mcp.ServerSession) (*conn, error) {
	t, err := b.transport()
	if err != nil {
		return nil, fmt.Errorf("remote transport: %w", err)
	}
	clientSession, err := proxyClient(variant, frontSession).Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connect remote server %s: %w", b.remote.Endpoint, err)
	}
	return &conn{session: clientSession}, nil
}

func (b *remoteBackend) capabilities(ctx context.Context) (*mcp.ServerCapabilities, error) {
	t, err := b.transport()
	if err != nil {
		return nil, fmt.Errorf("remote transport: %w", err)
	}
	c := mcp.NewClient(&mcp.Implementation{Name: "cap-probe", Version: "1.0.0"}, nil)
	cs, err := c.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("probe remote server %s: %w", b.remote.Endpoint, err)
	}
	var caps *mcp.ServerCapabilities
	if ir := cs.InitializeResult(); ir != nil {
		caps = ir.Capabilities
	}
	cs.Close()
	return caps, nil
}

func (b *remoteBackend) close() error {
	return nil
}
