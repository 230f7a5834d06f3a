package variants

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type diffInput struct {
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

type diffOutput struct {
	Diff string `json:"diff"`
}

func getDiff(_ context.Context, _ *mcp.CallToolRequest, in diffInput) (*mcp.CallToolResult, diffOutput, error) {
	return nil, diffOutput{Diff: "--- a/client.go\n+++ b/client.go"}, nil
}

type reviewInput struct {
	Repo string `json:"repo"`
}

type reviewOutput struct {
	Comments []string `json:"comments"`
}

func reviewPR(_ context.Context, _ *mcp.CallToolRequest, in reviewInput) (*mcp.CallToolResult, reviewOutput, error) {
	return nil, reviewOutput{Comments: []string{"looks good"}}, nil
}

type summarizeInput struct {
	Text string `json:"text"`
}

type summarizeOutput struct {
	Summary string `json:"summary"`
}

func summarize(_ context.Context, _ *mcp.CallToolRequest, in summarizeInput) (*mcp.CallToolResult, summarizeOutput, error) {
	return nil, summarizeOutput{Summary: in.Text[:min(len(in.Text), 50)]}, nil
}

type lookupInput struct {
	Query string `json:"query"`
}

type lookupOutput struct {
	Result string `json:"result"`
}

func lookup(_ context.Context, _ *mcp.CallToolRequest, in lookupInput) (*mcp.CallToolResult, lookupOutput, error) {
	return nil, lookupOutput{Result: "result for: " + in.Query}, nil
}

// newTestVariantServer builds a two-variant server:
//   - "review": get_diff, review_pr
//   - "compact": summarize, lookup
func newTestVariantServer() *Server {
	review := mcp.NewServer(&mcp.Implementation{Name: "review-server", Version: "v1.0.0"}, nil)
	mcp.AddTool(review, &mcp.Tool{Name: "get_diff", Description: "Fetch a PR diff"}, getDiff)
	mcp.AddTool(review, &mcp.Tool{Name: "review_pr", Description: "Review a pull request"}, reviewPR)

	compact := mcp.NewServer(&mcp.Implementation{Name: "compact-server", Version: "v1.0.0"}, nil)
	mcp.AddTool(compact, &mcp.Tool{Name: "summarize", Description: "Summarize text"}, summarize)
	mcp.AddTool(compact, &mcp.Tool{Name: "lookup", Description: "Quick lookup"}, lookup)

	return NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0.0"}).
		WithVariant(ServerVariant{
			ID:          "review",
			Description: "Optimized for code review workflows",
			Status:      Stable,
		}, review, 0).
		WithVariant(ServerVariant{
			ID:          "compact",
			Description: "Minimal token usage",
			Status:      Experimental,
		}, compact, 1)
}

// connectTestClient runs vs over in-memory stdio-like transports and
// returns a connected client session.
func connectTestClient(t *testing.T, vs *Server) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	errCh := make(chan error, 1)
	go func() {
		errCh <- vs.Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		session.Close()
		cancel()
		<-errCh
	})

	return session
}

func toolNames(tools []*mcp.Tool) []string {
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	return names
}

type variantsPayload struct {
	AvailableVariants []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Status      string `json:"status"`
	} `json:"availableVariants"`
	MoreVariantsAvailable bool `json:"moreVariantsAvailable"`
}

func decodeVariantsPayload(t *testing.T, initResult *mcp.InitializeResult) variantsPayload {
	t.Helper()
	require.NotNil(t, initResult)
	require.NotNil(t, initResult.Capabilities)

	ext, ok := initResult.Capabilities.Experimental[ExtensionID]
	require.True(t, ok, "expected experimental capability %q", ExtensionID)

	raw, err := json.Marshal(ext)
	require.NoError(t, err)

	var payload variantsPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func TestEndToEnd(t *testing.T) {
	vs := newTestVariantServer()
	session := connectTestClient(t, vs)
	ctx := context.Background()

	payload := decodeVariantsPayload(t, session.InitializeResult())
	require.Len(t, payload.AvailableVariants, 2)
	// Priority ranking: review (0, stable) before compact (1, experimental).
	assert.Equal(t, "review", payload.AvailableVariants[0].ID)
	assert.Equal(t, "compact", payload.AvailableVariants[1].ID)
	assert.False(t, payload.MoreVariantsAvailable)

	reviewTools, err := session.ListTools(ctx, &mcp.ListToolsParams{
		Meta: mcp.Meta{MetaVariantKey: "review"},
	})
	require.NoError(t, err)
	names := toolNames(reviewTools.Tools)
	assert.Contains(t, names, "get_diff")
	assert.Contains(t, names, "review_pr")
	assert.NotContains(t, names, "summarize")

	compactTools, err := session.ListTools(ctx, &mcp.ListToolsParams{
		Meta: mcp.Meta{MetaVariantKey: "compact"},
	})
	require.NoError(t, err)
	names = toolNames(compactTools.Tools)
	assert.Contains(t, names, "summarize")
	assert.Contains(t, names, "lookup")
	assert.NotContains(t, names, "get_diff")

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "get_diff",
		Meta: mcp.Meta{MetaVariantKey: "review"},
		Arguments: map[string]json.RawMessage{
			"repo":   json.RawMessage(`"octo/spoon"`),
			"number": json.RawMessage(`42`),
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Content)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name: "summarize",
		Meta: mcp.Meta{MetaVariantKey: "compact"},
		Arguments: map[string]json.RawMessage{
			"text": json.RawMessage(`"a long text that wants shortening"`),
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Content)

	// Variants are isolated: review tools are unreachable via compact.
	_, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name: "get_diff",
		Meta: mcp.Meta{MetaVariantKey: "compact"},
		Arguments: map[string]json.RawMessage{
			"repo":   json.RawMessage(`"octo/spoon"`),
			"number": json.RawMessage(`42`),
		},
	})
	assert.Error(t, err)

	_, err = session.ListTools(ctx, &mcp.ListToolsParams{
		Meta: mcp.Meta{MetaVariantKey: "nonexistent"},
	})
	assert.Error(t, err)
}

func TestVariantUnawareClient(t *testing.T) {
	vs := newTestVariantServer()
	session := connectTestClient(t, vs)
	ctx := context.Background()

	// The server advertises variants regardless of client support.
	payload := decodeVariantsPayload(t, session.InitializeResult())
	require.Len(t, payload.AvailableVariants, 2)

	// Requests without _meta land on the default variant.
	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := toolNames(tools.Tools)
	assert.Contains(t, names, "get_diff")
	assert.Contains(t, names, "review_pr")
	assert.NotContains(t, names, "summarize")
	assert.NotContains(t, names, "lookup")

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "review_pr",
		Arguments: map[string]json.RawMessage{
			"repo": json.RawMessage(`"octo/spoon"`),
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Content)

	// A tool that only lives on a non-default variant stays unreachable.
	_, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name: "summarize",
		Arguments: map[string]json.RawMessage{
			"text": json.RawMessage(`"hello"`),
		},
	})
	assert.Error(t, err)
}

func connectHTTPTestClient(t *testing.T, httpSrv *httptest.Server) *mcp.ClientSession {
	t.Helper()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-http-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{
		Endpoint: httpSrv.URL,
	}, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		session.Close()
	})
	return session
}

func TestStreamableHTTP(t *testing.T) {
	vs := newTestVariantServer()
	httpSrv := httptest.NewServer(NewStreamableHTTPHandler(vs, nil))
	t.Cleanup(httpSrv.Close)

	session1 := connectHTTPTestClient(t, httpSrv)
	session2 := connectHTTPTestClient(t, httpSrv)
	ctx := context.Background()

	for _, session := range []*mcp.ClientSession{session1, session2} {
		decodeVariantsPayload(t, session.InitializeResult())
	}

	// Two clients route to different variants concurrently.
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		tools, err := session1.ListTools(ctx, &mcp.ListToolsParams{
			Meta: mcp.Meta{MetaVariantKey: "review"},
		})
		if !assert.NoError(t, err) {
			return
		}
		names := toolNames(tools.Tools)
		assert.Contains(t, names, "get_diff")
		assert.NotContains(t, names, "summarize")
	}()

	go func() {
		defer wg.Done()
		tools, err := session2.ListTools(ctx, &mcp.ListToolsParams{
			Meta: mcp.Meta{MetaVariantKey: "compact"},
		})
		if !assert.NoError(t, err) {
			return
		}
		names := toolNames(tools.Tools)
		assert.Contains(t, names, "summarize")
		assert.NotContains(t, names, "get_diff")
	}()

	wg.Wait()

	_, err := session1.CallTool(ctx, &mcp.CallToolParams{
		Name: "get_diff",
		Meta: mcp.Meta{MetaVariantKey: "compact"},
		Arguments: map[string]json.RawMessage{
			"repo":   json.RawMessage(`"octo/spoon"`),
			"number": json.RawMessage(`1`),
		},
	})
	assert.Error(t, err, "review tool should not be reachable via compact variant")
}

func TestStreamableHTTPStateless(t *testing.T) {
	vs := newTestVariantServer()
	httpSrv := httptest.NewServer(NewStreamableHTTPHandler(vs, &mcp.StreamableHTTPOptions{Stateless: true}))
	t.Cleanup(httpSrv.Close)

	session := connectHTTPTestClient(t, httpSrv)
	ctx := context.Background()

	decodeVariantsPayload(t, session.InitializeResult())

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{
		Meta: mcp.Meta{MetaVariantKey: "review"},
	})
	require.NoError(t, err)
	names := toolNames(tools.Tools)
	assert.Contains(t, names, "get_diff")
	assert.NotContains(t, names, "summarize")

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "summarize",
		Meta: mcp.Meta{MetaVariantKey: "compact"},
		Arguments: map[string]json.RawMessage{
			"text": json.RawMessage(`"stateless test"`),
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Content)
}

// TestRemoteVariant serves one inner server over streamable HTTP and
// registers it as a remote variant next to an in-memory one.
func TestRemoteVariant(t *testing.T) {
	review := mcp.NewServer(&mcp.Implementation{Name: "review-server", Version: "v1.0.0"}, nil)
	mcp.AddTool(review, &mcp.Tool{Name: "get_diff", Description: "Fetch a PR diff"}, getDiff)

	compact := mcp.NewServer(&mcp.Implementation{Name: "compact-server", Version: "v1.0.0"}, nil)
	mcp.AddTool(compact, &mcp.Tool{Name: "summarize", Description: "Summarize text"}, summarize)

	innerSrv := httptest.NewServer(mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return compact },
		nil,
	))
	t.Cleanup(innerSrv.Close)

	vs := NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0.0"}).
		WithVariant(ServerVariant{
			ID:          "review",
			Description: "Optimized for code review workflows",
		}, review, 0).
		WithRemoteVariant(ServerVariant{
			ID:          "compact",
			Description: "Minimal token usage, served remotely",
		}, Remote{Endpoint: innerSrv.URL}, 1)

	session := connectTestClient(t, vs)
	ctx := context.Background()

	payload := decodeVariantsPayload(t, session.InitializeResult())
	require.Len(t, payload.AvailableVariants, 2)

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{
		Meta: mcp.Meta{MetaVariantKey: "compact"},
	})
	require.NoError(t, err)
	assert.Contains(t, toolNames(tools.Tools), "summarize")

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "summarize",
		Meta: mcp.Meta{MetaVariantKey: "compact"},
		Arguments: map[string]json.RawMessage{
			"text": json.RawMessage(`"served from the remote backend"`),
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Content)
}
