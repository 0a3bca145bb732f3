package tools

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ClientName identifies the invoker's MCP client to the in-process
// server during the initialize handshake.
const ClientName = "mazerunner-invoker"

// Connection pairs a running tool server with an already-connected
// client session, wired over an in-memory transport (no network, no
// subprocess — the dispatcher lives in the same process as its caller).
type Connection struct {
	Session *mcpsdk.ClientSession
	cancel  context.CancelFunc
}

// Close ends the server's Run loop and closes the client session.
func (c *Connection) Close() error {
	err := c.Session.Close()
	c.cancel()
	return err
}

// Connect starts server on an in-memory transport and connects a fresh
// client session to it — an in-memory MCP transport pair wired as the
// server's sole and permanent transport here, rather than a test double.
func Connect(ctx context.Context, server *mcpsdk.Server) (*Connection, error) {
	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		_ = server.Run(runCtx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name: ClientName, Version: "1",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connecting to in-process tool server: %w", err)
	}

	return &Connection{Session: session, cancel: cancel}, nil
}

// ListTools returns the server's advertised tools, unconverted — callers
// in pkg/llmclient translate these into the LLM's tool-definition
// vocabulary.
func (c *Connection) ListTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	result, err := c.Session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a named tool with JSON-encodable arguments.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	result, err := c.Session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("calling tool %q: %w", name, err)
	}
	return result, nil
}
