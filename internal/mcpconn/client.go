package mcpconn

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/snagasuri/deebo-prototype/internal/toolreg"
)

// ClientName and ClientVersion identify deebo in the MCP handshake.
const (
	ClientName    = "deebo"
	ClientVersion = "1.0.0"
)

// Client is a ready MCP tool connection.
type Client interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

type mcpClient struct {
	c *client.Client
}

// Wrap adapts an initialized mcp-go client.
func Wrap(c *client.Client) Client {
	return &mcpClient{c: c}
}

func (m *mcpClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return m.c.CallTool(ctx, req)
}

func (m *mcpClient) Close() error {
	return m.c.Close()
}

// StdioDialer launches the resolved command as a stdio MCP server with env
// appended to the inherited environment. The server's stderr is drained
// into logger at debug level for as long as the process lives.
func StdioDialer(env []string, logger *zap.Logger) Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, tool toolreg.Resolved) (Client, error) {
		c, err := client.NewStdioMCPClient(tool.Command, env, tool.Args...)
		if err != nil {
			return nil, fmt.Errorf("starting %s: %w", tool.Command, err)
		}
		if stderr, ok := client.GetStderr(c); ok {
			go drainStderr(stderr, logger.With(zap.String("tool", tool.Name)))
		}
		if err := Initialize(ctx, c); err != nil {
			_ = c.Close()
			return nil, err
		}
		return Wrap(c), nil
	}
}

// drainStderr reads r until it is closed. A tool server blocks once its
// stderr pipe fills, so every byte must be consumed.
func drainStderr(r io.Reader, logger *zap.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		logger.Debug("tool server stderr", zap.String("line", sc.Text()))
	}
	if sc.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

// Initialize performs the MCP initialize handshake.
func Initialize(ctx context.Context, c *client.Client) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: ClientVersion}
	if _, err := c.Initialize(ctx, req); err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}
	return nil
}
