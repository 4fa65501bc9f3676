// Package mcpadapter exposes the counselling tools over the Model Context
// Protocol so assistants can query tables and the knowledge base directly.
package mcpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

const (
	serverName    = "studynet-counselor"
	serverVersion = "0.1.0"
)

var ErrMissingToolExecutor = errors.New("mcp: tool executor is required")

// ToolExecutor runs one named agent tool outside the agent loop.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, input map[string]interface{}) (string, error)
}

// Ports are the use cases the server drives. Queries is optional and
// switches the ask tool off when nil.
type Ports struct {
	Tools   ToolExecutor
	Queries ports.QueryProcessor
}

type Server struct {
	ports Ports
	mcp   *server.MCPServer
}

func NewServer(p Ports) (*Server, error) {
	if p.Tools == nil {
		return nil, ErrMissingToolExecutor
	}
	s := &Server{
		ports: p,
		mcp:   server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false), server.WithRecovery()),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is done or the client hangs up.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// RunHTTP serves the streamable HTTP transport on addr.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewStreamableHTTPServer(s.mcp),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mcp http server: %w", err)
	}
	return nil
}
