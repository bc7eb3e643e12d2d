package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/i-dream-of-ai/sparkmango/pkg/budget"
	"github.com/i-dream-of-ai/sparkmango/pkg/cache"
	"github.com/i-dream-of-ai/sparkmango/pkg/generator"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
	"github.com/i-dream-of-ai/sparkmango/pkg/tracker"
)

// ProjectBuilder generates a contract server. *generator.Pipeline implements it.
type ProjectBuilder interface {
	BuildProject(ctx context.Context, req generator.ProjectRequest) (generator.ProjectResult, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Logs must not go to the protocol stream.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPricing enables cost estimates in the cost report tool.
func WithPricing(p []models.ModelPricing) Option {
	return func(s *Server) { s.pricing = p }
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	tracker  tracker.Tracker
	cache    cache.Store
	enforcer *budget.Enforcer
	builder  ProjectBuilder
	pricing  []models.ModelPricing
	version  string
	logger   *zap.Logger
}

// New creates a new MCP Server. cache, enforcer and builder may be nil; the
// tools that need them then report that they are not configured.
func New(t tracker.Tracker, c cache.Store, enforcer *budget.Enforcer, builder ProjectBuilder, version string, opts ...Option) *Server {
	s := &Server{
		tracker:  t,
		cache:    c,
		enforcer: enforcer,
		builder:  builder,
		version:  version,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, *newError(nil, CodeParseError, "parse error"))
			continue
		}

		if req.JSONRPC != jsonrpcVersion || req.Method == "" {
			s.writeResponse(w, *newError(req.ID, CodeInvalidRequest, "invalid request"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			// notification, no response
			continue
		}
		s.writeResponse(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "ping":
		return newResult(req.ID, map[string]any{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return newError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return newResult(req.ID, InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
		Capabilities:    map[string]any{"tools": map[string]any{}},
	})
}

func (s *Server) handleToolsList(req *Request) *Response {
	return newResult(req.ID, ToolsListResult{Tools: allTools})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return newResult(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.logger.Debug("tool call", zap.String("tool", params.Name))
	result := handler(ctx, s, params.Arguments)
	if result.IsError {
		s.logger.Warn("tool failed", zap.String("tool", params.Name), zap.String("detail", result.Content[0].Text))
	}
	return newResult(req.ID, result)
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}
