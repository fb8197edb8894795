// Package mcp exposes the gatekeeper over a JSON-RPC stream: tool calls
// for execution and checking, a resource for the audit trail, and the
// approval methods that resolve pending confirmations.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sameehj/gate/pkg/gatekeeper"
	"github.com/sameehj/gate/pkg/system"
	"github.com/sameehj/gate/pkg/version"
)

const auditResourceURI = "audit://log"

type Server struct {
	gate    *gatekeeper.Gatekeeper
	profile *system.Profile
	logger  *slog.Logger
}

func NewServer(gate *gatekeeper.Gatekeeper, profile *system.Profile) *Server {
	return &Server{gate: gate, profile: profile}
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Serve reads requests from reader and writes responses to writer until
// EOF. Tool calls may block on confirmation, so each request is handled on
// its own goroutine and writes are serialized.
func (s *Server) Serve(ctx context.Context, reader io.Reader, writer io.Writer) error {
	bufReader := bufio.NewReader(reader)
	out := &syncWriter{w: bufio.NewWriter(writer)}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		payload, err := readMessage(bufReader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logError("rpc_read_failed", "error", err)
			return err
		}

		var req rpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			s.logWarn("rpc_parse_error", "error", err)
			_ = out.writeError(req.ID, -32700, "parse error", err.Error())
			continue
		}
		if req.Method == "" {
			_ = out.writeError(req.ID, -32600, "invalid request", "missing method")
			continue
		}

		wg.Add(1)
		go func(req rpcRequest) {
			defer wg.Done()
			s.dispatch(ctx, req, out)
		}(req)
	}
}

// ServeStdio serves the protocol over stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest, out *syncWriter) {
	switch req.Method {
	case "initialize":
		_ = out.writeResult(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "gate",
				"version": version.Version,
				"host":    s.profile,
			},
		})
	case "tools/list":
		_ = out.writeResult(req.ID, map[string]any{"tools": toolDescriptors()})
	case "tools/call":
		s.handleToolCall(ctx, req, out)
	case "resources/list":
		_ = out.writeResult(req.ID, map[string]any{"resources": []Resource{{
			URI:         auditResourceURI,
			Name:        "Audit log",
			Description: "Append-only record of every execution attempt",
			MimeType:    "text/plain",
		}}})
	case "resources/read":
		s.handleResourceRead(req, out)
	case "gate/approvals/list":
		_ = out.writeResult(req.ID, map[string]any{"pending": s.gate.Broker().Pending()})
	case "gate/approvals/resolve":
		s.handleApprovalResolve(req, out)
	case "gate/policy/reload":
		if err := s.gate.ReloadPolicy(); err != nil {
			_ = out.writeError(req.ID, -32020, "reload failed", err.Error())
			return
		}
		_ = out.writeResult(req.ID, map[string]any{"commands": s.gate.ListAllowedCommands()})
	default:
		_ = out.writeError(req.ID, -32601, "method not found", req.Method)
	}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type commandArgs struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

type approvalResolveParams struct {
	ID      string `json:"id"`
	Approve bool   `json:"approve"`
}

func (s *Server) handleToolCall(ctx context.Context, req rpcRequest, out *syncWriter) {
	var call toolCallParams
	if err := json.Unmarshal(req.Params, &call); err != nil {
		_ = out.writeError(req.ID, -32602, "invalid params", err.Error())
		return
	}

	switch call.Name {
	case "execute_command":
		var args commandArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			_ = out.writeError(req.ID, -32602, "invalid params", err.Error())
			return
		}
		output, err := s.gate.Execute(ctx, args.Command, args.Args)
		if err != nil {
			s.logWarn("execute_rejected", "command", args.Command, "error", err)
			_ = out.writeResult(req.ID, toolError(err))
			return
		}
		_ = out.writeResult(req.ID, toolText(output))
	case "check_command":
		var args commandArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			_ = out.writeError(req.ID, -32602, "invalid params", err.Error())
			return
		}
		if err := s.gate.Check(args.Command, args.Args); err != nil {
			_ = out.writeResult(req.ID, toolError(err))
			return
		}
		_ = out.writeResult(req.ID, toolText("allowed"))
	case "list_allowed_commands":
		_ = out.writeResult(req.ID, toolText(strings.Join(s.gate.ListAllowedCommands(), "\n")))
	default:
		_ = out.writeError(req.ID, -32601, "tool not found", call.Name)
	}
}

func (s *Server) handleResourceRead(req rpcRequest, out *syncWriter) {
	var params resourceReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		_ = out.writeError(req.ID, -32602, "invalid params", err.Error())
		return
	}
	if params.URI != auditResourceURI {
		_ = out.writeError(req.ID, -32004, "resource not found", params.URI)
		return
	}
	text, err := s.gate.AuditText(0)
	if err != nil {
		_ = out.writeError(req.ID, -32030, "audit read failed", err.Error())
		return
	}
	_ = out.writeResult(req.ID, map[string]any{
		"contents": []map[string]any{{
			"uri":      auditResourceURI,
			"mimeType": "text/plain",
			"text":     text,
		}},
	})
}

func (s *Server) handleApprovalResolve(req rpcRequest, out *syncWriter) {
	var params approvalResolveParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		_ = out.writeError(req.ID, -32602, "invalid params", err.Error())
		return
	}
	if err := s.gate.Broker().Resolve(params.ID, params.Approve); err != nil {
		_ = out.writeError(req.ID, -32010, "resolve failed", err.Error())
		return
	}
	_ = out.writeResult(req.ID, map[string]any{"id": params.ID, "approved": params.Approve})
}

func toolDescriptors() []Tool {
	commandSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Command name from the allow-list"},
			"args":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"command"},
	}
	return []Tool{
		{
			Name:        "execute_command",
			Description: "Execute an allow-listed command after validation and human confirmation",
			InputSchema: commandSchema,
		},
		{
			Name:        "check_command",
			Description: "Check whether a command would pass validation without executing it",
			InputSchema: commandSchema,
		},
		{
			Name:        "list_allowed_commands",
			Description: "List the commands the gatekeeper may execute",
			InputSchema: map[string]any{"type": "object"},
		},
	}
}

func toolText(text string) ToolResult {
	return ToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}

func toolError(err error) ToolResult {
	return ToolResult{Content: []ToolContent{{Type: "text", Text: err.Error()}}, IsError: true}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// syncWriter serializes responses from concurrent handlers onto one
// buffered stream.
type syncWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (s *syncWriter) writeResult(id interface{}, result interface{}) error {
	if id == nil {
		return nil
	}
	return s.write(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *syncWriter) writeError(id interface{}, code int, message string, data interface{}) error {
	if id == nil {
		return nil
	}
	return s.write(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}})
}

func (s *syncWriter) write(resp rpcResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	return s.w.Flush()
}

// readMessage accepts Content-Length framed payloads and falls back to
// bare JSON lines for hand-driven sessions.
func readMessage(r *bufio.Reader) ([]byte, error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil && len(line) == 0 {
			return nil, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "{") {
			return []byte(trimmed), nil
		}

		contentLength := 0
		if length, ok := parseContentLength(trimmed); ok {
			contentLength = length
		}
		for {
			headerLine, readErr := r.ReadString('\n')
			if readErr != nil && len(headerLine) == 0 {
				return nil, readErr
			}
			header := strings.TrimRight(headerLine, "\r\n")
			if header == "" {
				break
			}
			if length, ok := parseContentLength(header); ok {
				contentLength = length
			}
		}
		if contentLength <= 0 {
			return nil, fmt.Errorf("missing Content-Length")
		}

		payload := make([]byte, contentLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

func parseContentLength(header string) (int, bool) {
	if !strings.HasPrefix(strings.ToLower(header), "content-length:") {
		return 0, false
	}
	value := strings.TrimSpace(strings.SplitN(header, ":", 2)[1])
	length, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return length, true
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
