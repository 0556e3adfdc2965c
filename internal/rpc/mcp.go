package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// ProtocolVersion is the MCP revision offered when the client names none
const ProtocolVersion = "2024-11-05"

// AskToolName is the single tool exposed through tools/list
const AskToolName = "ask"

// ToolDefinition describes one tool in tools/list
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolContent is one block of a tool result
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the tools/call result. Forwarding failures are reported here
// with IsError set rather than as JSON-RPC errors.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError"`
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func askTool() ToolDefinition {
	return ToolDefinition{
		Name:        AskToolName,
		Description: "Asks a question to another LLM and returns its answer unmodified.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"llm": map[string]interface{}{
					"type":        "string",
					"description": "Alias of a configured provider",
					"pattern":     "^[a-zA-Z0-9_-]+$",
				},
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "Prompt forwarded verbatim",
				},
				"attachment": map[string]interface{}{
					"type":        "object",
					"description": "Optional file sent with the prompt",
					"properties": map[string]interface{}{
						"name":      map[string]interface{}{"type": "string"},
						"mime_type": map[string]interface{}{"type": "string"},
						"data":      map[string]interface{}{"type": "string", "contentEncoding": "base64"},
					},
					"required": []string{"mime_type", "data"},
				},
			},
			"required": []string{"llm", "prompt"},
		},
	}
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("invalid initialize params: %v", err)
		}
	}

	version := p.ProtocolVersion
	if version == "" {
		version = ProtocolVersion
	}

	s.logger.Info("client initializing",
		zap.String("client", p.ClientInfo.Name),
		zap.String("client_version", p.ClientInfo.Version),
		zap.String("protocol_version", version))

	return map[string]interface{}{
		"protocolVersion": version,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{"listChanged": false},
		},
		"serverInfo": map[string]string{
			"name":    s.info.Name,
			"version": s.info.Version,
		},
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.logger.Info("client initialized")
	return nil, nil
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return struct{}{}, nil
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"tools": []ToolDefinition{askTool()},
	}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p toolCallParams
	if len(params) == 0 {
		return nil, invalidParams("params are required")
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams("invalid tools/call params: %v", err)
	}
	if p.Name != AskToolName {
		return nil, invalidParams("unknown tool: %q", p.Name)
	}

	req, err := parseAskParams(p.Arguments)
	if err != nil {
		return nil, err
	}

	resp, err := s.ask(ctx, req)
	if err != nil {
		return &ToolResult{
			Content: []ToolContent{{Type: "text", Text: fmt.Sprintf("Error: %v", err)}},
			IsError: true,
		}, nil
	}
	return &ToolResult{
		Content: []ToolContent{{Type: "text", Text: resp.Response}},
	}, nil
}
