package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/askllm/internal/router"
	"github.com/upb/askllm/models"
	"github.com/upb/askllm/services"
	"github.com/upb/askllm/services/inference"
)

// Asker forwards one prompt to a configured provider
type Asker interface {
	Ask(ctx context.Context, req *inference.AskRequest) (*inference.AskResponse, error)
}

// Info identifies the server in the initialize handshake
type Info struct {
	Name    string
	Version string
}

// HandlerFunc handles the params of one method
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Server dispatches JSON-RPC requests to the registered methods
type Server struct {
	asker    Asker
	info     Info
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewServer creates a server with ask and the MCP methods registered
func NewServer(asker Asker, info Info, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		asker:    asker,
		info:     info,
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With(zap.String("component", "rpc")),
	}

	s.Register("ask", s.handleAsk)
	s.Register("initialize", s.handleInitialize)
	s.Register("notifications/initialized", s.handleInitialized)
	s.Register("ping", s.handlePing)
	s.Register("tools/list", s.handleToolsList)
	s.Register("tools/call", s.handleToolsCall)
	return s
}

// Register adds or replaces a method handler. Call it before Serve.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.handlers[method] = handler
}

// Serve reads line-delimited requests from r until EOF and writes one response
// line per request to w. Requests are handled in order. Cancellation is
// observed between lines.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("rpc server starting", zap.String("name", s.info.Name))

	reader := bufio.NewReader(r)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			s.logger.Debug("message received", zap.Int("length", len(line)))

			if resp := s.Handle(ctx, line); resp != nil {
				if err := enc.Encode(resp); err != nil {
					return fmt.Errorf("failed to write response: %w", err)
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.logger.Info("rpc input closed")
				return nil
			}
			return fmt.Errorf("failed to read request: %w", readErr)
		}
	}
}

// Handle processes one raw request. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, raw []byte) *Response {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		return errorResponse(nil, NewError(CodeInvalidRequest, "batch requests are not supported", nil))
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		if !json.Valid(raw) {
			return errorResponse(nil, NewError(CodeParseError, "Parse error", err.Error()))
		}
		return errorResponse(nil, NewError(CodeInvalidRequest, "Invalid Request", err.Error()))
	}
	return s.dispatch(ctx, &req)
}

// Call processes one request and always produces a response. A request
// without an id is answered under a generated one.
func (s *Server) Call(ctx context.Context, raw []byte) *Response {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &head); err == nil && len(head.ID) == 0 {
		var req Request
		if err := json.Unmarshal(raw, &req); err == nil {
			req.ID = json.RawMessage(`"` + uuid.NewString() + `"`)
			return s.dispatch(ctx, &req)
		}
	}
	return s.Handle(ctx, raw)
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != Version || req.Method == "" || !validID(req.ID) {
		if req.IsNotification() {
			s.logger.Debug("malformed notification ignored", zap.String("method", req.Method))
			return nil
		}
		return errorResponse(nil, NewError(CodeInvalidRequest, "Invalid Request", nil))
	}

	handler, ok := s.handlers[req.Method]
	if !ok {
		if req.IsNotification() {
			s.logger.Debug("unknown notification ignored", zap.String("method", req.Method))
			return nil
		}
		return errorResponse(req.ID, NewError(CodeMethodNotFound, "Method not found", req.Method))
	}

	result, err := handler(ctx, req.Params)
	if req.IsNotification() {
		if err != nil {
			s.logger.Warn("notification failed", zap.String("method", req.Method), zap.Error(err))
		}
		return nil
	}
	if err != nil {
		return errorResponse(req.ID, s.toError(req.Method, err))
	}
	return resultResponse(req.ID, result)
}

// toError maps a handler failure onto a JSON-RPC error object. Forwarding
// failures keep the backend's message and carry llm, kind and reason.
func (s *Server) toError(method string, err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var rErr *router.Error
	if errors.As(err, &rErr) {
		data := ErrorData{
			LLM:      rErr.Alias,
			Kind:     string(rErr.Kind),
			Reason:   rErr.Reason,
			Attempts: rErr.Attempts,
		}
		switch rErr.Kind {
		case router.KindUnknownProvider:
			return NewError(CodeUnknownProvider, rErr.Error(), data)
		case router.KindEmptyResponse:
			return NewError(CodeEmptyResponse, rErr.Error(), data)
		case router.KindBackend:
			return NewError(CodeBackend, rErr.Error(), data)
		case router.KindInvalidRequest:
			return NewError(CodeInvalidParams, rErr.Error(), data)
		}
	}

	if services.IsValidationError(err) {
		return NewError(CodeInvalidParams, err.Error(), services.GetErrorDetails(err))
	}

	s.logger.Error("rpc method failed", zap.String("method", method), zap.Error(err))
	return NewError(CodeInternalError, "Internal error", nil)
}

// askParams is the object form of the ask params
type askParams struct {
	LLM        string                       `json:"llm"`
	Prompt     string                       `json:"prompt"`
	Attachment *inference.AttachmentPayload `json:"attachment,omitempty"`
}

// parseAskParams accepts [llm, prompt], [llm, prompt, attachment] or
// {llm, prompt, attachment}
func parseAskParams(raw json.RawMessage) (*inference.AskRequest, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, invalidParams("params are required: [llm, prompt]")
	}

	var p askParams
	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, invalidParams("params must be a list: %v", err)
		}
		if len(list) < 2 || len(list) > 3 {
			return nil, invalidParams("params must be [llm, prompt] with an optional attachment")
		}
		if json.Unmarshal(list[0], &p.LLM) != nil || json.Unmarshal(list[1], &p.Prompt) != nil {
			return nil, invalidParams("llm and prompt must be strings")
		}
		if len(list) == 3 && string(list[2]) != "null" {
			p.Attachment = new(inference.AttachmentPayload)
			if err := json.Unmarshal(list[2], p.Attachment); err != nil {
				return nil, invalidParams("attachment must be an object: %v", err)
			}
		}
	case '{':
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, invalidParams("invalid params: %v", err)
		}
	default:
		return nil, invalidParams("params must be a list or an object")
	}

	return &inference.AskRequest{
		LLM:        p.LLM,
		Prompt:     p.Prompt,
		Attachment: p.Attachment,
	}, nil
}

// ask runs one forward for the rpc transport
func (s *Server) ask(ctx context.Context, req *inference.AskRequest) (*inference.AskResponse, error) {
	req.RequestID = uuid.NewString()
	req.Transport = models.TransportRPC
	return s.asker.Ask(ctx, req)
}

func (s *Server) handleAsk(ctx context.Context, params json.RawMessage) (interface{}, error) {
	req, err := parseAskParams(params)
	if err != nil {
		return nil, err
	}

	resp, err := s.ask(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Response, nil
}
