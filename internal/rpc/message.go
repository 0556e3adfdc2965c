package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only accepted value of the jsonrpc member
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application error codes for forwarding failures
const (
	CodeUnknownProvider = -32001
	CodeEmptyResponse   = -32002
	CodeBackend         = -32003
)

// Request is an incoming call. An absent id marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the caller expects no reply
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is written for every request with an id. A nil ID encodes as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorData accompanies the application error codes
type ErrorData struct {
	LLM      string `json:"llm"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// NewError creates an error object
func NewError(code int, message string, data interface{}) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

func invalidParams(format string, args ...interface{}) *Error {
	return NewError(CodeInvalidParams, fmt.Sprintf(format, args...), nil)
}

// nullResult keeps "result" present when a handler has nothing to return
var nullResult = json.RawMessage("null")

func resultResponse(id json.RawMessage, result interface{}) *Response {
	if result == nil {
		result = nullResult
	}
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err}
}

// validID accepts strings, numbers and null
func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	switch id[0] {
	case '"', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	case 'n':
		return string(id) == "null"
	}
	return false
}
