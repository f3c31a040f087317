package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// JSON-RPC 2.0 error codes.
const (
	ErrParseCode      = -32700
	ErrInvalidReq     = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
	// ErrApplication carries a domain error code in Error.Data.
	ErrApplication = -32000
)

var (
	// ErrUnknownMethod is returned by handlers for methods they don't serve.
	ErrUnknownMethod = errors.New("method not found")
	// ErrBadParams is returned by handlers when params don't decode.
	ErrBadParams = errors.New("invalid params")
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorData is the Data payload for ErrApplication errors.
type ErrorData struct {
	Code         string `json:"code"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

// CodedError is implemented by domain-mapped errors that carry a stable code.
type CodedError interface {
	error
	CodeValue() string
	MessageValue() string
	DetailsValue() any
	RecoveryHintValue() string
}

// ParseRequest parses and validates a JSON-RPC request payload.
func ParseRequest(body io.Reader) (Request, error) {
	var req Request
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("parse error: %w", err)
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return Request{}, fmt.Errorf("invalid request")
	}
	return req, nil
}

// WriteResult writes a JSON-RPC success response.
func WriteResult(w http.ResponseWriter, id any, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		WriteError(w, id, ErrInternal, "failed to encode result", nil)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		JSONRPC: "2.0",
		Result:  data,
		ID:      id,
	})
}

// WriteError writes a JSON-RPC error response.
func WriteError(w http.ResponseWriter, id any, code int, message string, data any) {
	writeJSON(w, http.StatusOK, Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	})
}

// ErrorFor converts a handler error into a JSON-RPC error object.
func ErrorFor(err error) *Error {
	var coded CodedError
	switch {
	case errors.As(err, &coded):
		return &Error{
			Code:    ErrApplication,
			Message: coded.MessageValue(),
			Data: ErrorData{
				Code:         coded.CodeValue(),
				Details:      coded.DetailsValue(),
				RecoveryHint: coded.RecoveryHintValue(),
			},
		}
	case errors.Is(err, ErrUnknownMethod):
		return &Error{Code: ErrMethodNotFound, Message: err.Error()}
	case errors.Is(err, ErrBadParams):
		return &Error{Code: ErrInvalidParams, Message: err.Error()}
	default:
		return &Error{Code: ErrInternal, Message: err.Error()}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
