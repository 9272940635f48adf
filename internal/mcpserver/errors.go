// Package mcpserver exposes the search engine to MCP clients over a
// stdio transport.
package mcpserver

import (
	"errors"
	"fmt"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// Standard JSON-RPC error codes.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is a protocol error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-params protocol error.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: message}
}

// MapError converts internal errors to protocol errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch qerrors.GetCode(err) {
	case qerrors.ErrCodeInvalidInput, qerrors.ErrCodeInvalidPath, qerrors.ErrCodeQueryEmpty:
		return &MCPError{Code: ErrCodeInvalidParams, Message: err.Error()}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}
