package mcpserver

import (
	"errors"
	"fmt"

	"github.com/kfsearch/kfsearch/internal/kferrors"
)

// JSON-RPC error codes, plus kfsearch-specific codes in the -320xx range
// reserved for implementation-defined errors.
const (
	errCodeInvalidParams  = -32602
	errCodeMethodNotFound = -32601
	errCodeInternal       = -32603

	errCodeModelUnavailable = -32001
	errCodeDataGap          = -32002
	errCodeTimeout          = -32003
)

// mcpError is a JSON-RPC-shaped error surfaced to the calling MCP client.
type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *mcpError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

func newInvalidParamsError(msg string) *mcpError {
	return &mcpError{Code: errCodeInvalidParams, Message: msg}
}

func newMethodNotFoundError(name string) *mcpError {
	return &mcpError{Code: errCodeMethodNotFound, Message: fmt.Sprintf("tool %q not found", name)}
}

// mapError converts an internal error into the MCP-shaped error a client
// can branch on, preserving the kferrors category where one exists.
func mapError(err error) *mcpError {
	if err == nil {
		return nil
	}

	var kfe *kferrors.Error
	if errors.As(err, &kfe) {
		switch {
		case kferrors.IsDataGap(err):
			return &mcpError{Code: errCodeDataGap, Message: err.Error()}
		case kferrors.CategoryOf(err) == kferrors.CategoryTransient:
			return &mcpError{Code: errCodeModelUnavailable, Message: err.Error()}
		case kferrors.CategoryOf(err) == kferrors.CategoryCancellation:
			return &mcpError{Code: errCodeTimeout, Message: err.Error()}
		case kferrors.CategoryOf(err) == kferrors.CategoryQuery:
			return &mcpError{Code: errCodeInvalidParams, Message: err.Error()}
		default:
			return &mcpError{Code: errCodeInternal, Message: err.Error()}
		}
	}

	return &mcpError{Code: errCodeInternal, Message: err.Error()}
}
