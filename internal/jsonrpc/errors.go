// Package jsonrpc holds the error object returned by the ajax action
// endpoint. Codes follow JSON-RPC 2.0.
package jsonrpc

import (
	"fmt"
	"net/http"
)

const (
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Error is a JSON-RPC style error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// HTTPStatus is the status an action response carrying e is sent with
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case InvalidRequest, MethodNotFound, InvalidParams:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates an error with the given code and message
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithData creates an error carrying additional data
func NewErrorWithData(code int, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}
