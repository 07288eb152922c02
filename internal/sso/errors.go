package sso

import (
	"fmt"

	"github.com/dgellow/cdsso/internal/jsonrpc"
)

// UnknownActionError reports a request for an action the endpoint does not
// serve.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("Method %s not found", e.Action)
}

// RPCError converts the error to its wire form.
func (e *UnknownActionError) RPCError() *jsonrpc.Error {
	return jsonrpc.NewErrorWithData(jsonrpc.MethodNotFound, e.Error(), map[string]string{
		"action": e.Action,
	})
}
