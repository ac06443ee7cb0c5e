// Package rpc serves chain and marketplace state over JSON-RPC 2.0 on HTTP.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/tolmarket/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard codes, then server-defined ones in -32000..-32099.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeUnauthorized = -32000
	CodeNotFound     = -32004
	CodeTxRejected   = -32010
)

// maxBatch bounds the number of calls in one batch request.
const maxBatch = 100

// codeFor classifies a backend error.
func codeFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, core.ErrChainMismatch),
		errors.Is(err, core.ErrDuplicateTx),
		errors.Is(err, core.ErrTxCommitted),
		errors.Is(err, core.ErrTxExpired),
		errors.Is(err, core.ErrTxFromFuture),
		errors.Is(err, core.ErrMempoolFull),
		errors.Is(err, core.ErrSenderLimit):
		return CodeTxRejected
	}
	return CodeInternalError
}

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

// failure builds an error response coded by codeFor.
func failure(id any, err error) Response {
	return errResponse(id, codeFor(err), err.Error())
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
