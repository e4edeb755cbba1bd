// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package rpc

import (
	"encoding/json"
	"fmt"
)

// Request is a JSON-RPC call.
type Request struct {
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// Response is the reply to a Request. Exactly one of Result and Error is
// meaningful.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Error is a failure reported by the server inside a Response.
type Error struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	// Err is the error member of the response body, if it had one.
	Err *Error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected HTTP status: %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("unexpected HTTP status: %s", e.Status)
}

func (e *StatusError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}
