// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds a single call when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// Client performs JSON-RPC calls against a single endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient makes the Client use hc for every call.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient returns a Client posting calls to endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes method and populates entity from the result. If entity is
// also a Serializer with something to send, its payload is the only
// parameter.
//
// A non-2xx answer is a *StatusError, which wraps the *Error carried in the
// body, if any. A 2xx answer with an error member is an *Error.
func (c *Client) Call(ctx context.Context, method string, entity Deserializer) error {
	req := Request{
		ID:     uuid.NewString(),
		Method: method,
		Params: []json.RawMessage{},
	}
	if s, ok := entity.(Serializer); ok {
		if payload := s.ToJSON(); payload != nil {
			req.Params = append(req.Params, payload)
		}
	}
	body, err := json.Marshal(&req)
	if err != nil {
		return fmt.Errorf("cannot encode %s request: %w", method, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cannot build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("%s: cannot read response: %w", method, err)
	}
	var resp Response
	decodeErr := json.Unmarshal(data, &resp)
	if httpResp.StatusCode/100 != 2 {
		statusErr := &StatusError{StatusCode: httpResp.StatusCode, Status: httpResp.Status}
		if decodeErr == nil {
			statusErr.Err = resp.Error
		}
		return statusErr
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: cannot decode response: %w", method, decodeErr)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%s: response id %q does not match request id %q", method, resp.ID, req.ID)
	}
	if len(resp.Result) == 0 {
		return errors.New(method + ": response has no result")
	}
	return entity.FromJSON(resp.Result)
}
