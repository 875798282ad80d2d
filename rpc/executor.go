// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package rpc

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// HTTPExecutor is the default RequestExecutor, a thin wrapper around a
// net/http client with a fixed per-request timeout.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor creates an HTTPExecutor with the given per-request
// timeout.
func NewHTTPExecutor(timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		client: &http.Client{Timeout: timeout},
	}
}

// Execute POSTs the body to the url and returns the status and response
// body.  A non-2xx status is not an error at this layer; classification
// is the Invoker's job.
func (e *HTTPExecutor) Execute(url string, body []byte) (*RawResponse, error) {
	resp, err := e.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &RawResponse{Status: resp.StatusCode, Body: raw}, nil
}
