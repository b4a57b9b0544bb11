// Package backend talks to the blog's GraphQL API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/quill-dev/quill/internal/session"
)

// Client represents a GraphQL client for one endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default cookie-jar client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a client for the GraphQL endpoint. The default HTTP client keeps
// cookies in memory only, so the refresh cookie never leaves the process.
func New(endpoint string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the GraphQL URL the client posts to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Request is one GraphQL operation
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
	// Header is added to the HTTP request (Authorization, Cookie)
	Header http.Header
}

// GraphQLError is one entry of the errors array
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns extensions.code, if any
func (e GraphQLError) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// Response is the decoded GraphQL answer plus the HTTP metadata callers relay
type Response struct {
	Data       json.RawMessage
	Errors     []GraphQLError
	StatusCode int
	Header     http.Header
}

// Decode unmarshals data[field] into out
func (r *Response) Decode(field string, out any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("graphql response has no data")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.Data, &fields); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	raw, ok := fields[field]
	if !ok {
		return fmt.Errorf("graphql response has no field %q", field)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return nil
}

type payload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Exec posts req and returns the decoded response. An HTTP 401 or an
// authentication error in the errors array is returned as an error wrapping
// session.ErrUnauthorized. Other GraphQL errors are returned as an error
// together with the response.
func (c *Client) Exec(ctx context.Context, req Request) (*Response, error) {
	jsonData, err := json.Marshal(payload{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header}

	if resp.StatusCode == http.StatusUnauthorized {
		return out, fmt.Errorf("%w: %s (status %d)", session.ErrUnauthorized, req.OperationName, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("graphql request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []GraphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return out, fmt.Errorf("failed to parse response: %w", err)
	}
	out.Data = envelope.Data
	out.Errors = envelope.Errors

	if len(out.Errors) > 0 {
		first := out.Errors[0]
		if unauthenticated(first) {
			return out, fmt.Errorf("%w: %s", session.ErrUnauthorized, first.Message)
		}
		return out, fmt.Errorf("graphql error: %s", first.Message)
	}
	return out, nil
}

func unauthenticated(e GraphQLError) bool {
	if e.Code() == "UNAUTHENTICATED" {
		return true
	}
	return strings.Contains(e.Message, "Unauthorized") || strings.Contains(e.Message, "Invalid token")
}

// Query runs op with a bearer token and decodes its result field into out
func (c *Client) Query(ctx context.Context, token string, op Operation, vars map[string]any, out any) error {
	req := op.Request(vars)
	if token != "" {
		req.Header = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	resp, err := c.Exec(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(op.Field, out)
}
