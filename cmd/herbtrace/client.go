package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/herbtrace/herbtrace/pkg/authz"
)

// apiError is a non-2xx response from the server.
type apiError struct {
	Status int
	Body   []byte
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
}

type herbClient struct {
	baseURL   string
	principal string
	role      string
	token     string
	http      *http.Client
}

func newClient() *herbClient {
	return &herbClient{
		baseURL:   serverURL,
		principal: principal,
		role:      role,
		token:     token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// do sends a request with the caller's identity and decodes a 2xx response
// into v when v is non-nil.
func (c *herbClient) do(method, path string, body any, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.principal != "" {
		req.Header.Set(authz.PrincipalHeader, c.principal)
	}
	if c.role != "" {
		req.Header.Set(authz.RoleHeader, c.role)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &apiError{Status: resp.StatusCode, Body: bytes.TrimSpace(bodyBytes)}
	}

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

func (c *herbClient) getJSON(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

func (c *herbClient) postJSON(path string, body any, v any) error {
	return c.do(http.MethodPost, path, body, v)
}

func (c *herbClient) patchJSON(path string, body any, v any) error {
	return c.do(http.MethodPatch, path, body, v)
}

func (c *herbClient) deleteJSON(path string, v any) error {
	return c.do(http.MethodDelete, path, nil, v)
}
