package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to an HTTP sandbox service:
//
//	POST   /sandboxes                 {runtime, timeout_seconds} -> {id}
//	POST   /sandboxes/{id}/mkdir      {path}
//	POST   /sandboxes/{id}/exec       {cmd, args} -> {output}
//	DELETE /sandboxes/{id}
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a sandbox service client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		// Command execution can legitimately take most of the sandbox
		// lifetime, so the HTTP timeout is generous.
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sandbox API error (status %d): %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

type createRequest struct {
	Runtime        string `json:"runtime"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type createResponse struct {
	ID string `json:"id"`
}

// Create provisions a new sandbox with the given runtime and timeout.
func (c *Client) Create(ctx context.Context, runtime string, timeout time.Duration) (Sandbox, error) {
	var resp createResponse
	req := createRequest{Runtime: runtime, TimeoutSeconds: int(timeout.Seconds())}
	if err := c.do(ctx, http.MethodPost, "/sandboxes", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("sandbox service returned empty id")
	}
	return &remote{client: c, id: resp.ID}, nil
}

// remote is a sandbox hosted by the HTTP service.
type remote struct {
	client *Client
	id     string
}

type mkdirRequest struct {
	Path string `json:"path"`
}

func (r *remote) MkDir(ctx context.Context, dir string) error {
	return r.client.do(ctx, http.MethodPost, "/sandboxes/"+r.id+"/mkdir", mkdirRequest{Path: dir}, nil)
}

type execRequest struct {
	Cmd  string   `json:"cmd"`
	Args []string `json:"args"`
}

type execResponse struct {
	Output string `json:"output"`
}

func (r *remote) RunCommand(ctx context.Context, cmd string, args ...string) (string, error) {
	var resp execResponse
	req := execRequest{Cmd: cmd, Args: args}
	if err := r.client.do(ctx, http.MethodPost, "/sandboxes/"+r.id+"/exec", req, &resp); err != nil {
		return "", err
	}
	return resp.Output, nil
}

func (r *remote) Stop(ctx context.Context) error {
	return r.client.do(ctx, http.MethodDelete, "/sandboxes/"+r.id, nil, nil)
}
