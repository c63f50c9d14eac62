package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/redact"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

const (
	// ClassifyTimeout bounds each fast classifier call
	ClassifyTimeout = 3 * time.Second
	// AnalyzeTimeout bounds each deep analyzer call
	AnalyzeTimeout = 45 * time.Second
)

// Endpoint identifies one inference service
type Endpoint struct {
	URL   string
	Key   string
	Model string
}

// Client talks to a chat-style inference endpoint whose responses carry a
// JSON document as message content.
type Client struct {
	endpoint Endpoint
	kind     types.ErrorKind
	http     *http.Client
	logger   zerolog.Logger
}

// NewClassifier creates the fast classifier client
func NewClassifier(ep Endpoint) *Client {
	return &Client{
		endpoint: ep,
		kind:     types.ErrClassifier,
		http:     &http.Client{},
		logger:   log.WithComponent("classifier"),
	}
}

// NewAnalyzer creates the deep analyzer client
func NewAnalyzer(ep Endpoint) *Client {
	return &Client{
		endpoint: ep,
		kind:     types.ErrAnalyzer,
		http:     &http.Client{},
		logger:   log.WithComponent("analyzer"),
	}
}

// chat request/response wire format shared by both endpoints
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a system+user prompt pair with the given per-call timeout
// and returns the raw content document. Every outbound string passes the
// redactor first.
func (c *Client) Complete(ctx context.Context, system, user string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.endpoint.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: redact.String(user)},
		},
	})
	if err != nil {
		return nil, types.NewError(c.kind, "inference.encode", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(c.kind, "inference.request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.endpoint.Key != "" {
		req.Header.Set("Authorization", "Bearer "+c.endpoint.Key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, types.NewError(c.kind, "inference.call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, types.NewError(c.kind, "inference.call",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewError(c.kind, "inference.decode", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(c.kind, "inference.decode", fmt.Errorf("empty choices"))
	}

	return []byte(stripFences(parsed.Choices[0].Message.Content)), nil
}

// stripFences removes a surrounding markdown code fence from a model reply
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
