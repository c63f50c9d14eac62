package remedy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

const (
	clientName    = "sre-sentinel"
	clientVersion = "1.0.0"
)

// session is one live gateway connection: the MCP client (which carries the
// session token on every call) plus the discovered tool catalog with
// compiled parameter schemas.
type session struct {
	mcp     *client.Client
	tools   map[string]mcp.Tool
	schemas map[string]*jsonschema.Schema
}

// connect performs the gateway handshake and tool discovery
func connect(ctx context.Context, gatewayURL string) (*session, error) {
	c, err := client.NewStreamableHttpClient(gatewayURL)
	if err != nil {
		return nil, types.NewError(types.ErrGatewayUnavailable, "gateway.connect", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, types.NewError(types.ErrGatewayUnavailable, "gateway.connect", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, types.NewError(types.ErrGatewayUnavailable, "gateway.initialize", err)
	}
	metrics.GatewayHandshakesTotal.Inc()

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, types.NewError(types.ErrGatewayUnavailable, "gateway.discover", err)
	}

	s := &session{
		mcp:     c,
		tools:   make(map[string]mcp.Tool, len(listed.Tools)),
		schemas: make(map[string]*jsonschema.Schema, len(listed.Tools)),
	}
	logger := log.WithComponent("gateway")
	for _, tool := range listed.Tools {
		s.tools[tool.Name] = tool
		schema, err := compileSchema(tool)
		if err != nil {
			logger.Warn().Err(err).Str("tool", tool.Name).Msg("tool schema unusable, validation disabled for this tool")
			continue
		}
		s.schemas[tool.Name] = schema
	}
	logger.Info().Int("tools", len(s.tools)).Msg("gateway session established")
	return s, nil
}

func (s *session) close() {
	if s.mcp != nil {
		s.mcp.Close()
	}
}

// compileSchema turns a tool's advertised JSON-schema parameter spec into a
// validator
func compileSchema(tool mcp.Tool) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	url := "sentinel://tools/" + tool.Name
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(url)
}

// validate checks action parameters against the tool's compiled schema.
// Tools whose schema did not compile accept anything.
func (s *session) validate(tool string, params map[string]interface{}) error {
	schema, ok := s.schemas[tool]
	if !ok {
		return nil
	}
	// round-trip through JSON so numeric types match what the schema
	// library expects
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

// toolPayload is the JSON document tools embed in their text content
type toolPayload struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// contentText concatenates the text parts of a tool result
func contentText(result *mcp.CallToolResult) string {
	var b strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// isSessionLost detects the gateway's distinguished session-expiry error
func isSessionLost(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "session not found") ||
		strings.Contains(msg, "session expired") ||
		strings.Contains(msg, "invalid session")
}

// isTransient classifies gateway transport failures worth retrying
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"status 500", "status 502", "status 503", "status 504",
		"eof",
		"temporar",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
