// Package mcp exposes the assistant to MCP clients (editors, desktop AI
// hosts) over the Model Context Protocol. The server publishes question
// answering and agent/topic discovery as tools on a stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/plantia/plantia/internal/agents"
	"github.com/plantia/plantia/internal/log"
	"github.com/plantia/plantia/internal/session"
)

// Tool names published by the server.
const (
	ToolAsk        = "ask"
	ToolListAgents = "list_agents"
	ToolListTopics = "list_topics"
)

// Server wraps the MCP SDK server around the agent orchestration layer.
type Server struct {
	mcpServer *mcp.Server
	service   *agents.Service
	retrieval agents.Retrieval
	logger    log.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name      string
	Version   string
	Service   *agents.Service
	Retrieval agents.Retrieval
	Logger    log.Logger
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Service == nil {
		return nil, errors.New("agent service is required")
	}
	if cfg.Retrieval == nil {
		return nil, errors.New("retrieval service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		service:   cfg.Service,
		retrieval: cfg.Retrieval,
		logger:    logger.With("component", "mcp"),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run starts the MCP server on the given transport. This is a blocking call
// that handles all MCP protocol communication.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	askSchema, err := jsonschema.For[AskInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolAsk, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolAsk,
		Description: "Ask the plant care assistant a question. The best-suited agent is " +
			"selected automatically unless one is named explicitly. Pass the same " +
			"session_id across calls to keep conversation context.",
		InputSchema: askSchema,
	}, s.Ask)

	listAgentsSchema, err := jsonschema.For[ListAgentsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolListAgents, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolListAgents,
		Description: "List the assistant's live agents with their topics, priorities and " +
			"usage statistics.",
		InputSchema: listAgentsSchema,
	}, s.ListAgents)

	listTopicsSchema, err := jsonschema.For[ListTopicsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolListTopics, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListTopics,
		Description: "List the knowledge topics currently enabled for retrieval.",
		InputSchema: listTopicsSchema,
	}, s.ListTopics)

	return nil
}

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Question  string `json:"question" jsonschema:"The question to ask"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Conversation ID (UUID); omit to start a new conversation"`
	Agent     string `json:"agent,omitempty" jsonschema:"Force a specific agent by name instead of automatic selection"`
}

// Ask handles the ask MCP tool call.
func (s *Server) Ask(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, any, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return toolError("question is required"), nil, nil
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = session.NewSessionID()
	} else if !session.ValidID(sessionID) {
		return toolError("session_id must be a UUID"), nil, nil
	}

	result, err := s.service.ProcessQuestion(ctx, agents.ProcessRequest{
		Question:  question,
		SessionID: sessionID,
		AgentType: input.Agent,
	})
	if err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			return toolError(fmt.Sprintf("agent %q does not exist", input.Agent)), nil, nil
		}
		return nil, nil, fmt.Errorf("processing question: %w", err)
	}

	payload := map[string]any{
		"answer":     result.Answer,
		"session_id": sessionID,
	}
	if agent, ok := result.Metadata["agent"]; ok {
		payload["agent"] = agent
	}
	if conf, ok := result.Metadata["confidence"]; ok {
		payload["confidence"] = conf
	}
	return jsonResult(payload)
}

// ListAgentsInput defines the (empty) input schema for the list_agents tool.
type ListAgentsInput struct{}

// ListAgents handles the list_agents MCP tool call.
func (s *Server) ListAgents(_ context.Context, _ *mcp.CallToolRequest, _ ListAgentsInput) (*mcp.CallToolResult, any, error) {
	return jsonResult(map[string]any{"agents": s.service.AvailableAgents()})
}

// ListTopicsInput defines the (empty) input schema for the list_topics tool.
type ListTopicsInput struct{}

// ListTopics handles the list_topics MCP tool call.
func (s *Server) ListTopics(_ context.Context, _ *mcp.CallToolRequest, _ ListTopicsInput) (*mcp.CallToolResult, any, error) {
	return jsonResult(map[string]any{"topics": s.retrieval.AvailableTopics()})
}

// jsonResult marshals a payload as the single text content of a tool result.
func jsonResult(payload any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// toolError reports a caller mistake as an error result, keeping protocol
// errors for genuine server failures.
func toolError(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}
