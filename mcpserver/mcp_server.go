// Package mcpserver exposes context assembly and the model catalog to MCP
// clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/catalog"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/logger"
	"github.com/teranos/ctxeng/version"
)

// MCPServer serves the ctxeng tools via Model Context Protocol
type MCPServer struct {
	models *catalog.Models
	server *server.MCPServer
	logger *zap.SugaredLogger
}

// toolContext is the argument shape of assemble_context. MCP clients send
// snake_case names.
type toolContext struct {
	Persona           string             `json:"persona"`
	InitialPrompt     string             `json:"initial_prompt"`
	BackgroundContext string             `json:"background_context"`
	Examples          []assemble.Example `json:"examples"`
	OutputFormat      string             `json:"output_format"`
	Rules             []string           `json:"rules"`
}

func (t toolContext) context() assemble.Context {
	return assemble.Context{
		Persona:           t.Persona,
		InitialPrompt:     t.InitialPrompt,
		BackgroundContext: t.BackgroundContext,
		Examples:          t.Examples,
		OutputFormat:      t.OutputFormat,
		Rules:             t.Rules,
	}
}

// New creates the MCP server and registers its tools
func New(log *zap.SugaredLogger) (*MCPServer, error) {
	models, err := catalog.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load model catalog")
	}

	s := &MCPServer{
		models: models,
		logger: logger.OrNop(log).Named("mcp"),
	}
	s.server = server.NewMCPServer(
		"ctxeng",
		version.Get().Version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s, nil
}

func (s *MCPServer) registerTools() {
	assembleTool := mcp.NewTool("assemble_context",
		mcp.WithDescription("Assemble a structured prompt context into the labelled text sent to a model"),
		mcp.WithString("persona",
			mcp.Description("Who the model should be"),
		),
		mcp.WithString("initial_prompt",
			mcp.Description("The task or question"),
		),
		mcp.WithString("background_context",
			mcp.Description("Facts the model needs"),
		),
		mcp.WithArray("examples",
			mcp.Description("Input/output pairs demonstrating the task"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"input":  map[string]any{"type": "string"},
					"output": map[string]any{"type": "string"},
				},
			}),
		),
		mcp.WithString("output_format",
			mcp.Description("How the answer should be shaped"),
		),
		mcp.WithArray("rules",
			mcp.Description("Constraints, numbered in the output"),
			mcp.WithStringItems(),
		),
	)
	s.server.AddTool(assembleTool, s.handleAssemble)

	modelsTool := mcp.NewTool("list_models",
		mcp.WithDescription("List the models offered by the Context Engineer catalog"),
		mcp.WithString("provider",
			mcp.Description("Only list this provider's models (e.g. Anthropic)"),
		),
	)
	s.server.AddTool(modelsTool, s.handleListModels)
}

// handleAssemble handles assemble_context tool calls
func (s *MCPServer) handleAssemble(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}
	var args toolContext
	if err := json.Unmarshal(raw, &args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	text := assemble.Preview(args.context())
	s.logger.Debugw("Assembled context", logger.FieldSize, len(text))
	return mcp.NewToolResultText(text), nil
}

// handleListModels handles list_models tool calls
func (s *MCPServer) handleListModels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	models := s.models.All()
	if provider := request.GetString("provider", ""); provider != "" {
		var ok bool
		models, ok = s.models.ByProvider(provider)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Unknown provider %q (known: %s)",
				provider, strings.Join(s.models.ProviderNames(), ", "))), nil
		}
	}

	var b strings.Builder
	for _, m := range models {
		fmt.Fprintf(&b, "%s: %s", m.ID, m.Name)
		if m.ID == s.models.Default {
			b.WriteString(" (default)")
		}
		if m.Free {
			b.WriteString(" (free)")
		}
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(strings.TrimSuffix(b.String(), "\n")), nil
}

// Serve runs the MCP server on stdin/stdout until the client disconnects
func (s *MCPServer) Serve() error {
	s.logger.Infow("Serving MCP over stdio")
	return server.ServeStdio(s.server)
}
