package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/fusional/fusional/agent"
	"github.com/fusional/fusional/config"
	"github.com/fusional/fusional/executor"
	"github.com/fusional/fusional/registry"
)

// SandboxEngine is the execution engine surface used by the server.
type SandboxEngine interface {
	Execute(ctx context.Context, req executor.ExecutionRequest) executor.ExecutionResult
}

// Generator is the code-generation surface used by the server.
type Generator interface {
	GenerateAndTest(ctx context.Context, prompt string) (string, executor.ExecutionResult, error)
	GenerateProject(ctx context.Context, prompt string) (agent.Project, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	validator *executor.Validator
	engine    SandboxEngine
	catalog   *registry.Registry
	generator Generator
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, validator *executor.Validator, engine SandboxEngine, catalog *registry.Registry, generator Generator) (*MCPServer, error) {
	s := &MCPServer{
		config:    cfg,
		logger:    logger,
		validator: validator,
		engine:    engine,
		catalog:   catalog,
		generator: generator,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("executor.image", cfg.Executor.Image),
		zap.Int("executor.default_timeout_sec", cfg.Executor.DefaultTimeoutSec),
		zap.Int("executor.max_timeout_sec", cfg.Executor.MaxTimeoutSec),
		zap.Int("executor.default_memory_mb", cfg.Executor.DefaultMemoryMB),
		zap.Int("executor.max_memory_mb", cfg.Executor.MaxMemoryMB),
		zap.Int("executor.max_in_flight", cfg.Executor.MaxInFlight),
		zap.Bool("executor.enable_direct", cfg.Executor.EnableDirect),
		zap.String("registry.path", cfg.Registry.Path),
	)

	s.mcpServer = server.NewMCPServer("fusional-executor", "A secure code execution and MCP server builder")

	s.registerExecuteCodeTool()
	s.registerRegistryTools()
	s.registerGenerateServerTool()

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_code",
		Description: "Execute untrusted code in a sandboxed environment",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Runtime language",
					"enum":        []string{"python"},
				},
				"timeout_sec": map[string]any{
					"type":        "integer",
					"description": "Wall-clock budget in seconds (server default when omitted)",
				},
				"memory_mb": map[string]any{
					"type":        "integer",
					"description": "Memory ceiling in megabytes (server default when omitted)",
				},
				"isolation": map[string]any{
					"type":        "string",
					"description": "Isolation mode; direct requires explicit server opt-in",
					"enum":        []string{"sandboxed", "direct"},
				},
			},
			Required: []string{"source", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := request.RequireString("source")
	if err != nil {
		return nil, fmt.Errorf("source parameter is required: %w", err)
	}
	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	raw := executor.RawRequest{
		Language:  language,
		Source:    source,
		Isolation: request.GetString("isolation", ""),
	}
	// An omitted limit takes the server default; a supplied zero must reach
	// the validator as-is so it is rejected, not silently defaulted.
	args := request.GetArguments()
	if _, ok := args["timeout_sec"]; ok {
		v := request.GetInt("timeout_sec", 0)
		raw.TimeoutSec = &v
	}
	if _, ok := args["memory_mb"]; ok {
		v := request.GetInt("memory_mb", 0)
		raw.MemoryMB = &v
	}

	req, err := s.validator.Validate(raw)
	if err != nil {
		// Rejected before any sandbox was provisioned.
		s.logger.Warn("execution request rejected", zap.Error(err))
		return errorResult(err.Error()), nil
	}

	s.logger.Info("executing code in sandbox",
		zap.String("language", string(req.Language)),
		zap.String("isolation", string(req.Isolation)),
		zap.Int("timeout_sec", req.TimeoutSec),
		zap.Int("memory_mb", req.MemoryMB))

	result := s.engine.Execute(ctx, req)

	payload, err := json.Marshal(map[string]any{
		"stdout":           result.Stdout,
		"stderr":           result.Stderr,
		"stdout_truncated": result.StdoutTruncated,
		"stderr_truncated": result.StderrTruncated,
		"outcome":          result.Status.Outcome,
		"exit_code":        result.Status.Code,
		"resource":         result.Status.Resource,
		"reason":           result.Status.Reason,
		"elapsed_ms":       result.ElapsedMillis,
		"isolation":        result.Isolation,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return textResult(string(payload)), nil
}

// registerRegistryTools registers register_server and list_servers
func (s *MCPServer) registerRegistryTools() {
	registerTool := mcp.Tool{
		Name:        "register_server",
		Description: "Register an MCP server in the catalog",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Unique server name",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Human-readable description",
				},
				"url": map[string]any{
					"type":        "string",
					"description": "Connection URL",
				},
			},
			Required: []string{"name"},
		},
	}
	s.mcpServer.AddTool(registerTool, s.handleRegisterServer)

	listTool := mcp.Tool{
		Name:        "list_servers",
		Description: "List all registered MCP servers",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
	s.mcpServer.AddTool(listTool, s.handleListServers)
}

// handleRegisterServer handles the register_server tool
func (s *MCPServer) handleRegisterServer(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return nil, fmt.Errorf("name parameter is required: %w", err)
	}

	entry := registry.Entry{
		Description: request.GetString("description", ""),
		URL:         request.GetString("url", ""),
	}
	if err := s.catalog.Register(name, entry); err != nil {
		s.logger.Warn("registration failed", zap.String("name", name), zap.Error(err))
		return errorResult(err.Error()), nil
	}

	payload, _ := json.Marshal(map[string]any{"status": "registered", "name": name})
	return textResult(string(payload)), nil
}

// handleListServers handles the list_servers tool
func (s *MCPServer) handleListServers(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	servers := s.catalog.Snapshot()
	payload, err := json.Marshal(map[string]any{
		"total":   len(servers),
		"servers": servers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode catalog: %w", err)
	}
	return textResult(string(payload)), nil
}

// registerGenerateServerTool registers the generate_server tool
func (s *MCPServer) registerGenerateServerTool() {
	tool := mcp.Tool{
		Name:        "generate_server",
		Description: "Generate an MCP server project from a natural-language description",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "Description of the server to create",
				},
				"smoke_test": map[string]any{
					"type":        "boolean",
					"description": "Generate a single snippet and run it in the sandbox instead of a full project",
				},
			},
			Required: []string{"prompt"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleGenerateServer)
}

// handleGenerateServer handles the generate_server tool
func (s *MCPServer) handleGenerateServer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.generator == nil {
		return errorResult("code generation is not configured (agent.api_key unset)"), nil
	}

	prompt, err := request.RequireString("prompt")
	if err != nil {
		return nil, fmt.Errorf("prompt parameter is required: %w", err)
	}

	if request.GetBool("smoke_test", false) {
		code, result, genErr := s.generator.GenerateAndTest(ctx, prompt)
		if genErr != nil {
			return errorResult(genErr.Error()), nil
		}
		payload, _ := json.Marshal(map[string]any{
			"generated_code": code,
			"outcome":        result.Status.Outcome,
			"exit_code":      result.Status.Code,
			"stdout":         result.Stdout,
			"stderr":         result.Stderr,
		})
		return textResult(string(payload)), nil
	}

	project, genErr := s.generator.GenerateProject(ctx, prompt)
	if genErr != nil {
		return errorResult(genErr.Error()), nil
	}
	payload, _ := json.Marshal(map[string]any{
		"out_dir": project.Dir,
		"files":   project.Files,
	})
	return textResult(string(payload)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
