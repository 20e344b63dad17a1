package agent

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/fusional/fusional/executor"
)

const snippetSystemPrompt = "You are an expert Python developer. " +
	"Output only runnable Python source code, no prose and no markdown fences."

const projectSystemPrompt = "You are an expert MCP server developer. Generate a complete MCP server project.\n" +
	"Output files using === FILE: path/to/file === markers.\n" +
	"Include: Dockerfile, requirements.txt, main_server.py, README.md\n" +
	"Follow MCP best practices: single-line docstrings, proper error handling, logging to stderr."

// SandboxEngine is the slice of the execution engine the agent needs; the
// agent is just another caller of Execute.
type SandboxEngine interface {
	Execute(ctx context.Context, req executor.ExecutionRequest) executor.ExecutionResult
}

// Generator turns natural-language prompts into deployable artifacts and
// can smoke-test what it generates through the sandbox engine.
type Generator struct {
	logger    *zap.Logger
	client    LLMClient
	validator *executor.Validator
	engine    SandboxEngine
	outputDir string
}

// NewGenerator creates a Generator. outputDir may be empty, in which case
// generated projects go to fresh temp directories.
func NewGenerator(logger *zap.Logger, client LLMClient, validator *executor.Validator, engine SandboxEngine, outputDir string) *Generator {
	return &Generator{
		logger:    logger,
		client:    client,
		validator: validator,
		engine:    engine,
		outputDir: outputDir,
	}
}

// GenerateCode produces a single runnable source snippet for the prompt.
func (g *Generator) GenerateCode(ctx context.Context, prompt string) (string, error) {
	out, err := g.client.Complete(ctx, snippetSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("code generation failed: %w", err)
	}
	return stripFences(out), nil
}

// GenerateAndTest generates a snippet and runs it through the sandbox
// engine. The returned result is the sandbox outcome for the generated
// code; generation failures are the only error path.
func (g *Generator) GenerateAndTest(ctx context.Context, prompt string) (string, executor.ExecutionResult, error) {
	code, err := g.GenerateCode(ctx, prompt)
	if err != nil {
		return "", executor.ExecutionResult{}, err
	}

	req, err := g.validator.Validate(executor.RawRequest{
		Language: string(executor.LanguagePython),
		Source:   code,
	})
	if err != nil {
		return code, executor.ExecutionResult{}, fmt.Errorf("generated code failed validation: %w", err)
	}

	g.logger.Info("smoke testing generated code", zap.Int("source_bytes", len(code)))
	return code, g.engine.Execute(ctx, req), nil
}

// GenerateProject produces a multi-file server project from the prompt and
// writes it under the output directory. A Dockerfile is synthesized when
// the model omits one.
func (g *Generator) GenerateProject(ctx context.Context, prompt string) (Project, error) {
	out, err := g.client.Complete(ctx, projectSystemPrompt,
		prompt+"\n\nOutput all files using: === FILE: relative/path ===")
	if err != nil {
		return Project{}, fmt.Errorf("project generation failed: %w", err)
	}

	files := parseProjectFiles(out)
	if len(files) == 0 {
		return Project{}, fmt.Errorf("no files parsed from model output; expected === FILE: path === markers")
	}

	if _, ok := files["Dockerfile"]; !ok {
		files["Dockerfile"] = fallbackDockerfile(entrypointOf(files))
	}

	dir := g.outputDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "fusional-mcp-*")
		if err != nil {
			return Project{}, fmt.Errorf("failed to create project dir: %w", err)
		}
	}

	written, err := writeProject(dir, files)
	if err != nil {
		return Project{}, err
	}

	g.logger.Info("project generated", zap.String("dir", dir), zap.Int("files", len(written)))
	return Project{Dir: dir, Files: written}, nil
}

// entrypointOf picks the server entry file from the generated set.
func entrypointOf(files map[string]string) string {
	for _, candidate := range []string{"main_server.py", "server.py", "main.py"} {
		if _, ok := files[candidate]; ok {
			return candidate
		}
	}
	for path := range files {
		if strings.HasSuffix(path, ".py") {
			return path
		}
	}
	return "main_server.py"
}

// stripFences removes a single surrounding markdown code fence, which
// models emit despite instructions.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
