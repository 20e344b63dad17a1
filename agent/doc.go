// Package agent provides the AI code-generation collaborator.
//
// The agent package turns natural-language prompts into runnable Python
// snippets or complete MCP server projects (server source, dependency
// manifest, Dockerfile), and can smoke-test generated code by calling the
// execution engine like any other caller.
package agent
