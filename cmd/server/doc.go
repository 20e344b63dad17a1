// Package main is the entry point for the fusional MCP execution server.
//
// The fusional server executes untrusted Python code in hardened, disposable
// sandboxes, keeps a durable catalog of registered MCP servers, and can
// generate new MCP server projects from natural-language prompts. The server
// supports both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
