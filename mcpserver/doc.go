// Package mcpserver provides the Model Context Protocol (MCP) server
// implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// execution engine, the tool-server catalog, and the code-generation agent
// as tools. It uses the mark3labs/mcp-go library to handle the protocol
// details; execute_code is the primary interface for secure code execution.
package mcpserver
