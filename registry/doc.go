// Package registry provides the durable tool-server catalog.
//
// The registry package maps server names to connection metadata and
// persists the whole catalog as a single JSON document, rewritten
// atomically on every change. The execution engine never touches the
// registry; only the service layer and the code-generation agent do.
package registry
