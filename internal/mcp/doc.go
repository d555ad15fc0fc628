// Package mcp implements a Model Context Protocol client.
//
// The widget server is an MCP server: tools are invoked via tools/call
// and widget manifests are published as resources under the wip://
// scheme. The client speaks JSON-RPC 2.0 over one of two transports:
// a stdio subprocess (newline-delimited messages) or streamable HTTP
// (one POST per message).
package mcp
