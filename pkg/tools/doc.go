// Package tools exposes the vault detect operations as MCP tools.
//
// A new *mcp.Server is built for every HTTP request. Tool handlers never
// hold credentials of their own: they read the RequestContext that the
// auth gateway bound to the request context and call its backend.
package tools
