// Package tools is the tool registry of the agent.
//
// The catalog is a fixed, ordered list of mcp.Tool definitions. The same
// definitions are declared to the model (ModelTools), exposed over MCP
// (RegisterMCP) and used to validate arguments before dispatch. Each name maps
// to a handler pair built once in New: a validator and an executor bound to
// either the Gmail API client or the webmail page bridge.
package tools
