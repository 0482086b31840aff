// Package llm is the model gateway. It sends a conversation, the tool
// catalog and a system prompt to a hosted Claude model, either through the
// Anthropic Messages API or through Vertex AI, and returns the answer as a
// Stream of structural events.
//
// Both operating modes share one interface. Streaming mode decodes the
// server-sent events as they arrive; single-shot mode waits for the full
// response and replays it as the same event sequence. Collect turns any
// Stream back into a Response, forwarding text deltas as they are read.
package llm
