// Package logging provides the structured logging helpers used across
// inboxagent.
//
// All components log through log/slog. This package fixes the attribute keys
// (tool, tool_use_id, turn_id, stop_reason, ...) so that a turn can be followed
// across the agent loop, the model gateway and the tool backends.
//
// # Usage
//
//	logger := logging.WithTurn(slog.Default(), turnID)
//	logger.Info("tool dispatched",
//	    logging.Tool("archive_message"),
//	    logging.Backend("mail"),
//	    logging.Err(err))
//
// Recipient addresses are never logged in clear text; use UserHash or
// Recipients. API keys go through SanitizeToken.
package logging
