package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Attribute keys shared by every package that logs.
const (
	KeyOperation  = "operation"
	KeyBackend    = "backend"
	KeyTool       = "tool"
	KeyToolUseID  = "tool_use_id"
	KeyTurnID     = "turn_id"
	KeyModel      = "model"
	KeyStopReason = "stop_reason"
	KeyUserHash   = "user_hash"
	KeyDuration   = "duration"
	KeyStatus     = "status"
	KeyError      = "error"
)

// Status values. Duplicated from instrumentation, which imports this package.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Log output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New builds a slog.Logger writing to w. Unknown levels fall back to info and
// unknown formats to text.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps debug/info/warn/error onto slog levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTurn returns a logger tagged with a turn id.
func WithTurn(logger *slog.Logger, turnID string) *slog.Logger {
	return logger.With(slog.String(KeyTurnID, turnID))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Backend returns a slog attribute for the tool backend (mail or page).
func Backend(backend string) slog.Attr {
	return slog.String(KeyBackend, backend)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// ToolUseID returns a slog attribute for the model-assigned tool use id.
func ToolUseID(id string) slog.Attr {
	return slog.String(KeyToolUseID, id)
}

// Model returns a slog attribute for the model id.
func Model(model string) slog.Attr {
	return slog.String(KeyModel, model)
}

// StopReason returns a slog attribute for a model stop reason.
func StopReason(reason string) slog.Attr {
	return slog.String(KeyStopReason, reason)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// A nil error yields an empty group, which slog drops from the output.
//
//	logger.Info("operation", logging.Err(err))  // safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email address so log
// lines can be correlated without exposing the address.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "user:" + hex.EncodeToString(hash[:8])
}

// UserHash returns a slog attribute with the anonymized email.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// Recipients anonymizes a list of addresses for logging.
func Recipients(addrs []string) slog.Attr {
	hashed := make([]string, 0, len(addrs))
	for _, a := range addrs {
		hashed = append(hashed, AnonymizeEmail(a))
	}
	return slog.Any("recipients", hashed)
}

// SanitizeToken masks a secret for logging. Only the length is revealed.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
