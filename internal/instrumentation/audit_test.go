package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	tests := []struct {
		name        string
		config      AuditLoggingConfig
		err         error
		wantMsg     string
		wantLevel   string
		wantArgs    bool
		wantNothing bool
	}{
		{
			name:      "success",
			config:    AuditLoggingConfig{Enabled: true},
			wantMsg:   "tool_executed",
			wantLevel: "INFO",
		},
		{
			name:      "failure",
			config:    AuditLoggingConfig{Enabled: true},
			err:       errors.New("not found"),
			wantMsg:   "tool_failed",
			wantLevel: "WARN",
		},
		{
			name:      "with arguments",
			config:    AuditLoggingConfig{Enabled: true, IncludeArguments: true},
			wantMsg:   "tool_executed",
			wantLevel: "INFO",
			wantArgs:  true,
		},
		{
			name:        "disabled",
			config:      AuditLoggingConfig{Enabled: false},
			wantNothing: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), tt.config)

			ti := NewToolInvocation("archive_email", "mail").
				WithToolUse("tu_1", "turn-1").
				WithArguments([]byte(`{"message_id":"m1"}`)).
				Complete(tt.err)
			al.LogToolInvocation(context.Background(), ti)

			if tt.wantNothing {
				assert.Zero(t, buf.Len())
				return
			}
			var rec map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, tt.wantMsg, rec["msg"])
			assert.Equal(t, tt.wantLevel, rec["level"])
			assert.Equal(t, "archive_email", rec["tool"])
			assert.Equal(t, "mail", rec["backend"])
			assert.Equal(t, "tu_1", rec["tool_use_id"])
			_, hasArgs := rec["arguments"]
			assert.Equal(t, tt.wantArgs, hasArgs)
			if tt.err != nil {
				assert.Equal(t, "not found", rec["error"])
			}
		})
	}
}

func TestAuditLogger_Nil(t *testing.T) {
	var al *AuditLogger
	al.LogToolInvocation(context.Background(), NewToolInvocation("x", "page").Complete(nil))
}
