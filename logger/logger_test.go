package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  slog.Level
	}{
		{"空值默认debug", "", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"大写WARN", "WARN", slog.LevelWarn},
		{"warning别名", "warning", slog.LevelWarn},
		{"error", " error ", slog.LevelError},
		{"未知值", "verbose", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.value))
		})
	}
}
