package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerLevels(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		path      string
		wantLevel string
	}{
		{"/conversations", "info"},
		{"/ws", "info"},
		{"/health", "debug"},
		{"/metrics", "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			handler := Logger(zerolog.New(&buf))(ok)

			r := httptest.NewRequest("GET", tt.path, nil)
			handler.ServeHTTP(httptest.NewRecorder(), r)

			line := buf.String()
			if !strings.Contains(line, `"level":"`+tt.wantLevel+`"`) {
				t.Errorf("log line for %s = %s, want level %s", tt.path, line, tt.wantLevel)
			}
			if !strings.Contains(line, `"path":"`+tt.path+`"`) {
				t.Errorf("log line missing path: %s", line)
			}
		})
	}
}
