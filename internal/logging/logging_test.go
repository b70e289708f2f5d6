package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func resetLoggingState() {
	Shutdown()

	mu.Lock()
	defer mu.Unlock()

	baseWriter = os.Stderr
	baseComponent = ""
	baseLogger = zerolog.New(baseWriter).With().Timestamp().Logger()
	log.Logger = baseLogger
	zerolog.TimeFieldFormat = defaultTimeFmt
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestInitJSONFormatSetsLevelAndComponent(t *testing.T) {
	t.Cleanup(resetLoggingState)

	Init(Config{
		Format:    "json",
		Level:     "debug",
		Component: "xenova",
	})

	mu.RLock()
	defer mu.RUnlock()

	if baseWriter != os.Stderr {
		t.Fatalf("expected base writer to be os.Stderr, got %#v", baseWriter)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected global level debug, got %s", zerolog.GlobalLevel())
	}
	if baseComponent != "xenova" {
		t.Fatalf("expected base component xenova, got %s", baseComponent)
	}
}

func TestInitAutoFormatWithoutTerminalUsesJSON(t *testing.T) {
	t.Cleanup(resetLoggingState)
	original := isTerminalFn
	isTerminalFn = func(int) bool { return false }
	t.Cleanup(func() { isTerminalFn = original })

	Init(Config{Format: "auto"})

	mu.RLock()
	defer mu.RUnlock()
	if baseWriter != os.Stderr {
		t.Fatalf("expected JSON writer on non-terminal, got %#v", baseWriter)
	}
}

func TestInitWritesToFile(t *testing.T) {
	t.Cleanup(resetLoggingState)

	path := filepath.Join(t.TempDir(), "logs", "xenova.log")
	Init(Config{Format: "json", FilePath: path})
	log.Info().Str("tenant_id", "t-1").Msg("hello")
	Shutdown()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &event); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if event["tenant_id"] != "t-1" || event["message"] != "hello" {
		t.Fatalf("unexpected event: %v", event)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestWithRequestID(t *testing.T) {
	ctx, id := WithRequestID(context.Background(), "  abc  ")
	if id != "abc" || GetRequestID(ctx) != "abc" {
		t.Fatalf("request id = %q / %q", id, GetRequestID(ctx))
	}

	_, generated := WithRequestID(context.Background(), "")
	if len(generated) != 36 {
		t.Fatalf("expected generated uuid, got %q", generated)
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	t.Cleanup(resetLoggingState)

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	ctx, _ := WithRequestID(context.Background(), "req-42")
	logger := FromContext(ctx)
	logger.Info().Msg("scoped")

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Fatalf("log line missing request id: %s", buf.String())
	}
}

func TestAudit(t *testing.T) {
	t.Cleanup(resetLoggingState)

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	Audit(context.Background(), "tenant_create", "failure").Str("tenant_id", "t-1").Msg("Tenant creation failed")

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"audit_event":"tenant_create"`, `"outcome":"failure"`, `"tenant_id":"t-1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("audit line missing %s: %s", want, out)
		}
	}
}
