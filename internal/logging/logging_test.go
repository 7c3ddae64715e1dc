package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func resetLoggingState() {
	mu.Lock()
	defer mu.Unlock()

	baseWriter = os.Stderr
	baseLogger = zerolog.New(baseWriter).With().Timestamp().Logger()
	log.Logger = baseLogger
	zerolog.TimeFieldFormat = defaultTimeFmt
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	isTerminalFn = func(int) bool { return false }
}

func readJSONLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	line := strings.TrimSpace(buf.String())
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if line == "" {
		t.Fatalf("expected log output, got empty string")
	}

	var event map[string]interface{}
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	return event
}

func TestInitJSONFormatSetsLevelAndComponent(t *testing.T) {
	t.Cleanup(resetLoggingState)

	origStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stderr = w
	defer func() {
		os.Stderr = origStderr
		_ = r.Close()
		_ = w.Close()
	}()

	Init(Config{
		Format:    "json",
		Level:     "debug",
		Component: "monitor",
	})

	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected global level debug, got %s", zerolog.GlobalLevel())
	}

	mu.RLock()
	writer := baseWriter
	mu.RUnlock()
	if writer != w {
		t.Fatalf("expected json format to write straight to stderr, got %#v", writer)
	}
}

func TestInitConsoleFormatUsesConsoleWriter(t *testing.T) {
	t.Cleanup(resetLoggingState)

	Init(Config{
		Format: "console",
		Level:  "info",
	})

	mu.RLock()
	defer mu.RUnlock()

	if _, ok := baseWriter.(zerolog.ConsoleWriter); !ok {
		t.Fatalf("expected console writer, got %#v", baseWriter)
	}
}

func TestInitAutoFormatSelectsConsoleOnTerminal(t *testing.T) {
	t.Cleanup(resetLoggingState)

	isTerminalFn = func(int) bool { return true }
	Init(Config{Format: "auto"})

	mu.RLock()
	defer mu.RUnlock()
	if _, ok := baseWriter.(zerolog.ConsoleWriter); !ok {
		t.Fatalf("expected console writer on a terminal, got %#v", baseWriter)
	}
}

func TestInitAutoFormatWithPipe(t *testing.T) {
	t.Cleanup(resetLoggingState)

	origStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stderr = w
	defer func() {
		os.Stderr = origStderr
		_ = r.Close()
		_ = w.Close()
	}()

	isTerminalFn = func(int) bool { return false }
	Init(Config{
		Format: "auto",
		Level:  "info",
	})

	mu.RLock()
	defer mu.RUnlock()

	if baseWriter != w {
		t.Fatalf("expected base writer to use provided pipe, got %#v", baseWriter)
	}
}

func TestIsLevelEnabledFollowsInitLevel(t *testing.T) {
	t.Cleanup(resetLoggingState)

	Init(Config{Format: "json", Level: "warn"})
	if IsLevelEnabled(zerolog.DebugLevel) {
		t.Fatal("debug must be disabled at warn level")
	}
	if !IsLevelEnabled(zerolog.ErrorLevel) {
		t.Fatal("error must be enabled at warn level")
	}

	Init(Config{Format: "json", Level: "debug"})
	if !IsLevelEnabled(zerolog.DebugLevel) {
		t.Fatal("debug must be enabled at debug level")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"info":     zerolog.InfoLevel,
		"DEBUG":    zerolog.DebugLevel,
		" warn ":   zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"trace":    zerolog.TraceLevel,
		"disabled": zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("Debug") {
		t.Fatal("expected Debug to be valid")
	}
	if ValidLevel("verbose") {
		t.Fatal("expected verbose to be rejected")
	}
}

func TestForComponentTagsEvents(t *testing.T) {
	t.Cleanup(resetLoggingState)

	var buf bytes.Buffer
	mu.Lock()
	baseLogger = zerolog.New(&buf)
	mu.Unlock()

	logger := ForComponent("ranker")
	logger.Info().Msg("hello")

	event := readJSONLine(t, &buf)
	if event["component"] != "ranker" {
		t.Fatalf("expected component ranker, got %v", event["component"])
	}
	if event["message"] != "hello" {
		t.Fatalf("expected message hello, got %v", event["message"])
	}
}

func TestWithRunID(t *testing.T) {
	ctx, id := WithRunID(context.Background(), "  run-1 ")
	if id != "run-1" {
		t.Fatalf("expected trimmed id, got %q", id)
	}
	if got := RunIDFromContext(ctx); got != "run-1" {
		t.Fatalf("expected run-1 from context, got %q", got)
	}

	//nolint:staticcheck // nil context is handled explicitly.
	ctx, generated := WithRunID(nil, "")
	if generated == "" {
		t.Fatal("expected generated run id")
	}
	if RunIDFromContext(ctx) != generated {
		t.Fatal("expected generated id to be stored on context")
	}

	if RunIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty run id on bare context")
	}
}
