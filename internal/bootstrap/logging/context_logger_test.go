package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestWithProductAttrsReachLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(&buf, "info", "json"))
	ctx = WithAttrs(ctx, slog.String("component", "usecase.traceability"))
	ctx = WithProduct(ctx, 10)

	Info(ctx, "chain created", slog.Uint64("chain_id", 1))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["component"] != "usecase.traceability" {
		t.Fatalf("component = %v", line["component"])
	}
	if line["product_id"] != float64(10) {
		t.Fatalf("product_id = %v", line["product_id"])
	}
	if line["msg"] != "chain created" {
		t.Fatalf("msg = %v", line["msg"])
	}
}

func TestWithAttrsOverridesSameKey(t *testing.T) {
	ctx := WithAttrs(context.Background(), slog.String("component", "a"))
	ctx = WithAttrs(ctx, slog.String("component", "b"), slog.String("extra", "x"))

	attrs := Attrs(ctx)
	if len(attrs) != 2 {
		t.Fatalf("attrs = %v, want 2", attrs)
	}
	if attrs[0].Value.String() != "b" {
		t.Fatalf("component = %s, want b", attrs[0].Value.String())
	}
}

func TestDebugFilteredAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(&buf, "info", "text"))

	Debug(ctx, "hidden")
	Warn(ctx, "visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("warning") != slog.LevelWarn || ParseLevel("") != slog.LevelInfo {
		t.Fatalf("ParseLevel mapping mismatch")
	}
}
