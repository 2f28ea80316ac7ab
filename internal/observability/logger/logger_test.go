package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/retailsales/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRunFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRunID(context.Background(), "run-1")
	ctx = obscontext.WithTable(ctx, "customer_yearly")

	WithContext(ctx, base).Info("period committed")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["run_id"] != "run-1" {
		t.Fatalf("expected run_id field, got %v", fields["run_id"])
	}
	if fields["rollup_table"] != "customer_yearly" {
		t.Fatalf("expected rollup_table field, got %v", fields["rollup_table"])
	}
	if _, ok := fields["request_id"]; ok {
		t.Fatalf("expected empty request_id to be omitted")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(nil, Config{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT 1":                            "SELECT",
		"  insert into rollup_periods values": "INSERT",
		"WITH x AS (SELECT 1) SELECT * FROM x": "SELECT",
		"":                                    "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}
