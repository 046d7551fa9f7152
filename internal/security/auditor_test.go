package security

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/coregx/pgquery/internal/logger"
)

func newJSONAuditor(buf *bytes.Buffer, minLevel slog.Level, level AuditLevel) *Auditor {
	l := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: minLevel}))
	return NewAuditor(logger.NewSlogAdapter(l), level)
}

func TestAuditor_LogOperation(t *testing.T) {
	tests := []struct {
		name      string
		level     AuditLevel
		operation string
		query     string
		args      []any
		err       error
		wantLog   bool
	}{
		{
			name:      "write_operation_audit_writes",
			level:     AuditWrites,
			operation: "INSERT",
			query:     "INSERT INTO users (name) VALUES ($1)",
			args:      []any{"Alice"},
			wantLog:   true,
		},
		{
			name:      "read_operation_audit_writes",
			level:     AuditWrites,
			operation: "SELECT",
			query:     "SELECT * FROM users",
			wantLog:   false,
		},
		{
			name:      "read_operation_audit_reads",
			level:     AuditReads,
			operation: "SELECT",
			query:     "SELECT * FROM users WHERE id = $1",
			args:      []any{123},
			wantLog:   true,
		},
		{
			name:      "explain_audit_reads",
			level:     AuditReads,
			operation: "EXPLAIN",
			query:     "EXPLAIN (FORMAT JSON) SELECT * FROM users",
			wantLog:   false,
		},
		{
			name:      "explain_audit_all",
			level:     AuditAll,
			operation: "EXPLAIN",
			query:     "EXPLAIN (FORMAT JSON) SELECT * FROM users",
			wantLog:   true,
		},
		{
			name:      "failed_operation",
			level:     AuditWrites,
			operation: "UPDATE",
			query:     "UPDATE users SET status = $1 WHERE id = $2",
			args:      []any{1, 999},
			err:       errors.New("record not found"),
			wantLog:   true,
		},
		{
			name:      "audit_none",
			level:     AuditNone,
			operation: "DELETE",
			query:     "DELETE FROM users WHERE id = $1",
			args:      []any{1},
			wantLog:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			auditor := newJSONAuditor(&buf, slog.LevelInfo, tt.level)

			auditor.LogOperation(context.Background(), tt.operation, tt.query, tt.args, 1, tt.err, 10*time.Millisecond)

			logOutput := buf.String()
			if tt.wantLog && logOutput == "" {
				t.Fatal("Expected audit log but got none")
			}
			if !tt.wantLog && logOutput != "" {
				t.Fatalf("Expected no audit log but got: %s", logOutput)
			}
			if tt.wantLog {
				if !strings.Contains(logOutput, tt.operation) {
					t.Errorf("Log missing operation: %s", logOutput)
				}
				if tt.err != nil && !strings.Contains(logOutput, `"level":"WARN"`) {
					t.Errorf("Failed operation should log at WARN: %s", logOutput)
				}
			}
		})
	}
}

func TestAuditor_ContextMetadata(t *testing.T) {
	var buf bytes.Buffer
	auditor := newJSONAuditor(&buf, slog.LevelInfo, AuditAll)

	ctx := context.Background()
	ctx = WithUser(ctx, "john.doe@example.com")
	ctx = WithClientIP(ctx, "192.168.1.100")
	ctx = WithRequestID(ctx, "req-12345")

	auditor.LogOperation(ctx, "INSERT", "INSERT INTO logs (message) VALUES ($1)",
		[]any{"test message"}, 1, nil, 5*time.Millisecond)

	logOutput := buf.String()
	for _, want := range []string{"john.doe@example.com", "192.168.1.100", "req-12345", `"table":"logs"`} {
		if !strings.Contains(logOutput, want) {
			t.Errorf("Log missing %s: %s", want, logOutput)
		}
	}
}

func TestAuditor_ParamsHash(t *testing.T) {
	var buf bytes.Buffer
	auditor := newJSONAuditor(&buf, slog.LevelInfo, AuditWrites)

	auditor.LogOperation(context.Background(), "INSERT", "INSERT INTO users (name, email) VALUES ($1, $2)",
		[]any{"Alice", "alice@example.com"}, 1, nil, 10*time.Millisecond)

	logOutput := buf.String()
	if !strings.Contains(logOutput, "params_hash") {
		t.Error("Log missing params_hash")
	}
	if strings.Contains(logOutput, "alice@example.com") {
		t.Error("Log contains a parameter value")
	}

	hash1 := hashParams([]any{"Alice", "alice@example.com"})
	if hash1 != hashParams([]any{"Alice", "alice@example.com"}) {
		t.Error("Parameter hash is not consistent")
	}
	if hash1 == hashParams([]any{"Bob", "bob@example.com"}) {
		t.Error("Different parameters produced same hash")
	}
	if hashParams([]any{"ab", "c"}) == hashParams([]any{"a", "bc"}) {
		t.Error("Parameter boundaries do not affect the hash")
	}
	if len(hash1) != 64 {
		t.Errorf("hashParams() produced hash of length %d, want 64", len(hash1))
	}
	if hashParams(nil) != "" {
		t.Error("hashParams(nil) should be empty")
	}
}

func TestAuditor_LogSecurityEvent(t *testing.T) {
	var buf bytes.Buffer
	auditor := newJSONAuditor(&buf, slog.LevelWarn, AuditAll)

	ctx := WithClientIP(WithUser(context.Background(), "attacker@evil.com"), "10.0.0.1")

	_, err := Sanitize("id; DROP TABLE users", false)
	if err == nil {
		t.Fatal("expected sanitizer rejection")
	}
	auditor.LogSecurityEvent(ctx, "identifier_rejected", "", err)

	logOutput := buf.String()
	for _, want := range []string{"security_event", "identifier_rejected", "attacker@evil.com", `"kind":"invalid identifier"`, "statement separator"} {
		if !strings.Contains(logOutput, want) {
			t.Errorf("Log missing %s: %s", want, logOutput)
		}
	}
}

func TestAuditor_NilLogger(t *testing.T) {
	auditor := NewAuditor(nil, AuditAll)
	ctx := context.Background()

	auditor.LogOperation(ctx, "INSERT", "INSERT INTO test VALUES ($1)", []any{1}, 1, nil, time.Millisecond)
	auditor.LogSecurityEvent(ctx, "test_event", "SELECT 1", errors.New("test error"))

	var nilAuditor *Auditor
	nilAuditor.LogOperation(ctx, "INSERT", "INSERT INTO test VALUES ($1)", []any{1}, 1, nil, time.Millisecond)
	nilAuditor.LogSecurityEvent(ctx, "test_event", "SELECT 1", errors.New("test error"))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	ctx = WithUser(ctx, "test.user@example.com")
	if user := GetUser(ctx); user != "test.user@example.com" {
		t.Errorf("GetUser() = %s, want test.user@example.com", user)
	}

	ctx = WithClientIP(ctx, "172.16.0.1")
	if ip := GetClientIP(ctx); ip != "172.16.0.1" {
		t.Errorf("GetClientIP() = %s, want 172.16.0.1", ip)
	}

	ctx = WithRequestID(ctx, "req-xyz-789")
	if reqID := GetRequestID(ctx); reqID != "req-xyz-789" {
		t.Errorf("GetRequestID() = %s, want req-xyz-789", reqID)
	}

	if user := GetUser(context.Background()); user != "" {
		t.Errorf("GetUser(empty) = %s, want empty string", user)
	}
}

func TestTableName(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT * FROM users WHERE id = $1", "users"},
		{"SELECT id FROM public.orders", "public.orders"},
		{`SELECT * FROM "Order Items"`, "Order Items"},
		{"INSERT INTO sessions (token) VALUES ($1)", "sessions"},
		{"UPDATE accounts SET balance = $1 WHERE id = $2", "accounts"},
		{"DELETE FROM audit_log WHERE id = $1", "audit_log"},
		{"SELECT COUNT(*) AS count FROM (SELECT * FROM posts) AS count_subquery", "posts"},
		{"SELECT 1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := TableName(tt.query); got != tt.want {
				t.Errorf("TableName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAuditLevel(t *testing.T) {
	tests := map[string]AuditLevel{
		"":       AuditNone,
		"none":   AuditNone,
		"writes": AuditWrites,
		"Reads":  AuditReads,
		" all ":  AuditAll,
	}
	for in, want := range tests {
		got, err := ParseAuditLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseAuditLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseAuditLevel("verbose"); err == nil {
		t.Error("ParseAuditLevel(verbose) should fail")
	}
}
