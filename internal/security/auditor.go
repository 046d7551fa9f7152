package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/coregx/pgquery/internal/logger"
)

// AuditLevel selects which operations the auditor records.
type AuditLevel int

const (
	// AuditNone disables audit logging.
	AuditNone AuditLevel = iota
	// AuditWrites records INSERT, UPDATE, DELETE and UPSERT.
	AuditWrites
	// AuditReads records reads as well as writes.
	AuditReads
	// AuditAll records every operation, including EXPLAIN and utility statements.
	AuditAll
)

// ParseAuditLevel maps a configuration string to an AuditLevel.
func ParseAuditLevel(s string) (AuditLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return AuditNone, nil
	case "writes":
		return AuditWrites, nil
	case "reads":
		return AuditReads, nil
	case "all":
		return AuditAll, nil
	default:
		return AuditNone, fmt.Errorf("unknown audit level %q", s)
	}
}

// AuditEvent is one audited statement.
type AuditEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	User         string    `json:"user,omitempty"`
	Operation    string    `json:"operation"`
	Table        string    `json:"table,omitempty"`
	AffectedRows int64     `json:"affected_rows"`
	SQL          string    `json:"sql"`
	ParamsHash   string    `json:"params_hash,omitempty"` // SHA256 of the parameters; values are never logged
	ClientIP     string    `json:"client_ip,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Duration     int64     `json:"duration_ms,omitempty"`
}

// Auditor writes audit events for executed statements and security events
// for rejected input.
type Auditor struct {
	logger logger.Logger
	level  AuditLevel
}

// NewAuditor creates an auditor. A nil logger disables it.
func NewAuditor(l logger.Logger, level AuditLevel) *Auditor {
	return &Auditor{logger: l, level: level}
}

// LogOperation records an executed statement.
func (a *Auditor) LogOperation(ctx context.Context, operation, query string, args []any, rows int64, err error, duration time.Duration) {
	if !a.shouldLog(operation) {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Operation: operation,
		Table:     TableName(query),
		SQL:       query,
		Success:   err == nil,
		Duration:  duration.Milliseconds(),
	}
	fillContext(ctx, &event)

	if len(args) > 0 {
		event.ParamsHash = hashParams(args)
	}
	if err == nil {
		event.AffectedRows = rows
	} else {
		event.Error = err.Error()
	}

	a.logEvent(event)
}

// LogSecurityEvent records rejected input. When err is a *Error its kind and
// rule are logged as separate fields.
func (a *Auditor) LogSecurityEvent(ctx context.Context, eventType, query string, err error) {
	if a == nil || a.logger == nil || err == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Operation: eventType,
		SQL:       query,
		Error:     err.Error(),
	}
	fillContext(ctx, &event)

	args := []any{
		"event_type", eventType,
		"timestamp", event.Timestamp,
		"user", event.User,
		"client_ip", event.ClientIP,
		"request_id", event.RequestID,
		"query", query,
		"error", event.Error,
	}
	var secErr *Error
	if errors.As(err, &secErr) {
		args = append(args, "kind", secErr.Kind.Error(), "rule", secErr.Rule)
	}
	a.logger.Warn("security_event", args...)
}

func (a *Auditor) shouldLog(operation string) bool {
	if a == nil || a.logger == nil {
		return false
	}

	switch a.level {
	case AuditWrites:
		switch operation {
		case "INSERT", "UPDATE", "DELETE", "UPSERT":
			return true
		}
		return false
	case AuditReads:
		return operation != "EXPLAIN" && operation != "OTHER"
	case AuditAll:
		return true
	default:
		return false
	}
}

func (a *Auditor) logEvent(event AuditEvent) {
	logFunc := a.logger.Info
	if !event.Success {
		logFunc = a.logger.Warn
	}

	logFunc("audit_event",
		"timestamp", event.Timestamp,
		"user", event.User,
		"operation", event.Operation,
		"table", event.Table,
		"affected_rows", event.AffectedRows,
		"sql", event.SQL,
		"params_hash", event.ParamsHash,
		"client_ip", event.ClientIP,
		"request_id", event.RequestID,
		"success", event.Success,
		"error", event.Error,
		"duration_ms", event.Duration,
	)
}

func fillContext(ctx context.Context, event *AuditEvent) {
	event.User = GetUser(ctx)
	event.ClientIP = GetClientIP(ctx)
	event.RequestID = GetRequestID(ctx)
}

// hashParams lets an audit trail correlate parameter sets without storing them.
func hashParams(params []any) string {
	if len(params) == 0 {
		return ""
	}

	h := sha256.New()
	for _, param := range params {
		_, _ = fmt.Fprintf(h, "%v\x00", param)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// tableReference finds the first table a statement reads from or writes to.
// The statements audited here are produced by the builder, so the keyword
// that precedes the table is always one of these.
var tableReference = regexp.MustCompile(`(?i)\b(?:FROM|INTO|UPDATE|JOIN)\s+("(?:[^"]|"")+"|[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)?)`)

// TableName returns the first table named after FROM, INTO, UPDATE or
// JOIN, skipping derived tables. It returns "" when none is found.
func TableName(query string) string {
	for _, m := range tableReference.FindAllStringSubmatch(query, -1) {
		name := m[1]
		if strings.HasPrefix(name, `"`) {
			return strings.ReplaceAll(name[1:len(name)-1], `""`, `"`)
		}
		return name
	}
	return ""
}

type contextKey string

const (
	userKey      contextKey = "pgquery:user"
	clientIPKey  contextKey = "pgquery:client_ip"
	requestIDKey contextKey = "pgquery:request_id"
)

// WithUser adds the acting user to ctx for audit logging.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// WithClientIP adds the client address to ctx for audit logging.
func WithClientIP(ctx context.Context, clientIP string) context.Context {
	return context.WithValue(ctx, clientIPKey, clientIP)
}

// WithRequestID adds a request ID to ctx for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetUser returns the user stored by WithUser.
func GetUser(ctx context.Context) string {
	user, _ := ctx.Value(userKey).(string)
	return user
}

// GetClientIP returns the address stored by WithClientIP.
func GetClientIP(ctx context.Context) string {
	clientIP, _ := ctx.Value(clientIPKey).(string)
	return clientIP
}

// GetRequestID returns the ID stored by WithRequestID.
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}
