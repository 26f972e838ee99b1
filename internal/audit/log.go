// Package audit emits structured security-audit events on the service log.
// Every mutating operation on identities, roles and permissions records one.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"idhub.org/internal/auth"
	"idhub.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// record is the wire shape of one audit line.
type record struct {
	Timestamp string         `json:"ts"`
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	ActorID   string         `json:"user_id,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// WithRequestID attaches the request identifier to the context so audit
// events emitted downstream can be correlated with the request log.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id previously attached, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent records one audit event. The acting user and request id are taken
// from the context; anonymous callers produce events without an actor.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	rec := record{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      "audit",
		Event:     event,
		RequestID: RequestIDFromContext(ctx),
		Fields:    map[string]any{},
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && !identity.Anonymous() {
		rec.ActorID = identity.User.ID
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
