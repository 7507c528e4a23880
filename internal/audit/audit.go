// Package audit records who changed which case, and when. Events are emitted
// after the backend confirms a mutation; a publisher failure is logged but
// never fails the request that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event is one case mutation.
type Event struct {
	Action    string    `json:"action"`
	CaseID    string    `json:"caseId,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Actions recorded against a case.
const (
	ActionCreate    = "case.create"
	ActionUpdate    = "case.update"
	ActionDelete    = "case.delete"
	ActionSendToPAS = "case.send_to_pas"
)

// Publisher delivers audit events to a sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// LogPublisher writes events to the structured log. It is the fallback sink
// when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.logger.InfoContext(ctx, "audit event",
		"action", ev.Action,
		"case_id", ev.CaseID,
		"actor", ev.Actor,
		"request_id", ev.RequestID,
		"timestamp", ev.Timestamp,
	)
	return nil
}

func (p *LogPublisher) Close() {}
