package audit

import (
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"

	EventAuthSuccess EventType = "auth.success"
	EventAuthFailure EventType = "auth.failure"

	EventOrgProductionDetected EventType = "org.production_detected"
	EventOrgSkipped            EventType = "org.skipped"
	EventOrgFailed             EventType = "org.failed"

	EventPlanCreated EventType = "plan.created"

	EventDeleteConfirmed EventType = "delete.confirmed"
	EventDeleteCancelled EventType = "delete.cancelled"
	EventDeleteBatch     EventType = "delete.batch"
	EventDeleteCompleted EventType = "delete.completed"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a single audit record.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"runId"`
	Actor     Actor          `json:"actor"`
	Target    Target         `json:"target"`
	Details   map[string]any `json:"details,omitempty"`
}

// Actor is who ran flowctl and, once known, the Salesforce user it acted as.
type Actor struct {
	User     string `json:"user"`
	Host     string `json:"host,omitempty"`
	Identity string `json:"identity,omitempty"`
}

// Target is the org (and optionally the object) an event refers to.
type Target struct {
	Instance string `json:"instance,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Name     string `json:"name,omitempty"`
}

// SeverityForEventType returns the default severity for an event type.
func SeverityForEventType(eventType EventType) Severity {
	switch eventType {
	case EventOrgFailed, EventAuthFailure:
		return SeverityCritical
	case EventOrgProductionDetected, EventOrgSkipped, EventDeleteConfirmed, EventDeleteBatch, EventDeleteCompleted:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
