package history

import (
	"context"
	"time"
)

// Kind names the component an event came from.
type Kind string

const (
	KindCrawler Kind = "crawler"
	KindLogin   Kind = "login"
	KindPublish Kind = "publish"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart      EventType = "start"
	EventStop       EventType = "stop"
	EventExit       EventType = "exit"
	EventFinished   EventType = "finished"
	EventDispatched EventType = "dispatched"
	EventFailed     EventType = "failed"
)

// Record is the subject of an event. Fields that do not apply to a kind
// stay zero.
type Record struct {
	Name      string `json:"name"`
	PID       int    `json:"pid,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Kind       Kind      `json:"kind"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
