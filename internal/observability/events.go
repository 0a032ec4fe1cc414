package observability

import "time"

// EventEnvelope is the bus format for lifecycle and domain events.
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func NewEnvelope(eventType, eventName string, payload interface{}) EventEnvelope {
	return EventEnvelope{
		EventType:  eventType,
		EventName:  eventName,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// Name identifies the envelope in logs.
func (e EventEnvelope) Name() string {
	return e.EventType + "." + e.EventName
}
