package notify

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Event types dispatched by the engine.
const (
	EventFlagCreated    = "flag.created"
	EventFlagMerged     = "flag.merged"
	EventFlagReviewed   = "flag.reviewed"
	EventAutoModBlocked = "automod.blocked"
	EventReportFiled    = "report.filed"
	EventReportUpdated  = "report.updated"
)

// Endpoint is a configured webhook receiver. An empty Events list subscribes
// to every event.
type Endpoint struct {
	URL    string   `mapstructure:"url"    json:"url"`
	Secret string   `mapstructure:"secret" json:"-"`
	Events []string `mapstructure:"events" json:"events"`
}

// Wants reports whether the endpoint subscribes to eventType.
func (e Endpoint) Wants(eventType string) bool {
	return len(e.Events) == 0 || slices.Contains(e.Events, eventType) || slices.Contains(e.Events, "*")
}

// Event is the JSON body POSTed to endpoints.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}
