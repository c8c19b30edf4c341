package refresh

import (
	"time"

	"genescore/domain/score"
)

// EventType names what a finished run did
type EventType string

const (
	EventPublished EventType = "published"
	EventFailed    EventType = "failed"
)

// Event is emitted after every run that published a snapshot or failed
type Event struct {
	Type       EventType  `json:"type"`
	Generation uint64     `json:"generation"`
	Mode       score.Mode `json:"mode,omitempty"`
	Genes      int        `json:"genes"`
	Reasons    []string   `json:"reasons,omitempty"`
	Error      string     `json:"error,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
