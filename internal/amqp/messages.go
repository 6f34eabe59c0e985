package amqp

import (
	"encoding/json"
	"time"
)

// RunCompletedMessage announces the outcome of one sync pass.
type RunCompletedMessage struct {
	RunID       string    `json:"run_id"`
	Scope       string    `json:"scope"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Entrants    int       `json:"entrants"`
	Commissions int       `json:"commissions"`
	Tabs        []string  `json:"tabs"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *RunCompletedMessage) ToJSON() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if m.Tabs == nil {
		m.Tabs = []string{}
	}
	return json.Marshal(m)
}

// RunCompletedMessageFromJSON decodes a message body.
func RunCompletedMessageFromJSON(data []byte) (*RunCompletedMessage, error) {
	var msg RunCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Duration of the run the message describes.
func (m *RunCompletedMessage) Duration() time.Duration {
	if m.FinishedAt.IsZero() || m.StartedAt.IsZero() {
		return 0
	}
	return m.FinishedAt.Sub(m.StartedAt)
}
