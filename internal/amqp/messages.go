package amqp

import (
	"encoding/json"
	"time"

	"gastos/internal/core"
)

// ChangeMessage announces a successful write to a ledger table. Receivers
// only use it to drop their cached copy; the table itself is re-read from
// the backing store.
type ChangeMessage struct {
	Table     string    `json:"table"`
	Op        string    `json:"op"`
	Key       string    `json:"key,omitempty"`
	User      string    `json:"user,omitempty"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage wraps ev for publishing by the process identified by origin.
func NewChangeMessage(ev core.ChangeEvent, origin string) *ChangeMessage {
	return &ChangeMessage{
		Table:     ev.Table,
		Op:        ev.Op,
		Key:       ev.Key,
		User:      ev.User,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// Event returns the change without transport metadata.
func (m *ChangeMessage) Event() core.ChangeEvent {
	return core.ChangeEvent{Table: m.Table, Op: m.Op, Key: m.Key, User: m.User}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON creates a message from JSON bytes
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
