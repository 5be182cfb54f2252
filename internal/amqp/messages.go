package amqp

import (
	"encoding/json"
	"time"
)

// AnalysisRequestMessage asks the worker to re-run leak analysis for one
// user. It carries only the user id; the worker loads the transactions from
// the store.
type AnalysisRequestMessage struct {
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewAnalysisRequestMessage creates a request message for the given user
func NewAnalysisRequestMessage(userID string) *AnalysisRequestMessage {
	return &AnalysisRequestMessage{
		UserID:      userID,
		RequestedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *AnalysisRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AnalysisRequestMessageFromJSON creates a message from JSON bytes
func AnalysisRequestMessageFromJSON(data []byte) (*AnalysisRequestMessage, error) {
	var msg AnalysisRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
