package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"findash/internal/core"
)

// AlertMessage carries a triggered alert from the monitor to the notifier.
type AlertMessage struct {
	Alert     core.Alert `json:"alert"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewAlertMessage(a core.Alert) *AlertMessage {
	return &AlertMessage{Alert: a, Timestamp: time.Now()}
}

func (m *AlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AlertMessageFromJSON decodes a message; an alert without an id is rejected.
func AlertMessageFromJSON(data []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Alert.ID == "" {
		return nil, errors.New("alert message without id")
	}
	return &msg, nil
}
