package entity

import "time"

// LogMessage is a log record persisted to the payment_log collection.
type LogMessage struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Level     string    `json:"level" bson:"level"`
	Source    string    `json:"source" bson:"source"`
	Text      string    `json:"text" bson:"text"`
	Error     string    `json:"error,omitempty" bson:"error,omitempty"`
}

func (l *LogMessage) DataType() string {
	return "log_message"
}
