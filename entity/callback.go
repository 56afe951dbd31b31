package entity

import "time"

// CallbackPayload is the untrusted field set delivered by the gateway on
// browser returns and webhook notifications, decoded from the form body.
type CallbackPayload map[string]string

// CallbackRecord archives a received callback for operator troubleshooting.
type CallbackRecord struct {
	Provider  string            `json:"provider" bson:"provider"`
	Reference string            `json:"reference" bson:"reference"`
	Fields    map[string]string `json:"fields" bson:"fields"`
	Outcome   string            `json:"outcome" bson:"outcome"`
	Received  time.Time         `json:"received" bson:"received"`
}
