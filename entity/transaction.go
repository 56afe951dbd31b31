// Package entity defines data models for the CMI payment service.
package entity

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a payment transaction.
// A transaction starts in draft and only advances through ApplyStatus;
// done, canceled and error are terminal for this integration.
type State string

const (
	StateDraft    State = "draft"
	StatePending  State = "pending"
	StateDone     State = "done"
	StateCanceled State = "canceled"
	StateError    State = "error"
)

// Billing holds the billing contact fields sent to the gateway.
type Billing struct {
	Name        string `json:"name" bson:"name"`
	Email       string `json:"email" bson:"email"`
	Phone       string `json:"phone" bson:"phone"`
	Street      string `json:"street" bson:"street"`
	City        string `json:"city" bson:"city"`
	Zip         string `json:"zip" bson:"zip"`
	Country     string `json:"country" bson:"country"`
	CountryCode string `json:"country_code" bson:"country_code"`
	StateName   string `json:"state_name" bson:"state_name"`
	StateCode   string `json:"state_code" bson:"state_code"`
	Lang        string `json:"lang" bson:"lang"`
}

// Transaction represents a single hosted-redirect payment attempt.
// Reference is the merchant-side identifier echoed back by the gateway;
// ProviderReference is the gateway's own identifier, set on feedback only.
type Transaction struct {
	Reference         string    `json:"reference" bson:"reference"`
	Provider          string    `json:"provider" bson:"provider"`
	Amount            float64   `json:"amount" bson:"amount"`
	Currency          string    `json:"currency" bson:"currency"`
	CurrencyDecimals  *int      `json:"currency_decimals,omitempty" bson:"currency_decimals,omitempty"`
	State             State     `json:"state" bson:"state"`
	StateMessage      string    `json:"state_message,omitempty" bson:"state_message,omitempty"`
	ProviderReference string    `json:"provider_reference,omitempty" bson:"provider_reference,omitempty"`
	Billing           Billing   `json:"billing" bson:"billing"`
	TimeCreated       time.Time `json:"time_created" bson:"time_created"`
	TimeUpdated       time.Time `json:"time_updated" bson:"time_updated"`
}

// IsTerminal reports whether the transaction reached a final state.
// Callbacks for terminal transactions are replays and must not be reprocessed.
func (t *Transaction) IsTerminal() bool {
	switch t.State {
	case StateDone, StateCanceled, StateError:
		return true
	}
	return false
}

// ApplyStatus advances the transaction according to the gateway status label.
// Unrecognized labels are never silently ignored: the transaction moves to
// the error state with a diagnostic message recording the label.
func (t *Transaction) ApplyStatus(status string) {
	switch status {
	case "PENDING":
		t.State = StatePending
	case "APPROVED":
		t.State = StateDone
	case "EXPIRED", "DECLINED":
		t.State = StateCanceled
	default:
		t.State = StateError
		t.StateMessage = fmt.Sprintf("invalid payment status %q", status)
	}
}
