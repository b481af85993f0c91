package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"finanzas/internal/core"
)

// Routing keys on the exchange.
const (
	RoutingInputChanged   = "input.changed"
	RoutingSummaryUpdated = "summary.updated"
)

// Input change kinds carried by InputChangedMessage.
const (
	KindHistoryLoaded   = "history_loaded"
	KindWalletsLoaded   = "wallets_loaded"
	KindCurrencyChanged = "currency_changed"
	KindMonthChanged    = "month_changed"
)

// InputChangedMessage tells the worker that one of the dashboard inputs
// changed. Currency is only set for currency_changed.
type InputChangedMessage struct {
	Kind      string    `json:"kind"`
	Currency  string    `json:"currency,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewInputChangedMessage(kind, currency string) *InputChangedMessage {
	return &InputChangedMessage{Kind: kind, Currency: currency, Timestamp: time.Now()}
}

// Validate checks the kind and, for currency changes, the currency code.
func (m *InputChangedMessage) Validate() error {
	switch m.Kind {
	case KindHistoryLoaded, KindWalletsLoaded, KindMonthChanged:
		return nil
	case KindCurrencyChanged:
		if !core.ValidCurrency(m.Currency) {
			return fmt.Errorf("currency_changed: %w", core.ErrInvalidCurrency)
		}
		return nil
	}
	return fmt.Errorf("unknown input change kind %q", m.Kind)
}

func (m *InputChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func InputChangedMessageFromJSON(data []byte) (*InputChangedMessage, error) {
	var msg InputChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SummaryUpdatedMessage carries an applied summary and its sequence number.
type SummaryUpdatedMessage struct {
	Seq       int64               `json:"seq"`
	Reason    string              `json:"reason"`
	Summary   core.MonthlySummary `json:"summary"`
	Timestamp time.Time           `json:"timestamp"`
}

func NewSummaryUpdatedMessage(seq int64, reason string, s core.MonthlySummary) *SummaryUpdatedMessage {
	return &SummaryUpdatedMessage{Seq: seq, Reason: reason, Summary: s, Timestamp: time.Now()}
}

func (m *SummaryUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SummaryUpdatedMessageFromJSON(data []byte) (*SummaryUpdatedMessage, error) {
	var msg SummaryUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
