package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"dinero/internal/ledger"
)

// LedgerEventMessage announces appended ledger entries. It carries ids only;
// consumers read amounts back from the store.
type LedgerEventMessage struct {
	Event          string    `json:"event"`
	SourceIDs      []int64   `json:"source_ids"`
	TransactionIDs []int64   `json:"transaction_ids"`
	TransferID     string    `json:"transfer_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewLedgerEventMessage builds a message from a ledger event, stamping it now
// when the event carries no timestamp.
func NewLedgerEventMessage(e ledger.Event) *LedgerEventMessage {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &LedgerEventMessage{
		Event:          e.Kind,
		SourceIDs:      e.SourceIDs,
		TransactionIDs: e.TransactionIDs,
		TransferID:     e.TransferID,
		Timestamp:      ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToEvent converts the message back to a ledger event.
func (m *LedgerEventMessage) ToEvent() ledger.Event {
	return ledger.Event{
		Kind:           m.Event,
		SourceIDs:      m.SourceIDs,
		TransactionIDs: m.TransactionIDs,
		TransferID:     m.TransferID,
		Timestamp:      m.Timestamp,
	}
}

// LedgerEventMessageFromJSON decodes a message and rejects ones that name no
// source.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if len(msg.SourceIDs) == 0 {
		return nil, fmt.Errorf("ledger event %q names no source", msg.Event)
	}
	return &msg, nil
}
