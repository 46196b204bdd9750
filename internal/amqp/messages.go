package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"ucontrol/internal/core"
)

// Routing keys, one per event type.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionDeleted = "transaction.deleted"
	EventPeriodClosed       = "period.closed"
)

// TransactionEvent announces a ledger change. The worker reloads created
// entries from the database; deleted ones travel with a snapshot because the
// row is gone by the time the event is consumed.
type TransactionEvent struct {
	Type        string               `json:"type"`
	Kind        core.TransactionKind `json:"kind"`
	ID          string               `json:"id"`
	AccountID   string               `json:"accountId"`
	PeriodKey   string               `json:"periodKey"`
	Date        core.Date            `json:"date"`
	Description string               `json:"description,omitempty"`
	Amount      core.Money           `json:"amount"`
	Category    string               `json:"category,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// NewIncomeEvent builds an event of the given type for an income.
func NewIncomeEvent(eventType string, in core.Income, periodKey string) *TransactionEvent {
	return &TransactionEvent{
		Type:        eventType,
		Kind:        core.KindIncome,
		ID:          in.ID,
		AccountID:   in.AccountID,
		PeriodKey:   periodKey,
		Date:        in.Date,
		Description: in.Description,
		Amount:      in.Amount,
		Category:    in.Category,
		Timestamp:   time.Now().UTC(),
	}
}

// NewExpenseEvent builds an event of the given type for an expense.
func NewExpenseEvent(eventType string, e core.Expense, periodKey string) *TransactionEvent {
	return &TransactionEvent{
		Type:        eventType,
		Kind:        core.KindExpense,
		ID:          e.ID,
		AccountID:   e.AccountID,
		PeriodKey:   periodKey,
		Date:        e.Date,
		Description: e.Description,
		Amount:      e.Amount,
		Category:    e.Category,
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes and sanity-checks an event body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("transaction event without id")
	}
	if msg.Kind != core.KindIncome && msg.Kind != core.KindExpense {
		return nil, fmt.Errorf("unknown transaction kind %q", msg.Kind)
	}
	return &msg, nil
}

// PeriodClosedEvent is published once a financial period has ended.
type PeriodClosedEvent struct {
	Type         string     `json:"type"`
	PeriodKey    string     `json:"periodKey"`
	CutoffDay    int        `json:"cutoffDay"`
	PeriodStart  core.Date  `json:"periodStart"`
	PeriodEnd    core.Date  `json:"periodEnd"`
	TotalIncome  core.Money `json:"totalIncome"`
	TotalExpense core.Money `json:"totalExpense"`
	Net          core.Money `json:"net"`
	ArchiveKey   string     `json:"archiveKey,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// ToJSON converts the event to JSON bytes
func (m *PeriodClosedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PeriodClosedEventFromJSON decodes a period-closed event body.
func PeriodClosedEventFromJSON(data []byte) (*PeriodClosedEvent, error) {
	var msg PeriodClosedEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
