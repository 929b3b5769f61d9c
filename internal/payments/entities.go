package payments

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order. Only PENDING -> PAID is allowed.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusPaid    OrderStatus = "PAID"
)

// Account is a ledger account in the double-entry book.
type Account string

const (
	AccountCash    Account = "CASH"
	AccountRevenue Account = "REVENUE"
)

func (a Account) Valid() bool {
	return a == AccountCash || a == AccountRevenue
}

// Order is a purchasable unit of work.
type Order struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	AmountCents int64       `json:"amount_cents"`
	Currency    string      `json:"currency"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewOrder builds a PENDING order. The currency is normalized to upper case.
func NewOrder(userID uuid.UUID, amountCents int64, currency string, now time.Time) (*Order, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !isCurrencyCode(currency) {
		return nil, ErrInvalidCurrency
	}
	return &Order{
		ID:          uuid.New(),
		UserID:      userID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// LedgerEntry is an append-only bookkeeping record. Exactly one side is nonzero.
type LedgerEntry struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	Account     Account   `json:"account"`
	DebitCents  int64     `json:"debit_cents"`
	CreditCents int64     `json:"credit_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewDebit(orderID uuid.UUID, account Account, amount int64, now time.Time) LedgerEntry {
	return LedgerEntry{ID: uuid.New(), OrderID: orderID, Account: account, DebitCents: amount, CreatedAt: now}
}

func NewCredit(orderID uuid.UUID, account Account, amount int64, now time.Time) LedgerEntry {
	return LedgerEntry{ID: uuid.New(), OrderID: orderID, Account: account, CreditCents: amount, CreatedAt: now}
}

// Validate checks the same rules the ledger_entries constraints enforce.
func (e LedgerEntry) Validate() error {
	if !e.Account.Valid() {
		return ErrInvalidEntry
	}
	if e.DebitCents < 0 || e.CreditCents < 0 {
		return ErrInvalidEntry
	}
	if (e.DebitCents == 0) == (e.CreditCents == 0) {
		return ErrInvalidEntry
	}
	return nil
}

// LedgerSummary totals the entries of one order.
type LedgerSummary struct {
	OrderID      uuid.UUID `json:"order_id"`
	TotalDebits  int64     `json:"total_debits"`
	TotalCredits int64     `json:"total_credits"`
}

func (s LedgerSummary) Balanced() bool {
	return s.TotalDebits == s.TotalCredits
}

// PayResult is the cached success payload of a pay operation.
type PayResult struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

// RefundResult is the cached success payload of a refund operation.
type RefundResult struct {
	OrderID  string `json:"order_id"`
	Refunded bool   `json:"refunded"`
}

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentRefunded = "payment.refunded"
)

// LedgerEvent is written to the outbox in the same transaction as the entries it describes.
type LedgerEvent struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	EventType   string
	AmountCents int64
	Currency    string
	OccurredAt  time.Time
}

func NewLedgerEvent(eventType string, order *Order, now time.Time) LedgerEvent {
	return LedgerEvent{
		ID:          uuid.New(),
		OrderID:     order.ID,
		EventType:   eventType,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
		OccurredAt:  now,
	}
}
