package payments

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	// Arrange
	userID := uuid.New()

	// Act
	order, err := NewOrder(userID, 1200, " usd ", testNow)

	// Assert
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, order.ID)
	assert.Equal(t, userID, order.UserID)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, testNow, order.CreatedAt)
	assert.Equal(t, testNow, order.UpdatedAt)
}

func TestNewOrderValidation(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		currency string
		want     error
	}{
		{"zero amount", 0, "USD", ErrInvalidAmount},
		{"negative amount", -5, "USD", ErrInvalidAmount},
		{"short currency", 100, "US", ErrInvalidCurrency},
		{"long currency", 100, "USDT", ErrInvalidCurrency},
		{"non letters", 100, "U$D", ErrInvalidCurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder(uuid.New(), tt.amount, tt.currency, testNow)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLedgerEntryValidate(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name  string
		entry LedgerEntry
		valid bool
	}{
		{"debit only", NewDebit(id, AccountCash, 100, testNow), true},
		{"credit only", NewCredit(id, AccountRevenue, 100, testNow), true},
		{"both sides", LedgerEntry{Account: AccountCash, DebitCents: 1, CreditCents: 1}, false},
		{"neither side", LedgerEntry{Account: AccountCash}, false},
		{"negative", LedgerEntry{Account: AccountCash, DebitCents: -1}, false},
		{"unknown account", LedgerEntry{Account: "FEES", DebitCents: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidEntry)
		})
	}
}

func TestFingerprintAndBinding(t *testing.T) {
	fp := Fingerprint(OperationPay, "42")
	assert.Equal(t, "pay:42", fp)

	assert.False(t, Unbound().IsBound())
	assert.False(t, Unbound().Conflicts(fp))
	assert.True(t, BoundTo(fp).IsBound())
	assert.False(t, BoundTo(fp).Conflicts(fp))
	assert.True(t, BoundTo(fp).Conflicts(Fingerprint(OperationRefund, "42")))
	assert.Equal(t, "bound(pay:42)", BoundTo(fp).String())
}

func TestKeyRecordLockedAt(t *testing.T) {
	until := testNow.Add(time.Second)
	rec := &KeyRecord{LockedUntil: &until}

	assert.True(t, rec.LockedAt(testNow))
	assert.False(t, rec.LockedAt(until))
	assert.False(t, (&KeyRecord{}).LockedAt(testNow))
}

func TestKeyRecordCachedOrderID(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{name: "uuid string", body: `{"order_id":"9b2d6f0e-4b7c-4c43-a1de-2f1f4c7f0a11","status":"PAID"}`, want: "9b2d6f0e-4b7c-4c43-a1de-2f1f4c7f0a11", wantOK: true},
		{name: "large integer", body: `{"order_id":1200000,"status":"PAID"}`, want: "1200000", wantOK: true},
		{name: "small integer", body: `{"order_id":42}`, want: "42", wantOK: true},
		{name: "null", body: `{"order_id":null}`},
		{name: "empty string", body: `{"order_id":""}`},
		{name: "missing", body: `{"status":"PAID"}`},
		{name: "not json", body: `PAID`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &KeyRecord{Response: &CachedResponse{StatusCode: http.StatusOK, Body: []byte(tt.body)}}

			got, ok := rec.cachedOrderID()

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := (&KeyRecord{}).cachedOrderID()
	assert.False(t, ok)
}

func TestStatusCodeAndErrorKind(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{ErrOrderNotFound, http.StatusNotFound, "404"},
		{ErrInvalidState, http.StatusBadRequest, "400"},
		{ErrKeyConflict, http.StatusConflict, "409_conflict"},
		{ErrRequestInFlight, http.StatusTooEarly, "425_inflight"},
		{NewStorageError("commit", errors.New("boom")), http.StatusInternalServerError, "500"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusCode(tt.err), tt.err.Error())
		assert.Equal(t, tt.kind, ErrorKind(tt.err), tt.err.Error())
	}
}

func TestStorageErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("conn closed")
	err := NewStorageError("lock order", cause)

	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage: lock order: conn closed", err.Error())
}
