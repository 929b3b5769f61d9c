package payments

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// Operation is the kind of guarded mutation a key is bound to.
type Operation string

const (
	OperationPay    Operation = "pay"
	OperationRefund Operation = "refund"
)

// Fingerprint identifies a logical request independent of how often it is retried.
func Fingerprint(op Operation, orderID string) string {
	return string(op) + ":" + orderID
}

// Binding is the fingerprint state of a key record: Unbound for legacy rows
// written before fingerprints existed, BoundTo once a request claimed the key.
type Binding struct {
	fingerprint string
}

func Unbound() Binding {
	return Binding{}
}

func BoundTo(fingerprint string) Binding {
	return Binding{fingerprint: fingerprint}
}

func (b Binding) IsBound() bool {
	return b.fingerprint != ""
}

func (b Binding) Fingerprint() string {
	return b.fingerprint
}

// Conflicts reports whether the binding belongs to a different request.
// An unbound record never conflicts on fingerprint alone.
func (b Binding) Conflicts(fingerprint string) bool {
	return b.IsBound() && b.fingerprint != fingerprint
}

func (b Binding) String() string {
	if !b.IsBound() {
		return "unbound"
	}
	return "bound(" + b.fingerprint + ")"
}

// CachedResponse is the terminal response stored under a key and replayed verbatim.
type CachedResponse struct {
	StatusCode int
	Body       []byte
}

// KeyRecord is the persisted state of one idempotency key.
type KeyRecord struct {
	Key         string
	Binding     Binding
	Response    *CachedResponse
	LockedUntil *time.Time
	CreatedAt   time.Time
}

func (r *KeyRecord) HasResponse() bool {
	return r.Response != nil && r.Response.Body != nil
}

// LockedAt reports whether an in-flight lock is still active at now.
func (r *KeyRecord) LockedAt(now time.Time) bool {
	return r.LockedUntil != nil && r.LockedUntil.After(now)
}

// Replay returns the cached response, defaulting the status to 200 for rows
// that stored a body without one.
func (r *KeyRecord) Replay() Response {
	status := r.Response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return Response{StatusCode: status, Body: r.Response.Body, Replayed: true}
}

// cachedOrderID extracts the order_id embedded in the cached payload.
func (r *KeyRecord) cachedOrderID() (string, bool) {
	if !r.HasResponse() {
		return "", false
	}
	var payload struct {
		OrderID json.RawMessage `json:"order_id"`
	}
	if err := json.Unmarshal(r.Response.Body, &payload); err != nil {
		return "", false
	}
	raw := bytes.TrimSpace(payload.OrderID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	// numbers keep their literal form so large ids never turn into exponents
	if raw[0] != '"' {
		return string(raw), true
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", false
	}
	return id, id != ""
}
