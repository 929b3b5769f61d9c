package http

import (
	"errors"
	nethttp "net/http"

	"github.com/Misgexx/mintguard/internal/payments"
	"github.com/gin-gonic/gin"
)

const (
	msgOrderNotFound   = "Order not found"
	msgInvalidState    = "Order not in PAID state"
	msgKeyConflict     = "Idempotency-Key was used for a different request"
	msgInFlight        = "Request in flight; retry shortly"
	msgMissingKey      = "Missing Idempotency-Key header"
	msgInvalidOrderID  = "invalid order id"
	msgInternalFailure = "internal error"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: message})
}

// respondDomainError maps a payments error to its status and client message.
// Anything unrecognized is reported as a 500 without leaking details.
func respondDomainError(c *gin.Context, err error) {
	_ = c.Error(err)

	status := payments.StatusCode(err)
	switch {
	case errors.Is(err, payments.ErrOrderNotFound):
		respondError(c, status, msgOrderNotFound)
	case errors.Is(err, payments.ErrInvalidState):
		respondError(c, status, msgInvalidState)
	case errors.Is(err, payments.ErrKeyConflict):
		respondError(c, status, msgKeyConflict)
	case errors.Is(err, payments.ErrRequestInFlight):
		respondError(c, status, msgInFlight)
	case errors.Is(err, payments.ErrMissingKey):
		respondError(c, status, msgMissingKey)
	case errors.Is(err, payments.ErrInvalidAmount), errors.Is(err, payments.ErrInvalidCurrency):
		respondError(c, status, err.Error())
	default:
		respondError(c, nethttp.StatusInternalServerError, msgInternalFailure)
	}
}
