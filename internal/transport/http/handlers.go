package http

import (
	"context"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/Misgexx/mintguard/internal/payments"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	healthTimeout        = 2 * time.Second
)

// PaymentService is what the handlers need from the payments use case.
type PaymentService interface {
	CreateOrder(ctx context.Context, in payments.CreateOrderInput) (*payments.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*payments.Order, error)
	Pay(ctx context.Context, orderID uuid.UUID, key string) (payments.Response, error)
	Refund(ctx context.Context, orderID uuid.UUID, key string) (payments.Response, error)
	Ledger(ctx context.Context, orderID uuid.UUID) ([]payments.LedgerEntry, error)
	Summary(ctx context.Context, orderID uuid.UUID) (payments.LedgerSummary, error)
	Health(ctx context.Context) error
}

type PaymentHandler struct {
	service PaymentService
	tracer  trace.Tracer
	log     logrus.FieldLogger
}

func NewPaymentHandler(service PaymentService, tracer trace.Tracer, log logrus.FieldLogger) *PaymentHandler {
	return &PaymentHandler{service: service, tracer: tracer, log: log}
}

type createOrderRequest struct {
	UserID      string `json:"user_id" binding:"required,uuid"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Currency    string `json:"currency" binding:"required,currency_code"`
}

type ledgerEntryView struct {
	ID          uuid.UUID        `json:"id"`
	OrderID     uuid.UUID        `json:"order_id"`
	Account     payments.Account `json:"account"`
	DebitCents  int64            `json:"debit_cents"`
	CreditCents int64            `json:"credit_cents"`
}

func (h *PaymentHandler) Root(c *gin.Context) {
	c.JSON(nethttp.StatusOK, gin.H{"service": serviceName})
}

func (h *PaymentHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.service.Health(ctx); err != nil {
		h.log.WithError(err).Warn("health: database ping failed")
		c.JSON(nethttp.StatusServiceUnavailable, gin.H{"ok": false, "db": "down"})
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"ok": true, "db": "up"})
}

func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "create_order")
	defer span.End()

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		respondError(c, nethttp.StatusBadRequest, err.Error())
		return
	}

	order, err := h.service.CreateOrder(ctx, payments.CreateOrderInput{
		UserID:      uuid.MustParse(req.UserID),
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	})
	if err != nil {
		recordSpanError(span, err)
		respondDomainError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("order_id", order.ID.String()),
		attribute.Int64("amount_cents", order.AmountCents),
	)
	c.JSON(nethttp.StatusCreated, order)
}

func (h *PaymentHandler) GetOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, order)
}

func (h *PaymentHandler) Pay(c *gin.Context) {
	h.idempotent(c, payments.OperationPay, h.service.Pay)
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	h.idempotent(c, payments.OperationRefund, h.service.Refund)
}

// idempotent writes the coordinator's body bytes unchanged so replays match
// the first response exactly.
func (h *PaymentHandler) idempotent(
	c *gin.Context,
	op payments.Operation,
	call func(ctx context.Context, orderID uuid.UUID, key string) (payments.Response, error),
) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if key == "" {
		respondError(c, nethttp.StatusBadRequest, msgMissingKey)
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), string(op)+"_order")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", id.String()),
		attribute.String("idempotency_key", key),
	)

	resp, err := call(ctx, id, key)
	if err != nil {
		recordSpanError(span, err)
		respondDomainError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("idempotent_replay", resp.Replayed))
	if resp.Replayed {
		c.Header(replayedHeader, "true")
	}
	c.Data(resp.StatusCode, "application/json", resp.Body)
}

func (h *PaymentHandler) Ledger(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	entries, err := h.service.Ledger(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	views := make([]ledgerEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, ledgerEntryView{
			ID:          e.ID,
			OrderID:     e.OrderID,
			Account:     e.Account,
			DebitCents:  e.DebitCents,
			CreditCents: e.CreditCents,
		})
	}
	c.JSON(nethttp.StatusOK, views)
}

func (h *PaymentHandler) Summary(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, summary)
}

func orderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, nethttp.StatusBadRequest, msgInvalidOrderID)
		return uuid.Nil, false
	}
	return id, true
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	if payments.StatusCode(err) >= nethttp.StatusInternalServerError {
		span.SetStatus(codes.Error, err.Error())
	}
}
