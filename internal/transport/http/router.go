package http

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "mintguard"

// NewRouter builds the gin engine with every payments route registered.
func NewRouter(service PaymentService, tracer trace.Tracer, log logrus.FieldLogger) (*gin.Engine, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		RequestID(),
		Logger(log),
	)

	h := NewPaymentHandler(service, tracer, log)

	router.GET("/", h.Root)
	router.GET("/healthz", h.Health)

	orders := router.Group("/orders")
	orders.POST("", h.CreateOrder)
	orders.GET("/:id", h.GetOrder)
	orders.POST("/:id/pay", h.Pay)
	orders.POST("/:id/refund", h.Refund)
	orders.GET("/:id/ledger", h.Ledger)
	orders.GET("/:id/ledger/summary", h.Summary)

	return router, nil
}
