package observability

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}

// SyncMetrics counts reconciliation outcomes per provider and direction.
type SyncMetrics struct {
	items          metric.Int64Counter
	providerErrors metric.Int64Counter
}

// NewSyncMetrics registers the engine's counters on the global meter provider.
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter("trainsync/sync")

	items, err := meter.Int64Counter("sync_items_total",
		metric.WithDescription("Batch items processed, by provider, direction and outcome"))
	if err != nil {
		return nil, err
	}

	providerErrors, err := meter.Int64Counter("provider_errors_total",
		metric.WithDescription("Provider API failures, by provider and failure reason"))
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{items: items, providerErrors: providerErrors}, nil
}

// RecordItem records one terminal batch item outcome.
func (m *SyncMetrics) RecordItem(ctx context.Context, provider, direction, state string) {
	if m == nil {
		return
	}
	m.items.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("direction", direction),
			attribute.String("state", state),
		))
}

// RecordProviderError records a failed provider API call.
func (m *SyncMetrics) RecordProviderError(ctx context.Context, provider, reason string) {
	if m == nil {
		return
	}
	m.providerErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("reason", reason),
		))
}
