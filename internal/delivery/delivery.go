// Package delivery holds the report deliverers that need no external service
// and the metering wrapper shared by all methods.
package delivery

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/metrics"
)

// Method names accepted by report.method.
const (
	MethodLog     = "log"
	MethodWebhook = "webhook"
	MethodSMTP    = "smtp"
	MethodPubSub  = "pubsub"
	MethodGCS     = "gcs"
)

// Log writes the report to an io.Writer, stdout by default.
type Log struct {
	out    io.Writer
	logger *zap.Logger
}

// NewLog constructs a Log deliverer.
func NewLog(out io.Writer, logger *zap.Logger) *Log {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{out: out, logger: logger}
}

// Deliver prints the body followed by a newline.
func (l *Log) Deliver(_ context.Context, text string) error {
	if _, err := fmt.Fprintln(l.out, text); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	l.logger.Info("report printed", zap.Int("length", len(text)))
	return nil
}

// Metered records a delivery metric around another Deliverer.
type Metered struct {
	method string
	next   crawler.Deliverer
}

// WithMetrics wraps next so every attempt is counted under method.
func WithMetrics(method string, next crawler.Deliverer) *Metered {
	return &Metered{method: method, next: next}
}

// Deliver forwards to the wrapped Deliverer.
func (m *Metered) Deliver(ctx context.Context, text string) error {
	if err := m.next.Deliver(ctx, text); err != nil {
		metrics.ObserveDelivery(m.method, metrics.DeliveryFailed)
		return fmt.Errorf("%s delivery: %w", m.method, err)
	}
	metrics.ObserveDelivery(m.method, metrics.DeliveryOK)
	return nil
}
