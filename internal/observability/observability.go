package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Config gathers what Init needs.
type Config struct {
	ServiceName string
	Log         LogConfig
	Tracing     TracingConfig
}

// Observability holds the process-wide logger, metrics and tracer.
type Observability struct {
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *PrometheusMetrics
	Tracing  *TracerProvider
}

// Init builds the logger, a fresh prometheus registry with the Go and
// process collectors, the ranking metrics and the tracer provider.
func Init(ctx context.Context, cfg Config) (*Observability, error) {
	logger := NewLogger(cfg.Log, cfg.ServiceName)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tp, err := NewTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	return &Observability{
		Logger:   logger,
		Registry: reg,
		Metrics:  NewPrometheusMetrics(reg),
		Tracing:  tp,
	}, nil
}

func (o *Observability) Shutdown(ctx context.Context) error {
	return o.Tracing.Shutdown(ctx)
}
