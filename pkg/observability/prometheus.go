package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewPrometheusReader creates an OTel metric reader that exposes every
// instrument through a private Prometheus registry. Each call creates an
// independent registry so repeated calls never collide on collectors.
func NewPrometheusReader() (sdkmetric.Reader, *prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return exporter, registry, nil
}

// WriteTextfile gathers g and writes it to path in the Prometheus text
// exposition format, suitable for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	err := prometheus.WriteToTextfile(path, g)
	if err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}

	return nil
}
