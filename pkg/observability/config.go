// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for runsort, plus sorter observers that report sort
// sessions through all three signals.
package observability

import (
	"io"
	"log/slog"
)

// AppMode identifies how the sorter is being driven.
type AppMode string

const (
	// ModeCLI is the command-line mode.
	ModeCLI AppMode = "cli"
	// ModeLibrary is embedded use through the Go API.
	ModeLibrary AppMode = "lib"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "runsort"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "dev").
	Environment string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// SampleRatio is the trace sampling ratio (0.0 to 1.0).
	// Zero keeps every root span.
	SampleRatio float64

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// LogWriter receives log output. Nil means os.Stderr.
	LogWriter io.Writer

	// MetricsTextfile, when set, makes Shutdown write every metric to this
	// path in the Prometheus text exposition format.
	MetricsTextfile string

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
