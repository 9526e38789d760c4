package config

// Sort defaults.
const (
	DefaultBlockSize  = 64
	MinBlockSize      = 8
	DefaultStrict     = false
	DefaultDescending = false
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Telemetry defaults.
const (
	DefaultServiceName     = "runsort"
	DefaultOTLPInsecure    = false
	DefaultSampleRatio     = 0.0
	DefaultMetricsTextfile = ""
)
