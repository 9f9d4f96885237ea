package prismdb

import "github.com/turingworks/prismdb/internal/telemetry"

// TelemetryEmitter receives engine measurements: metric name, labels, and
// a numeric value.
type TelemetryEmitter = telemetry.Emitter

// RegisterTelemetryEmitter installs a custom telemetry emitter for query
// latency, operator row counts, and pruning statistics. Passing nil
// restores the default no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	telemetry.RegisterEmitter(fn)
}
