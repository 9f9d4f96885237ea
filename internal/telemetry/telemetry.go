// Package telemetry exposes lightweight hook functions the engine calls
// around query stages. The default emitter is a no-op; embedding
// applications may register a metrics-backed emitter without the engine
// taking a dependency on any metrics SDK.
package telemetry

import "sync"

// Emitter receives one measurement: a metric name, labels, and a value.
type Emitter func(name string, labels map[string]string, value any)

var (
	mu   sync.Mutex
	impl Emitter = func(name string, labels map[string]string, value any) {
		// noop by default
	}
)

// RegisterEmitter installs a custom emitter; nil restores the no-op.
func RegisterEmitter(fn Emitter) {
	mu.Lock()
	defer mu.Unlock()
	if fn == nil {
		impl = func(name string, labels map[string]string, value any) {}
		return
	}
	impl = fn
}

func emit(name string, labels map[string]string, value any) {
	mu.Lock()
	fn := impl
	mu.Unlock()
	fn(name, labels, value)
}

// EmitQueryLatency records one query's wall time in microseconds.
func EmitQueryLatency(micros int64) {
	emit("query_latency_micros", nil, micros)
}

// EmitOperatorRows records rows produced by an operator stage.
func EmitOperatorRows(operator string, rows int64) {
	emit("operator_row_count", map[string]string{"operator": operator}, rows)
}

// EmitSegmentsPruned records zone-map pruning effectiveness for one scan.
func EmitSegmentsPruned(table string, pruned int64) {
	emit("segments_pruned", map[string]string{"table": table}, pruned)
}
