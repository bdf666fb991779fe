// Package healthmetrics implements the two terminal sinks (spec.md
// §4.K): a pool-health monitor that disables pools exceeding a
// swap-error threshold, and a metrics writer that drains the metrics
// bus into an external time-series sink (InfluxDB, following the
// teacher's use of influxdata/influxdb1-client in cmd/geth's metrics
// reporting path).
package healthmetrics

import (
	"time"

	"github.com/flarelayer/arbbot/internal/chain"
)

// HealthEventKind tags the cause of a HealthEvent.
type HealthEventKind uint8

const (
	// HealthSwapError marks a pool simulation failure observed by the
	// arb searcher.
	HealthSwapError HealthEventKind = iota
	// HealthEstimationFailure marks an Estimator simulation failure (§4.H).
	HealthEstimationFailure
	// HealthNoBlockGasFee marks a Router failure when base fee is zero (§4.G step 2).
	HealthNoBlockGasFee
	// HealthCannotSignBundle marks a Signer bundle failure (§4.I).
	HealthCannotSignBundle
)

func (k HealthEventKind) String() string {
	switch k {
	case HealthSwapError:
		return "swap_error"
	case HealthEstimationFailure:
		return "estimation_failure"
	case HealthNoBlockGasFee:
		return "no_block_gas_fee"
	case HealthCannotSignBundle:
		return "cannot_sign_bundle"
	default:
		return "unknown"
	}
}

// HealthEvent is published on the health bus by any pipeline stage
// that encounters a handled failure (spec.md §4.K, §7).
type HealthEvent struct {
	Kind HealthEventKind
	Pool chain.PoolID // zero value if not pool-scoped
	Err  string
	At   time.Time
}

// MetricsEvent is one tick's worth of arb-searcher telemetry (spec.md
// §4.E step 7), published to the metrics bus for the metrics writer
// to drain.
type MetricsEvent struct {
	PathCount     int
	AcceptedCount int
	ElapsedMicros int64
	Origin        string
	StuffingTx    string
}

// EstimationLatencyEvent is the Estimator's per-estimate latency
// metric (§4.H).
type EstimationLatencyEvent struct {
	Micros int64
}
