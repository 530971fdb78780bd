package internaldefs

import (
	"strconv"

	loanGuard "github.com/MrEthical07/loanGuard"
)

// Namespace prefixes every exported metric name.
const Namespace = "loanguard"

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   loanGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export. Names carry the _seconds unit;
// bucket bounds are converted from the engine's millisecond bounds.
type HistogramDef struct {
	ID   loanGuard.MetricID
	Name string
	Help string
}

var counterHelp = map[loanGuard.MetricID]string{
	loanGuard.MetricLoginSuccess:     "Successful sign-ins.",
	loanGuard.MetricLoginFailure:     "Sign-ins rejected for bad credentials.",
	loanGuard.MetricLoginRateLimited: "Sign-ins refused because the key was already blocked.",
	loanGuard.MetricLoginBlocked:     "Failed sign-ins that started a block.",
	loanGuard.MetricBackendFailure:   "Sign-ins that failed for reasons other than credentials.",
	loanGuard.MetricLogout:           "Sign-outs.",
	loanGuard.MetricGateAllowed:      "Auth gate evaluations that admitted the caller.",
	loanGuard.MetricGateDenied:       "Auth gate evaluations that redirected the caller.",
	loanGuard.MetricGateTimeout:      "Gate evaluations that exceeded their deadline.",
	loanGuard.MetricGateLookupFailed: "Gate evaluations denied because a lookup failed.",
	loanGuard.MetricAdminAllowed:     "Admin gate evaluations that admitted the caller.",
	loanGuard.MetricAdminDenied:      "Admin gate evaluations that redirected the caller.",
	loanGuard.MetricRoleFallback:     "Role lookups resolved to the least privileged role.",
}

// CounterDefs lists every counter in MetricID order.
var CounterDefs = buildCounterDefs()

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{
		ID:   loanGuard.MetricGateLatency,
		Name: Namespace + "_" + loanGuard.MetricGateLatency.String() + "_seconds",
		Help: "Wall time of one gate evaluation.",
	},
}

// AuditDroppedName is the counter for audit events shed under backpressure.
const AuditDroppedName = Namespace + "_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

func buildCounterDefs() []CounterDef {
	defs := make([]CounterDef, 0, len(counterHelp))
	for _, id := range loanGuard.MetricIDs() {
		help, ok := counterHelp[id]
		if !ok {
			continue
		}
		defs = append(defs, CounterDef{
			ID:   id,
			Name: Namespace + "_" + id.String() + "_total",
			Help: help,
		})
	}
	return defs
}

// BucketCount is the number of histogram buckets including the unbounded one.
const BucketCount = len(loanGuard.HistogramBounds) + 1

// UpperBoundsSeconds returns the finite bucket bounds in seconds.
func UpperBoundsSeconds() []float64 {
	out := make([]float64, len(loanGuard.HistogramBounds))
	for i, ms := range loanGuard.HistogramBounds {
		out[i] = float64(ms) / 1000
	}
	return out
}

// BoundSuffixes returns one name-safe suffix per bucket, "inf" last.
func BoundSuffixes() []string {
	out := make([]string, 0, BucketCount)
	for _, ms := range loanGuard.HistogramBounds {
		out = append(out, strconv.FormatInt(ms, 10)+"ms")
	}
	return append(out, "inf")
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
