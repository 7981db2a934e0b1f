// Package metrics defines the Prometheus collectors for the permit services.
// Collectors are package vars so middleware and services increment them
// directly; main registers them once at startup.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "permitflow"

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

var (
	// RateLimitAllowed and RateLimitRejected count limiter decisions,
	// labelled by limiter backend ("memory" or "redis").
	RateLimitAllowed  = counterVec("rate_limit_allowed_total", "Number of allowed requests by limiter type.", "limiter")
	RateLimitRejected = counterVec("rate_limit_rejected_total", "Number of rejected requests by limiter type.", "limiter")

	// PackageTransitions counts successful lifecycle moves by target status.
	// TransitionRejections counts refused ones by gate reason.
	PackageTransitions   = counterVec("package_transitions_total", "Number of package lifecycle transitions by target status.", "to")
	TransitionRejections = counterVec("transition_rejections_total", "Number of rejected lifecycle transitions by reason.", "reason")

	DocumentVerifications = counterVec("document_verifications_total", "Number of document verification toggles by action.", "action")
	BillingSubmissions    = counter("billing_submissions_total", "Number of packages submitted to billing.")
)

// RegisterCollectors registers every collector on reg. Call once per
// registry; MustRegister panics on duplicates.
func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		RateLimitAllowed,
		RateLimitRejected,
		PackageTransitions,
		TransitionRejections,
		DocumentVerifications,
		BillingSubmissions,
	)
}
