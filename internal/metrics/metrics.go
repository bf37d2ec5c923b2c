// Package metrics declares the Prometheus collectors shared by the
// provisioning saga and the submission gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "invitecore"

var ProvisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "provisioning",
	Name:      "sagas_total",
	Help:      "Count of provisioning saga runs by terminal outcome",
}, []string{"outcome"})

var ProvisionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "provisioning",
	Name:      "saga_duration_seconds",
	Help:      "Duration of provisioning saga runs",
	Buckets:   prometheus.DefBuckets,
}, []string{"outcome"})

var CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "provisioning",
	Name:      "compensations_total",
	Help:      "Count of compensating deletes by result",
}, []string{"result"})

var SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gateway",
	Name:      "submissions_total",
	Help:      "Count of guest submissions by kind and outcome",
}, []string{"kind", "outcome"})

var RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ratelimit",
	Name:      "decisions_total",
	Help:      "Count of rate limit decisions by scope and decision",
}, []string{"scope", "decision"})

var BotGateVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "botgate",
	Name:      "verifications_total",
	Help:      "Count of bot verification outcomes",
}, []string{"result"})
