// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package provider

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "btcprovider"
	metricsSubsystem = "dispatch"

	// unknownMethodLabel replaces the method label of unregistered
	// operations so sites cannot grow the label set.
	unknownMethodLabel = "unknown"
)

// dispatchMetrics records the outcome and latency of dispatched requests. A
// nil value records nothing.
type dispatchMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// newDispatchMetrics creates the dispatch collectors and registers them on
// reg. It returns nil if reg is nil.
func newDispatchMetrics(reg prometheus.Registerer) (*dispatchMetrics,
	error) {

	if reg == nil {
		return nil, nil
	}

	m := &dispatchMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "Number of dispatched requests by outcome.",
		}, []string{"method", "tier", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "duration_seconds",
			Help:      "Time spent serving dispatched requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// observe records a served request. The code label is "0" for success and
// the classified error code otherwise.
func (m *dispatchMetrics) observe(method OperationID, err error,
	elapsed time.Duration) {

	if m == nil {
		return
	}

	methodLabel := string(method)
	tierLabel := unknownMethodLabel
	desc, ok := LookupOperation(method)
	if ok {
		tierLabel = desc.Tier.String()
	} else {
		methodLabel = unknownMethodLabel
	}

	code := 0
	if err != nil {
		code = Classify(err).Code
	}

	m.requests.WithLabelValues(
		methodLabel, tierLabel, strconv.Itoa(code),
	).Inc()
	m.latency.WithLabelValues(methodLabel).Observe(elapsed.Seconds())
}
