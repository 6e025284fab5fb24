package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BridgeMetrics tracks provider activity: operations dispatched to the signer
// service, client rebinds, and notification handling outcomes.
type BridgeMetrics struct {
	requests   *prometheus.CounterVec
	rebinds    prometheus.Counter
	dropped    *prometheus.CounterVec
	violations prometheus.Counter
}

var (
	bridgeMetricsOnce sync.Once
	bridgeRegistry    *BridgeMetrics
)

// Bridge returns the lazily-initialised metrics registry for provider
// activity.
func Bridge() *BridgeMetrics {
	bridgeMetricsOnce.Do(func() {
		bridgeRegistry = &BridgeMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "walletbridge",
				Subsystem: "bridge",
				Name:      "requests_total",
				Help:      "Total signer operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			rebinds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "walletbridge",
				Subsystem: "bridge",
				Name:      "client_rebinds_total",
				Help:      "Times the bound signer client was reconstructed after a session change.",
			}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "walletbridge",
				Subsystem: "bridge",
				Name:      "notifications_dropped_total",
				Help:      "Inbound notifications rejected before dispatch, segmented by reason.",
			}, []string{"reason"}),
			violations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "walletbridge",
				Subsystem: "bridge",
				Name:      "protocol_violations_total",
				Help:      "Accepted-channel notifications carrying an unrecognised event name.",
			}),
		}
		prometheus.MustRegister(
			bridgeRegistry.requests,
			bridgeRegistry.rebinds,
			bridgeRegistry.dropped,
			bridgeRegistry.violations,
		)
	})
	return bridgeRegistry
}

// RecordRequest increments the operation counter with a success/error outcome.
func (m *BridgeMetrics) RecordRequest(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(normalizeLabel(operation), outcome).Inc()
}

// RecordRebind counts a reconstruction of the bound signer client.
func (m *BridgeMetrics) RecordRebind() {
	if m == nil {
		return
	}
	m.rebinds.Inc()
}

// RecordDroppedNotification counts a silently rejected inbound message.
func (m *BridgeMetrics) RecordDroppedNotification(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(reason)).Inc()
}

// RecordProtocolViolation counts an unrecognised event on an accepted channel.
func (m *BridgeMetrics) RecordProtocolViolation() {
	if m == nil {
		return
	}
	m.violations.Inc()
}

func normalizeLabel(v string) string {
	normalized := strings.TrimSpace(strings.ToLower(v))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
