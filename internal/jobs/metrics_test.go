package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// counterValue sums the samples of a gathered counter family matching labels.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("analytics:warmup").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("analytics:warmup").End(boom), boom)

	require.Equal(t, 1.0, counterValue(t, reg, "homestock_jobs_total", map[string]string{"job": "analytics:warmup", "status": "success"}))
	require.Equal(t, 1.0, counterValue(t, reg, "homestock_jobs_total", map[string]string{"job": "analytics:warmup", "status": "failure"}))
	require.Equal(t, 1.0, counterValue(t, reg, "homestock_jobs_failures_total", map[string]string{"job": "analytics:warmup"}))
}

func TestAlertSent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AlertSent("low_stock", "webhook")
	m.AlertSent("low_stock", "webhook")
	require.Equal(t, 2.0, counterValue(t, reg, "homestock_alerts_sent_total", map[string]string{"kind": "low_stock", "channel": "webhook"}))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AlertSent("low_stock", "log")
}

func TestInFlightReturnsToZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	tracker := m.Track("maintenance:idempotency_cleanup")
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 1.0, gaugeValue(families, "homestock_jobs_in_flight"))

	require.NoError(t, tracker.End(nil))
	families, err = reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 0.0, gaugeValue(families, "homestock_jobs_in_flight"))
}

func gaugeValue(families []*dto.MetricFamily, name string) float64 {
	for _, family := range families {
		if family.GetName() == name && len(family.GetMetric()) > 0 {
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}
