package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestComponentRegistryAppliesNamesAndLabels(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r := NewComponentRegistryWith(reg, "intrp", "target", prometheus.Labels{"target": "horizon"})

	c := r.NewCounter(prometheus.CounterOpts{Name: "epochs_completed_total", Help: "h"})
	c.Inc()
	c.Inc()

	require.Equal(t, 2.0, testutil.ToFloat64(c))
	n, err := testutil.GatherAndCount(reg, "intrp_target_epochs_completed_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "target", families[0].GetMetric()[0].GetLabel()[0].GetName())
	require.Equal(t, "horizon", families[0].GetMetric()[0].GetLabel()[0].GetValue())
}

func TestComponentRegistryNilRegisterer(t *testing.T) {
	t.Parallel()

	r := NewComponentRegistryWith(nil, "intrp", "gate", nil)
	g := r.NewGauge(prometheus.GaugeOpts{Name: "subscribers", Help: "h"})
	g.Set(3)
	require.Equal(t, 3.0, testutil.ToFloat64(g))
}
