package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Collectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveDispatch("ok")
	m.ObserveDispatch("ok")
	m.ObserveDispatch("failure")
	m.ObserveRefresh("unreachable")
	m.ObservePoll("ok")
	m.ObserveSignal("offer")
	m.SetPoolSize(12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues("unreachable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signalTotal.WithLabelValues("offer")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.poolSize))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
