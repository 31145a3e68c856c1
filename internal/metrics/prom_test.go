package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromRegistryMirrorsCounters(t *testing.T) {
	src := testSource()
	reg := NewPromRegistry(src)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			switch {
			case m.GetCounter() != nil:
				values[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[name] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, float64(10), values["unklog_messages_total"])
	assert.Equal(t, float64(10), values["unklog_input_messages_total{input=kafka}"])
	assert.Equal(t, float64(10), values["unklog_output_deliveries_total{output=es}"])
	assert.Equal(t, float64(1), values["unklog_output_errors_total{output=es}"])
	assert.Equal(t, float64(0), values["unklog_output_lag{output=es}"])
	assert.Equal(t, float64(1470000000), values["unklog_start_time_seconds"])
}

func TestPromRegistryDeduplicatesNames(t *testing.T) {
	src := testSource()
	src.outputs = append(src.outputs, OutputStat{Name: "es", Count: 5})

	// Must not panic on the duplicate name; counts are summed.
	reg := NewPromRegistry(src)
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != "unklog_output_deliveries_total" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, float64(15), mf.GetMetric()[0].GetCounter().GetValue())
	}
}
