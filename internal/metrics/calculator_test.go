package metrics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battmon/internal/models"
)

const hourMs = int64(3600_000)

func sample(voltage, current float64) models.LogSample {
	return models.LogSample{Voltage: models.Float(voltage), Current: models.Float(current), Cycle: "discharging"}
}

func TestComputeDischargeToCutoff(t *testing.T) {
	logs := map[int64]models.LogSample{
		0:          sample(4.2, -2.0),
		hourMs:     sample(3.5, -2.0),
		2 * hourMs: sample(2.9, -2.0),
	}

	m := Compute(logs, "LiPo", 4.0)

	assert.InDelta(t, 4.0, m.DischargedCapacity, 1e-9)
	assert.InDelta(t, 4.0, m.MeasuredCapacity, 1e-9)
	assert.InDelta(t, 100.0, m.SOH, 1e-9)
	assert.InDelta(t, 0.0, m.SOC, 1e-9)
	assert.InDelta(t, 0.0, m.RemainingCapacity, 1e-9)
}

func TestComputeTruncatesAfterCutoff(t *testing.T) {
	logs := map[int64]models.LogSample{
		0:          sample(4.2, -2.0),
		hourMs:     sample(3.5, -2.0),
		2 * hourMs: sample(2.9, -2.0),
		// Telemetry keeps arriving after the pack is empty; it must not count.
		3 * hourMs: sample(2.5, -2.0),
		4 * hourMs: sample(2.2, -2.0),
	}

	m := Compute(logs, "LiPo", 4.0)

	assert.InDelta(t, 4.0, m.DischargedCapacity, 1e-9)
}

func TestComputeInsufficientData(t *testing.T) {
	cases := map[string]map[int64]models.LogSample{
		"no samples":  {},
		"one sample":  {0: sample(4.0, -1.0)},
		"one valid":   {0: sample(4.0, -1.0), hourMs: {Voltage: models.Float(nan()), Current: models.Float(-1.0)}},
		"start below": {0: sample(2.8, -1.0), hourMs: sample(2.7, -1.0)},
	}

	for name, logs := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, models.Metrics{}, Compute(logs, "LiPo", 4.0))
		})
	}
}

func TestComputeMissingBatteryType(t *testing.T) {
	logs := map[int64]models.LogSample{
		0:      sample(4.2, -2.0),
		hourMs: sample(3.5, -2.0),
	}
	assert.Equal(t, models.Metrics{}, Compute(logs, "", 4.0))
	assert.Equal(t, models.Metrics{}, Compute(logs, "   ", 4.0))
}

func TestComputeSOCBounds(t *testing.T) {
	full := map[int64]models.LogSample{
		0:      sample(4.2, -1.0),
		hourMs: sample(4.2, -1.0),
	}
	m := Compute(full, "LiPo", 4.0)
	assert.InDelta(t, 100.0, m.SOC, 1e-9)

	mid := map[int64]models.LogSample{
		0:      sample(4.2, -1.0),
		hourMs: sample(3.6, -1.0),
	}
	m = Compute(mid, "LiPo", 4.0)
	assert.InDelta(t, 50.0, m.SOC, 1e-9)
}

func TestComputeSOHUnclampedAndZeroRated(t *testing.T) {
	logs := map[int64]models.LogSample{
		0:          sample(4.2, -2.0),
		hourMs:     sample(3.5, -2.0),
		2 * hourMs: sample(2.9, -2.0),
	}

	// Fresh pack exceeding its nameplate rating: SOH over 100 stays unclamped.
	m := Compute(logs, "LiPo", 2.0)
	assert.InDelta(t, 200.0, m.SOH, 1e-9)

	m = Compute(logs, "LiPo", 0)
	assert.Zero(t, m.SOH)
	assert.Zero(t, m.RemainingCapacity)
}

func TestComputeMonotonicUnderGrowth(t *testing.T) {
	logs := map[int64]models.LogSample{
		0:      sample(4.2, -2.0),
		hourMs: sample(3.9, -2.0),
	}
	prev := Compute(logs, "LiPo", 4.0).DischargedCapacity

	for i := int64(2); i <= 5; i++ {
		logs[i*hourMs] = sample(4.2-float64(i)*0.1, -2.0)
		got := Compute(logs, "LiPo", 4.0).DischargedCapacity
		require.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestComputeCoercesNumericStrings(t *testing.T) {
	raw := map[int64][]byte{
		0:          []byte(`{"voltage":"4.2","current":"-2.0","cycle":"discharging"}`),
		hourMs:     []byte(`{"voltage":3.5,"current":-2,"cycle":"discharging"}`),
		2 * hourMs: []byte(`{"voltage":"2.9","current":"-2.0","cycle":"discharging"}`),
		3 * hourMs: []byte(`{"voltage":"bogus","current":"-2.0","cycle":"discharging"}`),
	}

	logs := make(map[int64]models.LogSample, len(raw))
	for ts, data := range raw {
		var s models.LogSample
		require.NoError(t, json.Unmarshal(data, &s))
		logs[ts] = s
	}

	m := Compute(logs, "LiPo", 4.0)
	assert.InDelta(t, 4.0, m.DischargedCapacity, 1e-9)
}

func TestValidSamplesSorted(t *testing.T) {
	logs := map[int64]models.LogSample{
		3 * hourMs: sample(3.0, -1.0),
		0:          sample(4.2, -1.0),
		hourMs:     sample(4.0, -1.0),
	}

	samples := ValidSamples(logs)
	require.Len(t, samples, 3)
	assert.Equal(t, int64(0), samples[0].Timestamp)
	assert.Equal(t, hourMs, samples[1].Timestamp)
	assert.Equal(t, 3*hourMs, samples[2].Timestamp)
}

func nan() float64 {
	var zero float64
	return 0 / zero
}
