package metrics

import (
	"math"
	"sort"
	"strings"

	"battmon/internal/models"
)

const msPerHour = 3600_000.0

// Sample is a validated, parsed telemetry point.
type Sample struct {
	Timestamp int64
	Voltage   float64
	Current   float64
}

// Compute derives capacity and health metrics from a session log set.
//
// Degenerate inputs (missing battery type, fewer than 2 valid samples before or
// after cutoff truncation) return the zero metric set; that is the defined
// "insufficient data" result, not an error. The function is pure and does not
// look at the session type: callers gate capacity accounting on a discharging
// session themselves.
func Compute(logs map[int64]models.LogSample, batteryType string, ratedCapacity float64) models.Metrics {
	if strings.TrimSpace(batteryType) == "" {
		return models.Metrics{}
	}

	samples := ValidSamples(logs)
	if len(samples) < 2 {
		return models.Metrics{}
	}

	cutoff := CutoffVoltage(batteryType)
	samples = truncateAtCutoff(samples, cutoff)
	if len(samples) < 2 {
		return models.Metrics{}
	}

	discharged := integrateCapacity(samples)

	remaining := ratedCapacity - discharged
	if remaining < 0 {
		remaining = 0
	}

	// Measured capacity is the discharged-to-cutoff integral; the separate name
	// only reflects the final reporting context.
	measured := discharged

	var soh float64
	if ratedCapacity > 0 {
		soh = measured / ratedCapacity * 100
	}

	return models.Metrics{
		DischargedCapacity: discharged,
		SOC:                stateOfCharge(samples[0].Voltage, samples[len(samples)-1].Voltage, cutoff),
		RemainingCapacity:  remaining,
		MeasuredCapacity:   measured,
		SOH:                soh,
	}
}

// ValidSamples filters out samples with non-finite voltage or current and
// returns the remainder sorted ascending by timestamp.
func ValidSamples(logs map[int64]models.LogSample) []Sample {
	samples := make([]Sample, 0, len(logs))
	for ts, log := range logs {
		if !log.Voltage.Valid() || !log.Current.Valid() {
			continue
		}
		samples = append(samples, Sample{
			Timestamp: ts,
			Voltage:   float64(log.Voltage),
			Current:   float64(log.Current),
		})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp })
	return samples
}

// truncateAtCutoff ends the series at the first sample whose voltage reached
// the cutoff, inclusive. Accounting stops once the pack is considered empty,
// even if telemetry continues. No sample at cutoff keeps the full series.
func truncateAtCutoff(samples []Sample, cutoff float64) []Sample {
	for i, s := range samples {
		if s.Voltage <= cutoff {
			return samples[:i+1]
		}
	}
	return samples
}

// integrateCapacity is a trapezoidal integration of |current| over time, in
// ampere-hours. Intervals with non-increasing timestamps or a non-finite or
// negative contribution are skipped, not treated as errors.
func integrateCapacity(samples []Sample) float64 {
	var total float64
	for i := 1; i < len(samples); i++ {
		dt := samples[i].Timestamp - samples[i-1].Timestamp
		if dt <= 0 {
			continue
		}
		hours := float64(dt) / msPerHour
		contribution := (math.Abs(samples[i-1].Current) + math.Abs(samples[i].Current)) / 2 * hours
		if math.IsNaN(contribution) || math.IsInf(contribution, 0) || contribution < 0 {
			continue
		}
		total += contribution
	}
	return total
}

// stateOfCharge positions the present voltage within the start-to-cutoff
// window, as a percentage clamped to [0, 100]. A start voltage at or below
// cutoff means the pack was already empty.
func stateOfCharge(vStart, vNow, cutoff float64) float64 {
	window := vStart - cutoff
	if window <= 0 {
		return 0
	}
	soc := (window - (vStart - vNow)) / window * 100
	if soc < 0 {
		return 0
	}
	if soc > 100 {
		return 100
	}
	return soc
}
