package metrics

import "strings"

// Chemistry is a coarse battery chemistry family derived from a free-text label.
type Chemistry string

const (
	ChemistryLithium  Chemistry = "lithium"
	ChemistryLeadAcid Chemistry = "lead-acid"
	ChemistryNickel   Chemistry = "nickel"
	ChemistryUnknown  Chemistry = "unknown"
)

// Cutoff voltages per chemistry family. Lead acid is per 12 V block.
const (
	cutoffLithium  = 3.0
	cutoffLeadAcid = 10.5
	cutoffNickel   = 0.9
)

// Classify maps a free-text battery type label to its chemistry family using
// case-insensitive substring matching. Total: every input classifies.
func Classify(batteryType string) Chemistry {
	label := strings.ToLower(batteryType)
	switch {
	case strings.Contains(label, "lipo"), strings.Contains(label, "li-ion"):
		return ChemistryLithium
	case strings.Contains(label, "lead"), strings.Contains(label, "acid"):
		return ChemistryLeadAcid
	case strings.Contains(label, "nimh"), strings.Contains(label, "nicd"):
		return ChemistryNickel
	}
	return ChemistryUnknown
}

// CutoffVoltage returns the discharge cutoff voltage for a battery type label.
// Unrecognized or empty labels fall back to the lithium cutoff.
func CutoffVoltage(batteryType string) float64 {
	switch Classify(batteryType) {
	case ChemistryLeadAcid:
		return cutoffLeadAcid
	case ChemistryNickel:
		return cutoffNickel
	default:
		return cutoffLithium
	}
}
